package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL     string
	TemporalAddress string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string
	ServiceName     string
	Environment     string

	// Temporal mTLS. Plaintext when cert and key are empty.
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	// APIKeys holds sha256 hex digests of accepted bearer keys.
	APIKeys        []string
	PlatformDomain string

	HostingAPIURL      string
	HostingAPIToken    string
	HostingTeamID      string
	HostingApexIP      string
	HostingCNAMETarget string

	SiteRepository    string
	SiteDefaultBranch string
	SiteDatabaseURL   string
	SitePublicKey     string

	CDNAPIURL    string
	CDNAPIToken  string
	CDNAccountID string

	RegistrarAPIURL     string
	RegistrarAPIKey     string
	RegistrarRatePerSec int
	CandidateTLDs       []string

	// RDAPBaseURL looks up custom domain expiry; empty disables lookups.
	RDAPBaseURL    string
	RDAPRatePerSec int

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      string
	MailFrom     string

	RedisAddr      string
	RouteCacheSize int
	RouteCacheTTL  time.Duration

	PropagationInterval    time.Duration
	PropagationMaxInterval time.Duration
	PropagationMaxAttempts int

	ExternalCallTimeout time.Duration
	SiteCheckTimeout    time.Duration

	ArchiveS3Endpoint  string
	ArchiveS3Bucket    string
	ArchiveS3AccessKey string
	ArchiveS3SecretKey string
	ArchiveS3Region    string

	VerificationSecret string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		TemporalAddress: getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ServiceName:     getEnv("SERVICE_NAME", ""),
		Environment:     getEnv("ENVIRONMENT", ""),

		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),

		APIKeys:        getEnvList("API_KEYS", ""),
		PlatformDomain: getEnv("PLATFORM_DOMAIN", "dealersites.in"),

		HostingAPIURL:      getEnv("HOSTING_API_URL", ""),
		HostingAPIToken:    getEnv("HOSTING_API_TOKEN", ""),
		HostingTeamID:      getEnv("HOSTING_TEAM_ID", ""),
		HostingApexIP:      getEnv("HOSTING_APEX_IP", "76.76.21.21"),
		HostingCNAMETarget: getEnv("HOSTING_CNAME_TARGET", "cname.dealersites-dns.com"),

		SiteRepository:    getEnv("SITE_REPOSITORY", ""),
		SiteDefaultBranch: getEnv("SITE_DEFAULT_BRANCH", "main"),
		SiteDatabaseURL:   getEnv("SITE_DATABASE_URL", ""),
		SitePublicKey:     getEnv("SITE_PUBLIC_KEY", ""),

		CDNAPIURL:    getEnv("CDN_API_URL", ""),
		CDNAPIToken:  getEnv("CDN_API_TOKEN", ""),
		CDNAccountID: getEnv("CDN_ACCOUNT_ID", ""),

		RegistrarAPIURL: getEnv("REGISTRAR_API_URL", ""),
		RegistrarAPIKey: getEnv("REGISTRAR_API_KEY", ""),
		CandidateTLDs:   getEnvList("CANDIDATE_TLDS", "com,in,co.in,net,org,co"),

		RDAPBaseURL: getEnvOrUnset("RDAP_BASE_URL", "https://rdap.org"),

		SMTPAddr:     getEnv("SMTP_ADDR", ""),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPTLS:      getEnv("SMTP_TLS", "starttls"),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@dealersites.in"),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		ArchiveS3Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveS3Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		ArchiveS3SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		ArchiveS3Region:    getEnv("ARCHIVE_S3_REGION", "us-east-1"),

		VerificationSecret: getEnv("VERIFICATION_SECRET", ""),
	}

	var err error
	if cfg.RegistrarRatePerSec, err = getEnvInt("REGISTRAR_RATE_PER_SEC", 5); err != nil {
		return nil, err
	}
	if cfg.RDAPRatePerSec, err = getEnvInt("RDAP_RATE_PER_SEC", 1); err != nil {
		return nil, err
	}
	if cfg.RouteCacheSize, err = getEnvInt("ROUTE_CACHE_SIZE", 10000); err != nil {
		return nil, err
	}
	if cfg.PropagationMaxAttempts, err = getEnvInt("PROPAGATION_MAX_ATTEMPTS", 120); err != nil {
		return nil, err
	}
	if cfg.RouteCacheTTL, err = getEnvDuration("ROUTE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PropagationInterval, err = getEnvDuration("PROPAGATION_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PropagationMaxInterval, err = getEnvDuration("PROPAGATION_MAX_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ExternalCallTimeout, err = getEnvDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SiteCheckTimeout, err = getEnvDuration("SITE_CHECK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the variables the given component cannot start without.
func (c *Config) Validate(component string) error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	switch component {
	case "onboarding-api":
		if len(c.APIKeys) == 0 {
			missing = append(missing, "API_KEYS")
		}
		if c.VerificationSecret == "" {
			missing = append(missing, "VERIFICATION_SECRET")
		}
	case "worker":
		if c.HostingAPIURL == "" {
			missing = append(missing, "HOSTING_API_URL")
		}
		if c.HostingAPIToken == "" {
			missing = append(missing, "HOSTING_API_TOKEN")
		}
		if c.SiteRepository == "" {
			missing = append(missing, "SITE_REPOSITORY")
		}
	default:
		return fmt.Errorf("unknown component %q", component)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config for %s: %s", component, strings.Join(missing, ", "))
	}
	if c.RouteCacheSize <= 0 {
		return fmt.Errorf("ROUTE_CACHE_SIZE must be positive")
	}
	if c.PropagationMaxAttempts <= 0 {
		return fmt.Errorf("PROPAGATION_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// CDNEnabled reports whether the CDN-assisted subdomain route can be offered.
func (c *Config) CDNEnabled() bool {
	return c.CDNAPIURL != "" && c.CDNAPIToken != ""
}

// ArchiveEnabled reports whether terminal onboardings are written to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Endpoint != "" && c.ArchiveS3Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvOrUnset is getEnv, except that a variable set to "" stays empty.
func getEnvOrUnset(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
