package dnsanalysis

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/dealersites/internal/metrics"
	"github.com/edvin/dealersites/internal/model"
)

// Resolver is the part of *net.Resolver the analyzer uses.
type Resolver interface {
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// ConventionalSubdomains are checked for CNAMEs during analysis.
var ConventionalSubdomains = []string{"www", "mail", "ftp", "api", "cdn"}

// Result is a captured analysis plus the route it suggests.
type Result struct {
	Analysis       model.DNSAnalysis
	Recommendation model.RouteRecommendation
}

// Analyzer inspects a domain's current DNS and web presence.
type Analyzer struct {
	resolver         Resolver
	siteChecker      SiteChecker
	providers        *ProviderTable
	lookupTimeout    time.Duration
	siteCheckTimeout time.Duration
	logger           zerolog.Logger
	now              func() time.Time
}

func NewAnalyzer(resolver Resolver, siteChecker SiteChecker, providers *ProviderTable, lookupTimeout, siteCheckTimeout time.Duration, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		resolver:         resolver,
		siteChecker:      siteChecker,
		providers:        providers,
		lookupTimeout:    lookupTimeout,
		siteCheckTimeout: siteCheckTimeout,
		logger:           logger.With().Str("component", "dns-analysis").Logger(),
		now:              time.Now,
	}
}

// Analyze runs every lookup in parallel. A failed lookup degrades to an empty
// value and is reported in Analysis.Lookups; Analyze itself never fails.
func (a *Analyzer) Analyze(ctx context.Context, domain string) Result {
	var (
		ns     Lookup[[]string]
		ips    Lookup[[]string]
		mx     Lookup[[]string]
		txt    Lookup[[]string]
		site   Lookup[string]
		mu     sync.Mutex
		cnames = make(map[string]Lookup[string], len(ConventionalSubdomains))
	)

	var g errgroup.Group
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
		defer cancel()
		records, err := a.resolver.LookupNS(lctx, domain)
		hosts := make([]string, 0, len(records))
		for _, r := range records {
			hosts = append(hosts, strings.TrimSuffix(strings.ToLower(r.Host), "."))
		}
		ns = fromSlice(sorted(hosts), err)
		return nil
	})
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
		defer cancel()
		records, err := a.resolver.LookupIP(lctx, "ip4", domain)
		addrs := make([]string, 0, len(records))
		for _, ip := range records {
			addrs = append(addrs, ip.String())
		}
		ips = fromSlice(sorted(addrs), err)
		return nil
	})
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
		defer cancel()
		records, err := a.resolver.LookupMX(lctx, domain)
		hosts := make([]string, 0, len(records))
		for _, r := range records {
			hosts = append(hosts, strings.TrimSuffix(strings.ToLower(r.Host), "."))
		}
		mx = fromSlice(hosts, err)
		return nil
	})
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
		defer cancel()
		records, err := a.resolver.LookupTXT(lctx, domain)
		txt = fromSlice(records, err)
		return nil
	})
	for _, sub := range ConventionalSubdomains {
		g.Go(func() error {
			l := a.lookupCNAME(ctx, sub+"."+domain)
			mu.Lock()
			cnames[sub] = l
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		site = a.checkWebsite(ctx, domain)
		return nil
	})
	_ = g.Wait()

	analysis := model.DNSAnalysis{
		Nameservers: ns.Value,
		ARecords:    ips.Value,
		MXRecords:   mx.Value,
		TXTRecords:  txt.Value,
		CNAMEs:      make(map[string]string),
		Lookups: map[string]model.LookupStatus{
			"ns":   ns.Status(),
			"a":    ips.Status(),
			"mx":   mx.Status(),
			"txt":  txt.Status(),
			"http": site.Status(),
		},
		CapturedAt: a.now().UTC(),
	}
	for sub, l := range cnames {
		analysis.Lookups["cname:"+sub] = l.Status()
		if l.Outcome == model.LookupResolved {
			analysis.CNAMEs[sub] = l.Value
		}
	}
	if analysis.Nameservers == nil {
		analysis.Nameservers = []string{}
	}
	if analysis.ARecords == nil {
		analysis.ARecords = []string{}
	}
	if analysis.MXRecords == nil {
		analysis.MXRecords = []string{}
	}
	if analysis.TXTRecords == nil {
		analysis.TXTRecords = []string{}
	}

	analysis.HasEmail = len(analysis.MXRecords) > 0
	analysis.HasActiveWebsite = site.Outcome == model.LookupResolved
	analysis.WebsiteURL = site.Value
	analysis.Registrar = a.providers.Registrar(analysis.Nameservers)
	analysis.CDNProvider = a.providers.CDN(analysis.Nameservers)
	analysis.UsingCDN = analysis.CDNProvider != ""

	for kind, st := range analysis.Lookups {
		if strings.HasPrefix(kind, "cname:") {
			kind = "cname"
		}
		metrics.DNSLookups.WithLabelValues(kind, string(st.Outcome)).Inc()
	}

	errored := 0
	for _, st := range analysis.Lookups {
		if st.Outcome == model.LookupErrored {
			errored++
		}
	}
	if errored > 0 {
		a.logger.Warn().Str("domain", domain).Int("errored_lookups", errored).Msg("dns analysis degraded")
	}

	return Result{Analysis: analysis, Recommendation: Recommend(analysis)}
}

func (a *Analyzer) lookupCNAME(ctx context.Context, host string) Lookup[string] {
	lctx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()
	target, err := a.resolver.LookupCNAME(lctx, host)
	if err != nil {
		if isNotFound(err) {
			return Unresolved[string]()
		}
		return Errored[string](err)
	}
	target = strings.TrimSuffix(strings.ToLower(target), ".")
	// The resolver returns the queried name itself when there is no CNAME.
	if target == "" || target == host {
		return Unresolved[string]()
	}
	return Resolved(target)
}

// checkWebsite requests all URL variants concurrently and returns the most
// preferred one that answered 2xx.
func (a *Analyzer) checkWebsite(ctx context.Context, domain string) Lookup[string] {
	pctx, cancel := context.WithTimeout(ctx, a.siteCheckTimeout)
	defer cancel()

	urls := siteURLs(domain)
	ok := make([]bool, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			status, err := a.siteChecker.Check(pctx, u)
			errs[i] = err
			ok[i] = err == nil && status >= 200 && status < 300
			return nil
		})
	}
	_ = g.Wait()

	allErrored := true
	for i, u := range urls {
		if ok[i] {
			return Resolved(u)
		}
		if errs[i] == nil {
			allErrored = false
		}
	}
	if allErrored {
		return Errored[string](errs[0])
	}
	return Unresolved[string]()
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}
