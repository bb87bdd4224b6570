package platform

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidLabel  = errors.New("invalid subdomain label")
	ErrInvalidDomain = errors.New("invalid domain")
)

// ValidationError describes why an input was rejected.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	subdomainLabel = regexp.MustCompile(`^[a-z0-9-]+$`)
	dnsLabel       = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

// ValidateSubdomainLabel accepts 2-63 lowercase letters, digits and hyphens
// that start and end with a letter or digit.
func ValidateSubdomainLabel(label string) error {
	invalid := func(reason string) error {
		return &ValidationError{Field: "subdomain_name", Value: label, Reason: reason, Err: ErrInvalidLabel}
	}
	switch {
	case len(label) < 2 || len(label) > 63:
		return invalid("must be between 2 and 63 characters")
	case !subdomainLabel.MatchString(label):
		return invalid("may only contain lowercase letters, digits and hyphens")
	case label[0] == '-' || label[len(label)-1] == '-':
		return invalid("must start and end with a letter or digit")
	}
	return nil
}

// NormalizeDomain reduces user input such as "https://www.Example.com/path"
// to a bare lowercase domain ("example.com").
func NormalizeDomain(input string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(input))
	if strings.Contains(d, "://") {
		u, err := url.Parse(d)
		if err != nil {
			return "", &ValidationError{Field: "domain", Value: input, Reason: "not a valid URL", Err: ErrInvalidDomain}
		}
		d = u.Host
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "www.")

	if err := validateDomain(d); err != nil {
		return "", &ValidationError{Field: "domain", Value: input, Reason: err.Error(), Err: ErrInvalidDomain}
	}
	return d, nil
}

func validateDomain(d string) error {
	if d == "" {
		return errors.New("is empty")
	}
	if len(d) > 253 {
		return errors.New("is longer than 253 characters")
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return errors.New("must include a top-level domain")
	}
	for _, l := range labels {
		if !dnsLabel.MatchString(l) {
			return fmt.Errorf("label %q is not a valid hostname label", l)
		}
	}
	return nil
}

// PlatformHostname is the free subdomain a dealer gets under the platform domain.
// Example: abc-motors.dealersites.in
func PlatformHostname(slug, platformDomain string) string {
	return fmt.Sprintf("%s.%s", slug, platformDomain)
}
