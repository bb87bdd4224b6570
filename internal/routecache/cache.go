// Package routecache maps incoming hostnames to dealer slugs for request
// dispatch. The in-process level is bounded in size and age.
package routecache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/metrics"
)

// ErrUnknownHost is returned when no dealer serves the hostname.
var ErrUnknownHost = errors.New("unknown host")

// Loader resolves a hostname from the system of record. It returns
// ErrUnknownHost when no active domain matches.
type Loader func(ctx context.Context, host string) (string, error)

// L2 is the shared cache level. RedisStore implements it.
type L2 interface {
	Get(ctx context.Context, host string) (string, bool, error)
	Set(ctx context.Context, host, slug string, ttl time.Duration) error
	Invalidate(ctx context.Context, hosts ...string) error
	Subscribe(ctx context.Context) (<-chan string, error)
}

type Cache struct {
	l1     *expirable.LRU[string, string]
	l2     L2
	ttl    time.Duration
	load   Loader
	logger zerolog.Logger
}

// New builds a cache of at most size hostnames. l2 may be nil.
func New(size int, ttl time.Duration, l2 L2, load Loader, logger zerolog.Logger) *Cache {
	return &Cache{
		l1:     expirable.NewLRU(size, onEvict, ttl),
		l2:     l2,
		ttl:    ttl,
		load:   load,
		logger: logger.With().Str("component", "routecache").Logger(),
	}
}

// onEvict counts entries leaving L1 for any reason: size, age or invalidation.
func onEvict(string, string) {
	metrics.RouteCacheOperations.WithLabelValues("l1", "evict").Inc()
}

// NormalizeHost lowercases and strips the port and trailing dot.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(h, ":"); i >= 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	return strings.TrimSuffix(h, ".")
}

// Lookup returns the dealer slug serving host.
func (c *Cache) Lookup(ctx context.Context, host string) (string, error) {
	host = NormalizeHost(host)
	if host == "" {
		return "", ErrUnknownHost
	}

	if slug, ok := c.l1.Get(host); ok {
		metrics.RouteCacheOperations.WithLabelValues("l1", "hit").Inc()
		return slug, nil
	}
	metrics.RouteCacheOperations.WithLabelValues("l1", "miss").Inc()

	if c.l2 != nil {
		slug, ok, err := c.l2.Get(ctx, host)
		switch {
		case err != nil:
			metrics.RouteCacheOperations.WithLabelValues("l2", "error").Inc()
			c.logger.Warn().Err(err).Str("host", host).Msg("l2 lookup failed")
		case ok:
			metrics.RouteCacheOperations.WithLabelValues("l2", "hit").Inc()
			c.l1.Add(host, slug)
			return slug, nil
		default:
			metrics.RouteCacheOperations.WithLabelValues("l2", "miss").Inc()
		}
	}

	slug, err := c.load(ctx, host)
	if err != nil {
		return "", err
	}
	c.l1.Add(host, slug)
	if c.l2 != nil {
		if err := c.l2.Set(ctx, host, slug, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("host", host).Msg("l2 store failed")
		}
	}
	return slug, nil
}

// Invalidate drops hosts locally and from the shared level. Failure to reach
// the shared level is logged; entries there expire on their own.
func (c *Cache) Invalidate(ctx context.Context, hosts ...string) {
	norm := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = NormalizeHost(h); h != "" {
			c.l1.Remove(h)
			norm = append(norm, h)
		}
	}
	if c.l2 != nil && len(norm) > 0 {
		if err := c.l2.Invalidate(ctx, norm...); err != nil {
			c.logger.Warn().Err(err).Strs("hosts", norm).Msg("l2 invalidation failed")
		}
	}
}

func (c *Cache) Len() int {
	return c.l1.Len()
}

// Run applies invalidations published by other processes until ctx is done
// or the subscription closes. Expired entries are dropped by L1 itself.
func (c *Cache) Run(ctx context.Context) {
	if c.l2 == nil {
		return
	}
	invalidations, err := c.l2.Subscribe(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("invalidation subscription failed, relying on ttl")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case host, ok := <-invalidations:
			if !ok {
				return
			}
			c.l1.Remove(host)
		}
	}
}
