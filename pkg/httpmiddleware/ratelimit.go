package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// RateLimitConfig configures a sliding window rate limit.
type RateLimitConfig struct {
	// Max requests allowed per Window for one key.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP, or to
	// ForwardedClientIP when TrustedProxies is set.
	KeyFunc func(*http.Request) string
	// TrustedProxies lists the reverse proxies allowed to report the client
	// address in X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// window holds the request count of the current fixed window and the one
// before it. The estimate weights the previous count by its overlap with a
// window ending now.
type window struct {
	start time.Time
	count float64
	prev  float64
}

// RateLimiter enforces RateLimitConfig per key. Stale keys are evicted by
// Run.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu   sync.Mutex
	keys map[string]*window
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
		if len(cfg.TrustedProxies) > 0 {
			cfg.KeyFunc = ForwardedClientIP(cfg.TrustedProxies)
		}
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimiter{
		cfg:  cfg,
		now:  time.Now,
		keys: make(map[string]*window),
	}
}

// RateLimit is a shorthand for NewRateLimiter(cfg).Middleware() without
// eviction.
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewRateLimiter(cfg).Middleware()
}

func (l *RateLimiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.cfg.Window
	w, found := l.keys[key]
	if !found {
		w = &window{start: now.Truncate(size)}
		l.keys[key] = w
	}

	if since := now.Sub(w.start); since >= size {
		w.prev = w.count
		if since >= 2*size {
			w.prev = 0
		}
		w.count = 0
		w.start = now.Truncate(size)
	}

	weight := 1 - float64(now.Sub(w.start))/float64(size)
	estimate := w.prev*math.Max(weight, 0) + w.count
	reset = w.start.Add(size)

	if estimate >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	w.count++
	return max(int(float64(l.cfg.Max)-estimate-1), 0), reset, true
}

// evict drops keys idle for two full windows.
func (l *RateLimiter) evict(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, w := range l.keys {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.keys, key)
			n++
		}
	}
	return n
}

// Run evicts stale keys every two windows until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.evict(l.now())
		}
	}
}

// Middleware rejects requests over the limit with 429. Every response
// carries X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
func (l *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := l.now()
			remaining, reset, ok := l.take(l.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retry := math.Ceil(max(reset.Sub(now), 0).Seconds())
			h.Set("Retry-After", strconv.Itoa(int(retry)))

			e := jx.GetEncoder()
			defer jx.PutEncoder(e)
			e.Obj(func(e *jx.Encoder) {
				e.Field("message", func(e *jx.Encoder) { e.Str("Too many requests, please try again later.") })
			})
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = e.WriteTo(w)
		})
	}
}

// ClientIP keys requests by the connection address. Forwarding headers are
// ignored since any client can set them.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ForwardedClientIP keys requests by the nearest X-Forwarded-For hop that is
// not a trusted proxy. Requests that do not arrive from a trusted proxy are
// keyed by ClientIP.
func ForwardedClientIP(trusted []netip.Prefix) func(*http.Request) string {
	isTrusted := func(s string) bool {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}
	return func(r *http.Request) string {
		remote := ClientIP(r)
		if !isTrusted(remote) {
			return remote
		}
		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		client := remote
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			client = hop
			if !isTrusted(hop) {
				break
			}
		}
		return client
	}
}

// ParsePrefixes parses CIDR prefixes. Bare addresses become single-host
// prefixes.
func ParsePrefixes(ss []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(ss))
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, errors.Errorf("invalid proxy address %q", s)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
