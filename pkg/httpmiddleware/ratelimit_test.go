package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveFrom(h http.Handler, remoteAddr string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		rec := serveFrom(h, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.1:9999").Code)
	}
	rec := serveFrom(h, "10.0.0.1:9999")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var msg string
	err := jx.DecodeBytes(rec.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		if key != "message" {
			return d.Skip()
		}
		var err error
		msg, err = d.Str()
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "Too many requests")
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "10.0.0.1:5678").Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Client") },
	})(okHandler())
	withClient := func(v string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Client", v) }
	}

	assert.Equal(t, http.StatusOK, serveFrom(h, "1.1.1.1:1", withClient("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "2.2.2.2:1", withClient("a")).Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "1.1.1.1:1", withClient("b")).Code)
}

func TestRateLimit_IgnoresForwardedForByDefault(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
	spoof := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Forwarded-For", ip) }
	}

	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.7:4444", spoof("203.0.113.1")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "198.51.100.7:4445", spoof("203.0.113.2")).Code)
}

func TestRateLimit_TrustedProxy(t *testing.T) {
	trusted, err := ParsePrefixes([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, TrustedProxies: trusted})(okHandler())
	xff := func(v string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Forwarded-For", v) }
	}

	// Same client behind two proxy instances shares one budget.
	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.1:4444", xff("203.0.113.50")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "10.0.0.2:5555", xff("203.0.113.50")).Code)

	// A forged leading hop does not change the key.
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "10.0.0.1:4444", xff("1.2.3.4, 203.0.113.50")).Code)

	// Direct clients cannot spoof the header.
	assert.Equal(t, http.StatusOK, serveFrom(h, "198.51.100.9:1", xff("203.0.113.99")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "198.51.100.9:2", xff("203.0.113.98")).Code)
}

func TestForwardedClientIP(t *testing.T) {
	trusted, err := ParsePrefixes([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)
	key := ForwardedClientIP(trusted)

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{name: "untrusted remote", remote: "203.0.113.1:80", xff: "1.1.1.1", want: "203.0.113.1"},
		{name: "single hop", remote: "10.1.2.3:80", xff: "203.0.113.5", want: "203.0.113.5"},
		{name: "skips trusted hops", remote: "10.1.2.3:80", xff: "203.0.113.5, 192.168.1.1, 10.9.9.9", want: "203.0.113.5"},
		{name: "rightmost untrusted wins", remote: "10.1.2.3:80", xff: "6.6.6.6, 203.0.113.5", want: "203.0.113.5"},
		{name: "no header", remote: "10.1.2.3:80", want: "10.1.2.3"},
		{name: "all trusted", remote: "10.1.2.3:80", xff: "10.0.0.9", want: "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, key(req))
		})
	}
}

func TestParsePrefixes(t *testing.T) {
	got, err := ParsePrefixes([]string{"10.0.0.0/8", " 192.168.1.1 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "192.168.1.1/32", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())

	_, err = ParsePrefixes([]string{"not-an-ip"})
	require.Error(t, err)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _, ok := l.take("k", base)
	require.True(t, ok)
	_, _, ok = l.take("k", base.Add(time.Second))
	require.True(t, ok)
	_, _, ok = l.take("k", base.Add(2*time.Second))
	require.False(t, ok)

	// Halfway through the next window the previous count weighs 1.
	_, _, ok = l.take("k", base.Add(90*time.Second))
	require.True(t, ok)

	// Two idle windows reset the key.
	remaining, _, ok := l.take("k", base.Add(5*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
}

func TestRateLimiter_Evict(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.take("old", base)
	l.take("new", base.Add(2*time.Minute))

	assert.Equal(t, 1, l.evict(base.Add(2*time.Minute+time.Second)))
	assert.Len(t, l.keys, 1)
}

func TestRateLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{Max: 1, Window: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
