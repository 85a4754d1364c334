//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

// Response types are declared locally so the test only sees the wire format.

type productResponse struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

type orderResponse struct {
	ID    int64   `json:"id"`
	Total float64 `json:"total"`
	Items []struct {
		ProductID int64   `json:"productId"`
		Quantity  int     `json:"quantity"`
		Price     float64 `json:"price"`
		Product   *struct {
			Name string `json:"name"`
		} `json:"product"`
	} `json:"items"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func startDatabase(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startServer(t *testing.T) string {
	t.Helper()

	cfg := &Config{
		Addr:          freeAddr(t),
		DatabaseURL:   startDatabase(t),
		SessionPepper: "integration-pepper",
		BcryptCost:    4,
		SeedCatalog:   true,
		Compression:   -1,
		Session:       SessionConfig{CookieName: "sid", TTL: time.Hour, PurgeInterval: time.Minute},
		Order:         OrderConfig{Pricing: "client"},
		RateLimit:     RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:          CORSConfig{Origins: []string{"http://localhost:3000"}, AllowCredentials: true},
		Graceful:      GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, zaptest.NewLogger(t), noopTelemetry{}, cfg) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	baseURL := "http://" + cfg.Addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 100*time.Millisecond)
	return baseURL
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func call(t *testing.T, c *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStorefront(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	baseURL := startServer(t)
	api := baseURL + "/api"
	client := newClient(t)

	var products []productResponse
	require.Equal(t, http.StatusOK, call(t, client, http.MethodGet, api+"/products", nil, &products))
	require.Len(t, products, 6)
	assert.Equal(t, "Wireless Mouse", products[0].Name)

	var msg messageResponse
	status := call(t, client, http.MethodPost, api+"/orders", map[string]any{
		"cart": []map[string]any{{"id": 1, "price": 25.99, "quantity": 1}},
	}, &msg)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "You must be logged in to do that.", msg.Message)

	creds := map[string]string{"email": "buyer@example.com", "password": "correct horse"}
	require.Equal(t, http.StatusCreated, call(t, client, http.MethodPost, api+"/auth/register", creds, nil))

	var placed orderResponse
	status = call(t, client, http.MethodPost, api+"/orders", map[string]any{
		"cart": []map[string]any{
			{"id": 1, "price": 25.99, "quantity": 2},
			{"id": 2, "price": "79.99", "quantity": 1},
		},
	}, &placed)
	require.Equal(t, http.StatusCreated, status)
	assert.InDelta(t, 131.97, placed.Total, 0.001)
	require.Len(t, placed.Items, 2)

	status = call(t, client, http.MethodPost, api+"/orders", map[string]any{"cart": []any{}}, &msg)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Cart is empty.", msg.Message)

	status = call(t, client, http.MethodPost, api+"/orders", map[string]any{
		"cart": []map[string]any{{"id": 9999, "price": 1, "quantity": 1}},
	}, &msg)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Error creating order.", msg.Message)

	var orders []orderResponse
	require.Equal(t, http.StatusOK, call(t, client, http.MethodGet, api+"/orders", nil, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, placed.ID, orders[0].ID)
	require.NotNil(t, orders[0].Items[0].Product)
	assert.Equal(t, "Wireless Mouse", orders[0].Items[0].Product.Name)

	// A second user sees none of the first user's orders.
	other := newClient(t)
	require.Equal(t, http.StatusCreated, call(t, other, http.MethodPost, api+"/auth/register",
		map[string]string{"email": "other@example.com", "password": "another secret"}, nil))
	orders = nil
	require.Equal(t, http.StatusOK, call(t, other, http.MethodGet, api+"/orders", nil, &orders))
	assert.Empty(t, orders)

	require.Equal(t, http.StatusOK, call(t, client, http.MethodPost, api+"/auth/logout", nil, &msg))
	assert.Equal(t, "Logged out successfully.", msg.Message)
	assert.Equal(t, http.StatusUnauthorized, call(t, client, http.MethodGet, api+"/orders", nil, nil))
}
