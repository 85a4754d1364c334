package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is
// usually the *app.Telemetry handed over by the go-faster/sdk runner.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pricing, err := order.ParsePricingPolicy(cfg.Order.Pricing)
	if err != nil {
		return errors.Wrap(err, "order pricing")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	if cfg.SeedCatalog {
		if err := seedCatalog(ctx, lg, productRepo, db.Products); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
	}

	// Domain services.
	orderService, err := order.NewService(orderRepo, productRepo, order.Options{
		Pricing:        pricing,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	userService, err := user.NewService(userRepo, cfg.BcryptCost)
	if err != nil {
		return errors.Wrap(err, "create user service")
	}
	sessions, err := session.NewManager(sessionRepo, []byte(cfg.SessionPepper), cfg.Session.TTL)
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.Config{
			ImageBaseURL: cfg.ImageBaseURL,
			CookieName:   cfg.Session.CookieName,
			CookieSecure: cfg.Session.Secure,
		},
		productRepo,
		orderService,
		userService,
		sessions,
	)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Mux: health endpoints + API routes on one server.
	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/api", h.Routes())
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	trustedProxies, err := httpmiddleware.ParsePrefixes(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return errors.Wrap(err, "trusted proxies")
	}
	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Max:            cfg.RateLimit.Max,
		Window:         cfg.RateLimit.Window,
		TrustedProxies: trustedProxies,
	})

	middlewares := []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		limiter.Middleware(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(serviceName, routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	}
	if cfg.Compression >= 0 {
		middlewares = append(middlewares, httpmiddleware.Compress(cfg.Compression))
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           httpmiddleware.Wrap(mux, middlewares...),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gCtx, 10*time.Second)
	})
	g.Go(func() error {
		return limiter.Run(gCtx)
	})
	g.Go(func() error {
		return purgeSessions(gCtx, lg, sessions, cfg.Session.PurgeInterval)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		healthSvc.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	return g.Wait()
}

// catalogStore is the subset of the product storage used for seeding.
type catalogStore interface {
	Count(ctx context.Context) (int64, error)
	Upsert(ctx context.Context, products []product.Product) error
}

// seedCatalog inserts the embedded catalog when no products exist yet.
func seedCatalog(ctx context.Context, lg *zap.Logger, store catalogStore, data []byte) error {
	n, err := store.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "count products")
	}
	if n > 0 {
		lg.Debug("Catalog already populated", zap.Int64("products", n))
		return nil
	}

	products, err := product.DecodeCatalog(data)
	if err != nil {
		return errors.Wrap(err, "decode catalog")
	}
	if err := store.Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	lg.Info("Seeded product catalog", zap.Int("products", len(products)))
	return nil
}

// sessionPurger deletes expired sessions.
type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// purgeSessions runs p.PurgeExpired every interval until ctx is done.
// Failures are logged and retried on the next tick.
func purgeSessions(ctx context.Context, lg *zap.Logger, p sessionPurger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Warn("Purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("Purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}
