// Command api-server serves the storefront HTTP API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/storefront/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Starting storefront",
			zap.String("order.pricing", cfg.Order.Pricing),
			zap.Bool("seed_catalog", cfg.SeedCatalog),
			zap.Duration("session.ttl", cfg.Session.TTL),
		)
		return appkg.Run(ctx, lg, m, cfg)
	})
}
