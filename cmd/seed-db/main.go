// Command seed-db applies migrations, upserts the product catalog and
// optionally registers a demo user.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	demoEmail    string
	demoPassword string
	bcryptCost   int
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "products JSON file, optionally gzipped (.gz); empty uses the built-in catalog")
	flag.StringVar(&opts.demoEmail, "demo-email", "", "register a demo user with this email (or STORE_DEMO_EMAIL env)")
	flag.StringVar(&opts.demoPassword, "demo-password", "", "password for the demo user (or STORE_DEMO_PASSWORD env)")
	flag.IntVar(&opts.bcryptCost, "bcrypt-cost", 0, "bcrypt cost for the demo user, 0 selects the default")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.demoEmail == "" {
		opts.demoEmail = os.Getenv("STORE_DEMO_EMAIL")
	}
	if opts.demoPassword == "" {
		opts.demoPassword = os.Getenv("STORE_DEMO_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	var (
		pool     *pgxpool.Pool
		products []product.Product
	)

	// Catalog parsing and database setup are independent.
	var g errgroup.Group
	g.Go(func() error {
		data, err := readCatalog(opts.productsFile)
		if err != nil {
			return errors.Wrap(err, "read catalog")
		}
		products, err = product.DecodeCatalog(data)
		return errors.Wrap(err, "decode catalog")
	})
	g.Go(func() error {
		lg.Info("Connecting to database")
		p, err := postgres.NewPool(ctx, opts.databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		pool = p

		lg.Info("Running migrations")
		return errors.Wrap(postgres.RunMigrations(p), "run migrations")
	})
	err := g.Wait()
	if pool != nil {
		defer pool.Close()
	}
	if err != nil {
		return err
	}

	lg.Info("Upserting products", zap.Int("count", len(products)))
	if err := postgres.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "upsert products")
	}

	if opts.demoEmail == "" {
		return nil
	}
	users, err := user.NewService(postgres.NewUserRepository(pool), opts.bcryptCost)
	if err != nil {
		return errors.Wrap(err, "create user service")
	}
	u, err := users.Register(ctx, opts.demoEmail, opts.demoPassword)
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		lg.Info("Demo user already exists", zap.String("email", opts.demoEmail))
	case err != nil:
		return errors.Wrap(err, "register demo user")
	default:
		lg.Info("Registered demo user", zap.Int64("user_id", u.ID), zap.String("email", u.Email))
	}
	return nil
}

// readCatalog returns the catalog JSON from path, decompressing .gz files.
// An empty path selects the embedded catalog.
func readCatalog(path string) ([]byte, error) {
	if path == "" {
		return db.Products, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return io.ReadAll(r)
}
