package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OpenOptions struct {
	Backend       string
	DatabaseURL   string
	MigrationsDir string
	MongoURI      string
	MongoDatabase string
}

// Open returns the document store selected by opts.Backend. The postgres
// backend applies pending migrations before returning.
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := OpenPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if opts.MigrationsDir != "" {
			if err := ApplyMigrations(ctx, pool, opts.MigrationsDir); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return NewPostgresStore(pool), nil
	case "mongo":
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MinConns = 2
	cfg.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
