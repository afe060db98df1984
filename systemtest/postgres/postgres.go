package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const DefaultImage = "postgres:17-alpine"

// Options configures the throwaway database used by system tests.
// Zero values fall back to edgelink defaults.
type Options struct {
	Image    string
	User     string
	Password string
	Database string
}

func (o Options) withDefaults() Options {
	if o.Image == "" {
		o.Image = DefaultImage
	}
	if o.User == "" {
		o.User = "edgelink"
	}
	if o.Password == "" {
		o.Password = "edgelink"
	}
	if o.Database == "" {
		o.Database = "edgelink"
	}
	return o
}

// Start runs a Postgres container and returns it together with a
// pgx-compatible connection URL (sslmode disabled).
func Start(ctx context.Context, opts Options) (*postgres.PostgresContainer, string, error) {
	opts = opts.withDefaults()

	container, err := postgres.Run(ctx,
		opts.Image,
		postgres.WithUsername(opts.User),
		postgres.WithPassword(opts.Password),
		postgres.WithDatabase(opts.Database),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to resolve connection string: %w", err)
	}

	return container, dbURL, nil
}

// Terminate tears the container down.
func Terminate(ctx context.Context, container *postgres.PostgresContainer) error {
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Postgres container: %w", err)
	}
	return nil
}
