package config

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/pkg/blob"
	"github.com/mkarlsen/tenantd/pkg/lock"
	"github.com/mkarlsen/tenantd/pkg/registry"
	"github.com/mkarlsen/tenantd/pkg/state"
)

// CreateRegistry opens the tenant registry database described by the
// configuration and runs schema migration.
func CreateRegistry(cfg *Config) (*registry.GORMStore, error) {
	reg, err := registry.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	logger.Info("Registry database opened", "type", string(cfg.Database.Type))
	return reg, nil
}

// CreateStateStore connects to the shared state store.
func CreateStateStore(cfg *Config) (*state.RedisStore, error) {
	states, err := state.NewRedisStore(cfg.Redis)
	if err != nil {
		return nil, err
	}

	logger.Info("State store connected", "addr", cfg.Redis.Addr)
	return states, nil
}

// CreateBlobStore builds the S3 blob store for checkpoints and archives.
// The bucket must already exist.
func CreateBlobStore(ctx context.Context, cfg *Config) (*blob.S3Store, error) {
	client, err := blob.NewS3Client(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	logger.Info("Blob store configured",
		"bucket", cfg.Blob.Bucket,
		"endpoint", cfg.Blob.Endpoint)
	return blob.NewS3Store(client, cfg.Blob), nil
}

// CreateLockService builds the lock service on top of the state store's
// Redis connection, so locks and state share one connection pool.
func CreateLockService(states *state.RedisStore, metrics lock.Metrics) *lock.Service {
	return lock.NewService(lock.NewRedisStore(states.Client()), metrics)
}
