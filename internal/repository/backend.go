// Package repository opens the storage backend selected by configuration.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"nodetree/internal/config"
	"nodetree/internal/domain/repositories"
	"nodetree/internal/repository/badger"
	"nodetree/internal/repository/jsonfile"
	"nodetree/internal/repository/memory"
	"nodetree/internal/repository/postgres"
	"nodetree/internal/repository/serial"
)

// Backend bundles a node repository with the transaction manager that
// serializes writes to the same tree.
type Backend struct {
	Name  string
	Nodes repositories.NodeRepository
	Tx    repositories.TransactionManager

	closeFn func() error
}

// Close releases the backend's connections or files
func (b *Backend) Close() error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}

// Open builds the backend named by cfg.StorageBackend
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return &Backend{
			Name:  cfg.StorageBackend,
			Nodes: memory.NewNodeRepository(),
			Tx:    serial.NewTransactionManager(),
		}, nil

	case config.BackendPostgres:
		return openPostgres(ctx, cfg, logger)

	case config.BackendBadger:
		badgerCfg := badger.InMemoryConfig()
		if cfg.BadgerPath != "" {
			badgerCfg = badger.DefaultConfig(cfg.BadgerPath)
		}
		badgerCfg.Logger = logger

		db, err := badger.Open(badgerCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("badger opened", "path", cfg.BadgerPath, "in_memory", badgerCfg.InMemory)

		return &Backend{
			Name:    cfg.StorageBackend,
			Nodes:   badger.NewNodeRepository(db),
			Tx:      serial.NewTransactionManager(),
			closeFn: db.Close,
		}, nil

	case config.BackendJSONFile:
		repo, err := jsonfile.NewNodeRepository(cfg.JSONStorePath)
		if err != nil {
			return nil, err
		}
		logger.Info("json store opened", "path", cfg.JSONStorePath)

		return &Backend{
			Name:  cfg.StorageBackend,
			Nodes: repo,
			Tx:    jsonfile.NewTransactionManager(repo),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the %s backend", config.BackendPostgres)
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("database connected", "table", tables.Nodes)

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	return &Backend{
		Name:  cfg.StorageBackend,
		Nodes: postgres.NewNodeRepository(repoConfig),
		Tx:    postgres.NewTransactionManager(repoConfig),
		closeFn: func() error {
			pool.Close()
			return nil
		},
	}, nil
}
