// Package store selects and opens a storage engine.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetstore/internal/config"
	"github.com/JonMunkholm/sheetstore/internal/core"
	"github.com/JonMunkholm/sheetstore/internal/store/memory"
	"github.com/JonMunkholm/sheetstore/internal/store/postgres"
	"github.com/JonMunkholm/sheetstore/internal/store/sqlite"
)

// Engine names accepted by DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open returns the engine named by cfg.Driver, connected and migrated.
func Open(ctx context.Context, cfg config.DatabaseConfig) (core.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres, "":
		return postgres.Open(ctx, postgres.Options{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
			ConnectTimeout:  cfg.ConnectTimeout,
		})
	case DriverSQLite:
		return sqlite.Open(ctx, sqlite.Options{
			Path:         cfg.SQLitePath,
			MaxOpenConns: cfg.MaxConns,
			BusyTimeout:  cfg.ConnectTimeout,
		})
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
