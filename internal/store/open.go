package store

import (
	"os"
	"path/filepath"

	"github.com/Iron-Ham/duo/internal/config"
	"github.com/Iron-Ham/duo/internal/errors"
)

// Open returns the backend selected by cfg.Backend.
func Open(cfg config.StoreConfig, opts ...Option) (Store, error) {
	opts = append([]Option{WithKeepVersions(cfg.KeepVersions)}, opts...)

	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.ResolveDir(), opts...)
	case "sqlite":
		path := cfg.ResolveSQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
		return NewSQLiteStore(path, opts...)
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, errors.NewValidationError("store.mysql_dsn is required for the mysql backend").WithField("store.mysql_dsn")
		}
		return NewMySQLStore(cfg.MySQLDSN, opts...)
	case "memory":
		return NewMemoryStore(opts...), nil
	default:
		return nil, errors.NewValidationError("unknown store backend").WithField("store.backend").WithValue(cfg.Backend)
	}
}
