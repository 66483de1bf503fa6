package database

import (
	"fmt"
	"os"
	"path/filepath"

	"cx-go/internal/config"
	"cx-go/internal/cx"
)

// HistoryFileName is the sqlite file created under DatabaseConfig.DataDir.
const HistoryFileName = "history.db"

// NewDatabaseFromConfig creates the History store named by cfg.Type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (cx.History, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, HistoryFileName))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
