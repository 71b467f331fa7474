package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/hearken/internal/conf"
)

// sqliteDialector opens the database file, creating its directory.
func sqliteDialector(s *conf.SQLiteSettings) (gorm.Dialector, string, error) {
	path := s.Path
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	return sqlite.Open(dsn), path, nil
}
