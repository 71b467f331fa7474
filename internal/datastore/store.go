package datastore

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// DefaultSlowQueryThreshold is the duration after which a statement is
// logged as slow.
const DefaultSlowQueryThreshold = 1 * time.Second

// Store implements Interface on GORM with a sqlite or mysql backend.
type Store struct {
	settings *conf.OutputSettings
	dbType   string
	metrics  metrics.Recorder

	mu sync.RWMutex
	db *gorm.DB
}

// New returns an unopened store for the configured backend. rec may be nil.
func New(settings *conf.OutputSettings, rec metrics.Recorder) (*Store, error) {
	var dbType string
	switch {
	case settings.SQLite.Enabled:
		dbType = "sqlite"
	case settings.MySQL.Enabled:
		dbType = "mysql"
	default:
		return nil, errors.Newf("no database backend enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Store{
		settings: settings,
		dbType:   dbType,
		metrics:  metrics.OrNoOp(rec),
	}, nil
}

// Open connects and migrates the schema, retrying ConnectAttempts times
// ConnectDelaySeconds apart.
func (s *Store) Open(ctx context.Context) error {
	attempts := max(s.settings.ConnectAttempts, 1)
	delay := time.Duration(s.settings.ConnectDelaySeconds) * time.Second

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = s.connect(ctx); err == nil {
			return nil
		}
		GetLogger().Warn("database connection attempt failed",
			logger.String("db_type", s.dbType),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", attempts),
			logger.Error(err))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return persistenceError(ctx.Err(), "open", s.dbType)
		case <-time.After(delay):
		}
	}
	return err
}

// Reconnect closes the current connection, if any, and opens a new one.
func (s *Store) Reconnect(ctx context.Context) error {
	start := time.Now()
	s.closeConn()
	err := s.connect(ctx)
	s.observe(metrics.OpReconnect, start, err)
	return err
}

// connect opens and migrates a new connection and installs it.
func (s *Store) connect(ctx context.Context) error {
	start := time.Now()
	var (
		dialector gorm.Dialector
		info      string
		err       error
	)
	switch s.dbType {
	case "sqlite":
		dialector, info, err = sqliteDialector(&s.settings.SQLite)
	default:
		dialector, info, err = mysqlDialector(&s.settings.MySQL)
	}
	if err != nil {
		return persistenceError(err, "open", s.dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger().Module(s.dbType), DefaultSlowQueryThreshold),
	})
	if err != nil {
		return persistenceError(err, "open", s.dbType)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return persistenceError(err, "open", s.dbType)
	}
	if s.dbType == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout())
	err = sqlDB.PingContext(pctx)
	cancel()
	if err != nil {
		_ = sqlDB.Close()
		return persistenceError(err, "open", s.dbType)
	}

	if err := performAutoMigration(db.WithContext(ctx), s.dbType); err != nil {
		_ = sqlDB.Close()
		return err
	}

	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()
	if old != nil {
		closeDB(old)
	}

	GetLogger().Info("database connected",
		logger.String("db_type", s.dbType),
		logger.String("location", info),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Ping checks that the database answers within the store timeout.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, metrics.OpPing, func(db *gorm.DB) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(db.Statement.Context)
	})
}

// Close closes the connection. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return persistenceError(err, "close", s.dbType)
	}
	if err := sqlDB.Close(); err != nil {
		return persistenceError(err, "close", s.dbType)
	}
	GetLogger().Debug("database connection closed", logger.String("db_type", s.dbType))
	return nil
}

// Connected reports whether a connection is open.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// DBType returns "sqlite" or "mysql".
func (s *Store) DBType() string {
	return s.dbType
}

func (s *Store) closeConn() {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db != nil {
		closeDB(db)
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *Store) timeout() time.Duration {
	if t := s.settings.Timeout(); t > 0 {
		return t
	}
	return 5 * time.Second
}

// do runs fn against the open connection with the store timeout and
// records the outcome.
func (s *Store) do(ctx context.Context, operation string, fn func(db *gorm.DB) error) error {
	start := time.Now()

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	var err error
	if db == nil {
		err = ErrNotConnected
	} else {
		ctx, cancel := context.WithTimeout(ctx, s.timeout())
		err = fn(db.WithContext(ctx))
		cancel()
	}

	s.observe(operation, start, err)
	if err != nil {
		return persistenceError(err, operation, s.dbType)
	}
	return nil
}

func (s *Store) observe(operation string, start time.Time, err error) {
	s.metrics.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordOperation(operation, metrics.StatusError)
		s.metrics.RecordError(operation, categorizeError(err))
		return
	}
	s.metrics.RecordOperation(operation, metrics.StatusSuccess)
}
