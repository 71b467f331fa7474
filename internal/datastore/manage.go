package datastore

import (
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
)

// MaxColumnsForDetailedDisplay limits how many added column names are
// logged per table.
const MaxColumnsForDetailedDisplay = 5

// performAutoMigration migrates every table, logging what changed.
func performAutoMigration(db *gorm.DB, dbType string) error {
	migrationStart := time.Now()
	log := GetLogger().With(logger.String("db_type", dbType))
	log.Debug("starting database migration")

	tables := []struct {
		model any
		name  string
	}{
		{&Detection{}, "detections"},
		{&LearningState{}, "learning_states"},
		{&SystemLog{}, "system_logs"},
		{&LearningSession{}, "learning_sessions"},
		{&PerformanceMetric{}, "performance_metrics"},
	}

	for _, table := range tables {
		if err := migrateTable(db, table.model, table.name, dbType, log); err != nil {
			return err
		}
	}

	log.Debug("database migration completed",
		logger.Int("tables_migrated", len(tables)),
		logger.Duration("total_duration", time.Since(migrationStart)))
	return nil
}

// migrateTable migrates a single table and logs the columns it added.
func migrateTable(db *gorm.DB, model any, tableName, dbType string, log logger.Logger) error {
	tableStart := time.Now()
	tableExists := db.Migrator().HasTable(model)
	columnsBefore := tableColumns(db, model, tableExists)

	if err := db.AutoMigrate(model); err != nil {
		enhancedErr := errors.New(err).
			Component("datastore").
			Category(errors.CategoryPersistence).
			Context("operation", "auto_migrate_table").
			Context("db_type", dbType).
			Context("table", tableName).
			Build()
		log.Error("table migration failed",
			logger.String("table", tableName),
			logger.Error(enhancedErr))
		return enhancedErr
	}

	action := "unchanged"
	var added []string
	for _, col := range tableColumns(db, model, true) {
		if !slices.Contains(columnsBefore, col) {
			added = append(added, col)
		}
	}
	switch {
	case !tableExists:
		action = "created"
	case len(added) > 0:
		action = "updated"
	}

	fields := []logger.Field{
		logger.String("table", tableName),
		logger.String("action", action),
		logger.Duration("duration", time.Since(tableStart)),
	}
	if len(added) > 0 && tableExists {
		fields = append(fields, logger.Int("columns_added", len(added)))
		if len(added) <= MaxColumnsForDetailedDisplay {
			fields = append(fields, logger.Any("new_columns", added))
		}
	}
	log.Debug("table migration completed", fields...)
	return nil
}

// tableColumns returns the column names of an existing table.
func tableColumns(db *gorm.DB, model any, exists bool) []string {
	if !exists {
		return nil
	}
	cols, err := db.Migrator().ColumnTypes(model)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.Name())
	}
	return names
}
