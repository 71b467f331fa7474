package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/logger"
)

// mysqlDSN builds the driver DSN. Times are stored in UTC.
func mysqlDSN(m *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// mysqlDialector returns the dialector and a redacted description for logs.
func mysqlDialector(m *conf.MySQLSettings) (gorm.Dialector, string, error) {
	dsn := mysqlDSN(m)
	return mysql.Open(dsn), logger.RedactSensitiveData(dsn), nil
}
