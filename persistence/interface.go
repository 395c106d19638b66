// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/landfluss/models"
)

// Database stores the history of committed rounds.
type Database interface {
	SaveRound(ctx context.Context, rec models.RoundRecord) error
	ListRounds(ctx context.Context, gameID string) ([]models.RoundRecord, error)
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverGorm     = "gorm"
)

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrUnknownDriver  = fmt.Errorf("unknown database driver")
)

// Open connects to the history store of the given driver.
func Open(driver, dsn string) (Database, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, DriverPostgres:
		return NewSQLStore(driver, dsn)
	case DriverGorm:
		return NewGormPostgreSQL(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// PostgresDSN builds a lib/pq connection string.
func PostgresDSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}
