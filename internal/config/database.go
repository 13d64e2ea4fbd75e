// internal/config/database.go
package config

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver       string `validate:"oneof=sqlite postgres"`
	Path         string // sqlite file
	RawDSN       string // overrides the assembled DSN when set
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string `validate:"omitempty,oneof=silent error warn info"`
}

func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" && d.RawDSN == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	case DriverPostgres:
		if d.RawDSN == "" && d.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", d.Driver)
	}
	return nil
}

// DSN builds the connection string for the configured driver. SQLite
// connections always enable foreign keys and a busy timeout, and store
// times in a sortable text layout.
func (d *DatabaseConfig) DSN() string {
	if d.RawDSN != "" {
		return d.RawDSN
	}

	if d.Driver == DriverPostgres {
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
		)
	}

	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_time_format", "sqlite")

	path := d.Path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path + "?" + params.Encode()
}
