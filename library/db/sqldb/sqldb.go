// Package sqldb dials the relational database behind the file registry.
package sqldb

import (
	"context"
	"strconv"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	// TypePostgres selects the postgres dialector.
	TypePostgres = "postgres"
	// TypeSQLite selects the sqlite dialector.
	TypeSQLite = "sqlite"

	defaultPostgresPort = 5432
)

// DialInfo relational db dial info
type DialInfo struct {
	Type string
	Addr,
	DBName,
	User,
	Pwd string
	Port int
	// SQLitePath is the database file, or a `file:...` DSN, used when Type is sqlite.
	SQLitePath string
	Debug      bool
}

// BuildPostgresDSN builds a PostgreSQL DSN.
func BuildPostgresDSN(dialInfo DialInfo) string {
	port := dialInfo.Port
	if port <= 0 {
		port = defaultPostgresPort
	}

	return "host=" + dialInfo.Addr +
		" user=" + dialInfo.User +
		" password=" + dialInfo.Pwd +
		" dbname=" + dialInfo.DBName +
		" port=" + strconv.Itoa(port) +
		" sslmode=disable TimeZone=UTC"
}

// NewDB opens a gorm connection for the configured dialect and verifies it with a ping.
func NewDB(ctx context.Context, dialInfo DialInfo) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(dialInfo.Type)) {
	case "", TypePostgres:
		dialector = postgres.Open(BuildPostgresDSN(dialInfo))
	case TypeSQLite:
		if strings.TrimSpace(dialInfo.SQLitePath) == "" {
			return nil, errors.New("sqlite path is required")
		}
		dialector = sqlite.Open(dialInfo.SQLitePath)
	default:
		return nil, errors.Errorf("unsupported db type %q", dialInfo.Type)
	}

	logLevel := gormLogger.Warn
	if dialInfo.Debug {
		logLevel = gormLogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newTruncatingParamsLogger(gormLogger.Default.LogMode(logLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}
	if err = sqlDB.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping db")
	}

	// config db
	sqlDB.SetMaxIdleConns(6)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
