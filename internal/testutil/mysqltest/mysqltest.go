// Package mysqltest provisions throwaway MySQL or TiDB databases for
// integration tests. Tests skip unless FASTPRELOAD_TEST_MYSQL_HOST is set.
package mysqltest

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"fastpreload/internal/config"
	"fastpreload/internal/sqlutil"
)

// Env is the connection information read from the environment.
type Env struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	TLSMode  string
}

// TestDB is an isolated database dropped when the test ends.
type TestDB struct {
	DB           *sql.DB
	DatabaseName string
	env          Env
}

// NewTestDB creates a uniquely named database for t and registers its
// teardown.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	env := envFromOS(t)
	dbName := fmt.Sprintf("fp_%s_%d", sanitizeName(t.Name()), time.Now().UnixMilli())
	if !isValidDatabaseName(dbName) {
		t.Fatalf("invalid database name generated: %s", dbName)
	}

	bootstrap := open(t, env.dsn(""))
	if _, err := bootstrap.Exec("CREATE DATABASE IF NOT EXISTS " + sqlutil.QuoteIdentifier(dbName)); err != nil {
		_ = bootstrap.Close()
		t.Fatalf("failed to create test database %s: %v", dbName, err)
	}
	if err := bootstrap.Close(); err != nil {
		t.Logf("warning: failed to close bootstrap connection: %v", err)
	}

	tdb := &TestDB{DB: open(t, env.dsn(dbName)), DatabaseName: dbName, env: env}
	t.Cleanup(func() { tdb.Teardown(t) })
	return tdb
}

// Config returns database settings pointing at the test database.
func (tdb *TestDB) Config() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:   tdb.env.Driver,
		Host:     tdb.env.Host,
		Port:     tdb.env.Port,
		User:     tdb.env.User,
		Password: tdb.env.Password,
		Database: tdb.DatabaseName,
		TLS:      config.DatabaseTLSConfig{Mode: tdb.env.TLSMode},
		Pool:     config.PoolConfig{MaxOpen: 5, MaxIdle: 2, MaxLifetime: 5 * time.Minute},
	}
}

// Exec runs semicolon separated SQL statements and fails t on the first error.
func (tdb *TestDB) Exec(t *testing.T, script string) {
	t.Helper()
	for i, stmt := range splitSQL(script) {
		if _, err := tdb.DB.Exec(stmt); err != nil {
			t.Fatalf("statement %d failed: %v\nStatement: %s", i+1, err, stmt)
		}
	}
}

// Teardown drops the database and closes the connection.
func (tdb *TestDB) Teardown(t *testing.T) {
	t.Helper()
	if tdb.DB == nil {
		return
	}
	if isValidDatabaseName(tdb.DatabaseName) {
		if _, err := tdb.DB.Exec("DROP DATABASE IF EXISTS " + sqlutil.QuoteIdentifier(tdb.DatabaseName)); err != nil {
			t.Logf("warning: failed to drop test database %s: %v", tdb.DatabaseName, err)
		}
	}
	if err := tdb.DB.Close(); err != nil {
		t.Logf("warning: failed to close test database connection: %v", err)
	}
}

func envFromOS(t *testing.T) Env {
	t.Helper()

	env := Env{
		Driver:   os.Getenv("FASTPRELOAD_TEST_MYSQL_DRIVER"),
		Host:     os.Getenv("FASTPRELOAD_TEST_MYSQL_HOST"),
		User:     os.Getenv("FASTPRELOAD_TEST_MYSQL_USER"),
		Password: os.Getenv("FASTPRELOAD_TEST_MYSQL_PASSWORD"),
		TLSMode:  os.Getenv("FASTPRELOAD_TEST_MYSQL_TLS_MODE"),
	}
	if env.Host == "" || env.User == "" {
		t.Skip("MySQL credentials not set. Set FASTPRELOAD_TEST_MYSQL_HOST and FASTPRELOAD_TEST_MYSQL_USER to run integration tests")
	}
	if env.Driver == "" {
		env.Driver = "mysql"
	}
	env.Port = 3306
	if env.Driver == "tidb" {
		env.Port = 4000
	}
	if raw := os.Getenv("FASTPRELOAD_TEST_MYSQL_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			t.Fatalf("invalid FASTPRELOAD_TEST_MYSQL_PORT %q: %v", raw, err)
		}
		env.Port = port
	}
	return env
}

func (e Env) dsn(database string) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", e.User, e.Password, e.Host, e.Port, database)
	switch e.TLSMode {
	case "", "off":
	case "skip-verify":
		dsn += "&tls=skip-verify"
	default:
		dsn += "&tls=true"
	}
	return dsn
}

func open(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open MySQL connection: %v", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("failed to ping MySQL: %v", err)
	}
	return db
}

// sanitizeName makes a test name safe for use in a database name. The
// result leaves room for the prefix and timestamp under the 64 character
// limit.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, ch := range name {
		if isValidDatabaseChar(ch) {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}

// splitSQL splits on semicolons. Semicolons inside literals are not supported.
func splitSQL(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidDatabaseName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, ch := range name {
		if !isValidDatabaseChar(ch) {
			return false
		}
	}
	return true
}

func isValidDatabaseChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '_'
}
