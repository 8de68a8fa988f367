// Package sqlrepo implements the repositories on database/sql, for SQLite
// (modernc.org/sqlite, driver "sqlite") and PostgreSQL (lib/pq, driver
// "postgres"). Identifiers are stored as ObjectID hex strings and times as
// unix milliseconds, so the same schema works on both.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/cases"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DB struct {
	*sql.DB
	driver string
}

// Open connects to dsn with the given driver and creates the schema.
// SQLite is limited to a single connection, so writers queue up instead of
// failing with "database is locked".
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: driver}
	if err := db.InitSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return db, nil
}

func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('organizer', 'participant')),
		created_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		organizer_id TEXT NOT NULL REFERENCES users(id),
		title TEXT NOT NULL,
		title_fold TEXT NOT NULL,
		description TEXT NOT NULL,
		start_at BIGINT NOT NULL,
		end_at BIGINT NOT NULL,
		total_slots INTEGER NOT NULL,
		available_slots INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		CHECK (end_at > start_at),
		CHECK (available_slots >= 0 AND available_slots <= total_slots)
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at BIGINT NOT NULL,
		UNIQUE (event_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions (user_id);
	CREATE INDEX IF NOT EXISTS idx_events_start_at ON events (start_at);
	CREATE INDEX IF NOT EXISTS idx_events_organizer_id ON events (organizer_id);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions (user_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// rebind turns "?" placeholders into "$n" for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// forUpdate locks the selected rows on PostgreSQL. SQLite already
// serializes writers through its single connection.
func (db *DB) forUpdate() string {
	if db.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parseID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, fmt.Errorf("invalid stored id %q: %w", hex, err)
	}
	return id, nil
}

// fold is the case-insensitive form of s used by title search.
// A Caser keeps state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s anywhere, with LIKE
// metacharacters in s taken literally (ESCAPE '\').
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(fold(s)) + "%"
}
