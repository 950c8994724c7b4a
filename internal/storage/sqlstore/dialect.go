package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect covers the few places the three engines disagree: placeholders,
// auto-increment DDL and index creation.
type Dialect struct {
	Name   string // mysql | postgres | sqlite
	driver string
	ddl    []string
}

var (
	MySQL    = Dialect{Name: "mysql", driver: "mysql", ddl: mysqlDDL}
	Postgres = Dialect{Name: "postgres", driver: "postgres", ddl: postgresDDL}
	SQLite   = Dialect{Name: "sqlite", driver: "sqlite", ddl: sqliteDDL}
)

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unknown db driver %q", name)
}

// Rebind rewrites ? placeholders to $n for postgres. Queries here never
// carry a literal question mark.
func (d Dialect) Rebind(q string) string {
	if d.Name != "postgres" {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Open connects, pings and applies pool limits.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, Dialect{}, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("sql.Open %s: %w", d.Name, err)
	}
	if d.Name == "sqlite" {
		// one writer; concurrent writers would see SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s: %w", d.Name, err)
	}
	return db, d, nil
}
