package ledger

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/crypto"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type DBDriver string

const (
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// ErrMigrationChanged reports an applied migration whose embedded SQL no
// longer matches the recorded checksum.
var ErrMigrationChanged = errors.New("ledger: applied migration changed")

// Migration is one embedded schema step.
type Migration struct {
	Version  string
	SQL      string
	Checksum string
}

type dialect struct {
	dir         string
	table       string
	createTable string
	insert      string
	appliedAt   func(time.Time) any
}

var dialects = map[DBDriver]dialect{
	DBSQLite: {
		dir:   "migrations/sqlite",
		table: "schema_migrations",
		createTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT PRIMARY KEY,
  checksum TEXT NOT NULL DEFAULT '',
  applied_at TEXT NOT NULL
)`,
		insert:    `INSERT INTO schema_migrations(version, checksum, applied_at) VALUES(?, ?, ?) ON CONFLICT(version) DO NOTHING`,
		appliedAt: func(t time.Time) any { return FormatTime(t) },
	},
	DBPostgres: {
		dir:   "migrations/postgres",
		table: "readiness_schema_migrations",
		createTable: `CREATE TABLE IF NOT EXISTS readiness_schema_migrations (
  version TEXT PRIMARY KEY,
  checksum TEXT NOT NULL DEFAULT '',
  applied_at TIMESTAMPTZ NOT NULL
)`,
		insert:    `INSERT INTO readiness_schema_migrations(version, checksum, applied_at) VALUES($1, $2, $3) ON CONFLICT(version) DO NOTHING`,
		appliedAt: func(t time.Time) any { return t },
	},
}

func dialectFor(driver DBDriver) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported db driver: %s", driver)
	}
	return d, nil
}

// Migrations returns the embedded migrations for driver in version order.
func Migrations(driver DBDriver) ([]Migration, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	entries, err := migrationsFS.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		contents, err := migrationsFS.ReadFile(path.Join(d.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{
			Version:  strings.TrimSuffix(e.Name(), ".sql"),
			SQL:      string(contents),
			Checksum: crypto.DigestWithPrefix(contents),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies pending migrations in version order, each in its own
// transaction together with its bookkeeping row. Applied migrations are
// checked against their recorded checksum and never re-run.
func Migrate(db *sql.DB, driver DBDriver) error {
	if db == nil {
		return fmt.Errorf("missing db")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return err
	}
	migrations, err := Migrations(driver)
	if err != nil {
		return err
	}
	if _, err := db.Exec(d.createTable); err != nil {
		return fmt.Errorf("create %s: %w", d.table, err)
	}
	applied, err := appliedChecksums(db, d.table)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if sum, ok := applied[m.Version]; ok {
			if sum != "" && sum != m.Checksum {
				return fmt.Errorf("%w: %s", ErrMigrationChanged, m.Version)
			}
			continue
		}
		if err := applyMigration(db, d, m, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

func appliedChecksums(db *sql.DB, table string) (map[string]string, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT version, checksum FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		out[version] = checksum
	}
	return out, rows.Err()
}

// applyMigration claims the version first; a concurrent migrator that
// already claimed it leaves nothing to do.
func applyMigration(db *sql.DB, d dialect, m Migration, now time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	res, err := tx.Exec(d.insert, m.Version, m.Checksum, d.appliedAt(now))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", m.Version, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", m.Version, err)
	}
	return tx.Commit()
}
