// Package migrate applies versioned SQL migrations to SQLite databases.
// Migrations are read from an fs.FS, usually embedded, with files named
// NNN_description.up.sql and NNN_description.down.sql.
package migrate

import (
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// Load reads every migration in dir of fsys, sorted by version
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory %s: %w", dir, err)
	}

	byVersion := make(map[int]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", e.Name(), err)
		}
		content, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Name: strings.ReplaceAll(m[2], "_", " ")}
			byVersion[version] = mig
		}
		if m[3] == "up" {
			mig.Up = string(content)
		} else {
			mig.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator handles the execution of migrations
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	table      string
}

// NewMigrator creates a migrator that records applied versions in table
func NewMigrator(db *sql.DB, migrations []Migration, table string) *Migrator {
	if table == "" {
		table = "schema_migrations"
	}
	return &Migrator{db: db, migrations: migrations, table: table}
}

func (m *Migrator) createTable() error {
	_, err := m.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, m.table))
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied migration version
func (m *Migrator) CurrentVersion() (int, error) {
	if err := m.createTable(); err != nil {
		return 0, err
	}
	var version int
	err := m.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.table)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// MigrateUp runs all pending migrations up to the latest version
func (m *Migrator) MigrateUp() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.execute(mig, true); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
	}
	return nil
}

// MigrateDown reverts applied migrations above target, newest first
func (m *Migrator) MigrateDown(target int) error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if target >= current {
		return fmt.Errorf("target version %d must be less than current version %d", target, current)
	}
	for i := len(m.migrations) - 1; i >= 0; i-- {
		mig := m.migrations[i]
		if mig.Version > target && mig.Version <= current {
			if err := m.execute(mig, false); err != nil {
				return fmt.Errorf("failed to rollback migration %d: %w", mig.Version, err)
			}
		}
	}
	return nil
}

// Pending returns migrations that haven't been applied yet
func (m *Migrator) Pending() ([]Migration, error) {
	current, err := m.CurrentVersion()
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// execute runs a single migration and its version bookkeeping in one transaction
func (m *Migrator) execute(mig Migration, up bool) error {
	stmt, record := mig.Up, fmt.Sprintf("INSERT INTO %s (version) VALUES (?)", m.table)
	if !up {
		stmt, record = mig.Down, fmt.Sprintf("DELETE FROM %s WHERE version = ?", m.table)
	}
	if stmt == "" {
		return fmt.Errorf("migration %d has no %s SQL", mig.Version, map[bool]string{true: "up", false: "down"}[up])
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(record, mig.Version); err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}
	return tx.Commit()
}
