package migrator

import (
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
)

// advisoryLockKey serializes concurrent migrators on postgres
const advisoryLockKey = 732104455

// RunMigrations applies every pending migration found in fsys.
// Migrations are applied in version order and each one must have its
// dependencies applied first.
func RunMigrations(db *sql.DB, driver string, fsys fs.FS) error {
	if err := createSchemaTable(db); err != nil {
		return fmt.Errorf("failed to create schema table: %w", err)
	}

	if err := acquireLock(db, driver); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer releaseLock(db, driver)

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := GetAppliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	appliedSet := make(map[int]bool, len(applied))
	maxApplied := 0
	for _, v := range applied {
		appliedSet[v] = true
		if v > maxApplied {
			maxApplied = v
		}
	}

	for _, m := range migrations {
		if appliedSet[m.Version] {
			continue
		}
		// can't go backwards
		if m.Version < maxApplied {
			return fmt.Errorf("cannot apply migration %d: version %d is already applied (migrations must be applied in order)", m.Version, maxApplied)
		}
		for _, dep := range m.Dependencies {
			if !appliedSet[dep] {
				return fmt.Errorf("migration %d depends on version %d which has not been applied", m.Version, dep)
			}
		}

		if err := applyMigration(db, driver, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		appliedSet[m.Version] = true
	}

	return nil
}

// GetCurrentVersion returns the highest applied migration version, or 0.
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		if isMissingTable(err) {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// GetAppliedMigrations returns all applied versions in ascending order.
func GetAppliedMigrations(db *sql.DB) ([]int, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		if isMissingTable(err) {
			return []int{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	versions := []int{}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

func isMissingTable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "does not exist")
}

func createSchemaTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func applyMigration(db *sql.DB, driver string, m Migration) error {
	record := "INSERT INTO schema_migrations (version) VALUES (" + placeholder(driver, 1) + ")"

	if m.NoTransaction {
		if _, err := db.Exec(m.UpSQL); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
		if _, err := db.Exec(record, m.Version); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(m.UpSQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute SQL: %w", err)
	}

	if _, err := tx.Exec(record, m.Version); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// placeholder returns the nth bind parameter for driver
func placeholder(driver string, n int) string {
	switch driver {
	case "postgres", "postgresql":
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

func acquireLock(db *sql.DB, driver string) error {
	switch driver {
	case "postgres", "postgresql":
		_, err := db.Exec(fmt.Sprintf("SELECT pg_advisory_lock(%d)", advisoryLockKey))
		return err
	default:
		// SQLite uses automatic file-level locking
		return nil
	}
}

func releaseLock(db *sql.DB, driver string) error {
	switch driver {
	case "postgres", "postgresql":
		_, err := db.Exec(fmt.Sprintf("SELECT pg_advisory_unlock(%d)", advisoryLockKey))
		return err
	default:
		return nil
	}
}
