// Package automigrate runs pending database migrations on startup.
package automigrate

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Run applies all pending up migrations from the given directory.
func Run(db *sql.DB, migrationsDir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}

	// A schema_migrations table created by the external migrate CLI carries a
	// NOT NULL dirty column; inserts must satisfy it.
	hasDirty, err := hasDirtyColumn(db)
	if err != nil {
		return fmt.Errorf("inspect schema_migrations: %w", err)
	}
	insertStmt := "INSERT INTO schema_migrations (version) VALUES ($1)"
	if hasDirty {
		insertStmt = "INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)"
	}

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	type migration struct {
		name    string
		version int
	}
	var pending []migration
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) == 0 {
			continue
		}
		ver, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		if !applied[ver] {
			pending = append(pending, migration{name: name, version: ver})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	if len(pending) == 0 {
		log.Printf("✅ Database up to date (%d migrations applied)", len(applied))
		return nil
	}

	log.Printf("📦 Applying %d pending migration(s)...", len(pending))
	for _, m := range pending {
		name := m.name
		version := m.version
		path := filepath.Join(migrationsDir, name)
		sqlBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", name, err)
		}

		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			// A partially applied schema from an earlier run surfaces as
			// "already exists"; record the version instead of retrying forever.
			errStr := err.Error()
			if strings.Contains(errStr, "already exists") || strings.Contains(errStr, "duplicate key") {
				log.Printf("  ⏭️  Skipped (already applied): %d", version)
				if _, recordErr := db.Exec(insertStmt+" ON CONFLICT DO NOTHING", version); recordErr != nil {
					return fmt.Errorf("record skipped %s: %w", name, recordErr)
				}
				continue
			}
			return fmt.Errorf("apply %s: %w", name, err)
		}

		if _, err := tx.Exec(insertStmt, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record %s: %w", name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}

		log.Printf("  ✅ Applied: %d", version)
	}

	log.Printf("✅ All migrations applied (%d new, %d total)", len(pending), len(applied)+len(pending))
	return nil
}

func hasDirtyColumn(db *sql.DB) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'schema_migrations' AND column_name = 'dirty'
		)
	`).Scan(&exists)
	return exists, err
}
