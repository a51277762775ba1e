package main

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sentra-io/sentra-backend/internal/config"
	"github.com/sentra-io/sentra-backend/internal/database"
)

// Applies the SQL files under db/migrations in lexical order, tracking
// progress in schema_migrations. Files use goose-style Up/Down markers;
// only the Up section runs here.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		log.Fatalf("migrate: connect: %v", err)
	}
	defer db.Close()

	if err := ensureMigrationsTable(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	files := collectSQLFiles(filepath.Join("db", "migrations"))
	if len(files) == 0 {
		log.Println("migrate: no migration files found, nothing to do")
		return
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}

	for _, f := range files {
		name := filepath.Base(f)
		if applied[name] {
			continue
		}
		upSQL, err := extractUpSection(f)
		if err != nil {
			log.Fatalf("migrate: extract Up section from %s: %v", name, err)
		}
		if strings.TrimSpace(upSQL) == "" {
			log.Printf("migrate: skipping empty migration %s", name)
			markApplied(db, name)
			continue
		}
		log.Printf("migrate: applying %s", name)
		if err := execStatements(db, upSQL); err != nil {
			log.Fatalf("migrate: %s failed: %v", name, err)
		}
		markApplied(db, name)
	}
	log.Println("migrate: done")
}

func ensureMigrationsTable(db *sqlx.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version TEXT PRIMARY KEY,
            applied_at timestamptz NOT NULL DEFAULT now()
        )
    `)
	return err
}

func appliedMigrations(db *sqlx.DB) (map[string]bool, error) {
	rows, err := db.Queryx("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func markApplied(db *sqlx.DB, version string) {
	_, err := db.Exec("INSERT INTO schema_migrations(version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING", version, time.Now())
	if err != nil {
		log.Fatalf("migrate: mark %s applied: %v", version, err)
	}
}

func collectSQLFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

// extractUpSection returns the section between the Up marker and the Down
// marker. A file with no markers is treated as all-Up.
func extractUpSection(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(b)
	lower := strings.ToLower(content)
	upIdx := strings.Index(lower, "-- +goose up")
	if upIdx == -1 {
		return content, nil
	}
	rest := content[upIdx:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}
	if downIdx := strings.Index(strings.ToLower(rest), "-- +goose down"); downIdx != -1 {
		rest = rest[:downIdx]
	}
	return rest, nil
}

// execStatements splits on ';' and runs each statement. Good enough for
// the plain DDL in db/migrations; idempotent "already exists" errors are
// skipped so reruns are safe.
func execStatements(db *sqlx.DB, sql string) error {
	for _, raw := range strings.Split(sql, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate") {
				log.Printf("migrate: ignoring idempotent error: %v", err)
				continue
			}
			return fmt.Errorf("statement failed: %v", err)
		}
	}
	return nil
}
