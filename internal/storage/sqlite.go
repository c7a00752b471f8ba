package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the scan audit log and the snapshot
// cache of the remote collections.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "kursd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Scans ---

// SaveScan records one scan attempt, successful or failed.
func (s *Store) SaveScan(sc Scan) error {
	status := sc.Status
	if status == "" {
		status = "completed"
	}
	resolved := sc.ResolvedKeys
	if resolved == "" {
		resolved = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO scans (id, created_at, collection, source_type, extracted_json, merged_json, resolved_keys, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.CreatedAt.UTC().Format(time.RFC3339), sc.Collection, sc.SourceType,
		sc.ExtractedJSON, sc.MergedJSON, resolved, status, sc.Error,
	)
	return err
}

// GetScan returns one scan audit entry by id.
func (s *Store) GetScan(id string) (Scan, error) {
	var sc Scan
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, collection, source_type, extracted_json, merged_json, resolved_keys, status, error
		FROM scans WHERE id = ?`, id,
	).Scan(&sc.ID, &createdAt, &sc.Collection, &sc.SourceType, &sc.ExtractedJSON, &sc.MergedJSON, &sc.ResolvedKeys, &sc.Status, &sc.Error)
	if err == sql.ErrNoRows {
		return Scan{}, ErrNotFound
	}
	if err != nil {
		return Scan{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Scan{}, fmt.Errorf("parsing created_at: %w", err)
	}
	sc.CreatedAt = t
	return sc, nil
}

// GetRecentScans returns the newest scan entries, most recent first.
func (s *Store) GetRecentScans(limit int) ([]Scan, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, collection, source_type, extracted_json, merged_json, resolved_keys, status, error
		FROM scans ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Scan
	for rows.Next() {
		var sc Scan
		var createdAt string
		if err := rows.Scan(&sc.ID, &createdAt, &sc.Collection, &sc.SourceType, &sc.ExtractedJSON, &sc.MergedJSON, &sc.ResolvedKeys, &sc.Status, &sc.Error); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		sc.CreatedAt = t
		results = append(results, sc)
	}
	return results, rows.Err()
}

// --- Snapshot cache ---

// SaveSnapshot upserts the cached records of one collection.
func (s *Store) SaveSnapshot(collection string, records []byte, fetchedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (collection, records_json, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET records_json = excluded.records_json, fetched_at = excluded.fetched_at`,
		collection, string(records), fetchedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// LoadSnapshot returns the cached records of one collection and when they
// were fetched.
func (s *Store) LoadSnapshot(collection string) ([]byte, time.Time, error) {
	var recordsJSON, fetchedAt string
	err := s.db.QueryRow(
		"SELECT records_json, fetched_at FROM snapshots WHERE collection = ?", collection,
	).Scan(&recordsJSON, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parsing fetched_at: %w", err)
	}
	return []byte(recordsJSON), t, nil
}

// SnapshotAge returns the fetch time of the oldest cached collection, or
// ErrNotFound when the cache is empty.
func (s *Store) SnapshotAge() (time.Time, error) {
	var fetchedAt sql.NullString
	err := s.db.QueryRow("SELECT MIN(fetched_at) FROM snapshots").Scan(&fetchedAt)
	if err != nil {
		return time.Time{}, err
	}
	if !fetchedAt.Valid || fetchedAt.String == "" {
		return time.Time{}, ErrNotFound
	}
	t, err := time.Parse(time.RFC3339, fetchedAt.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing fetched_at: %w", err)
	}
	return t, nil
}
