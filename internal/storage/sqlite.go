package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/capsule/internal/memory"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding memories, plus a directory of
// uploaded photos.
type Store struct {
	db      *sql.DB
	uploads string
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests); photos
// are not persisted in that mode.
func Open(dataDir string) (*Store, error) {
	var dsn, uploads string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "capsule.db")
		uploads = filepath.Join(dataDir, "uploads")
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

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, uploads: uploads}
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

// UploadsDir returns the photo directory, or "" when photos are not persisted.
func (s *Store) UploadsDir() string {
	return s.uploads
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
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

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Memories ---

const memoryColumns = `id, title, description, date, place, mood, image`

// SaveMemory stores a validated candidate and returns the stored record.
// An embedded photo is written to the uploads directory and the record keeps
// its served path; if that write fails the record is kept without a photo.
func (s *Store) SaveMemory(c memory.Candidate) (memory.Record, error) {
	rec := c.Record(0)

	res, err := s.db.Exec(`
		INSERT INTO memories (title, description, date, place, mood, image, created_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		rec.Title, rec.Desc, rec.Date, rec.Place, string(rec.Mood),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return memory.Record{}, fmt.Errorf("inserting memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memory.Record{}, fmt.Errorf("reading memory id: %w", err)
	}
	rec.ID = id

	switch rec.Image.Kind {
	case memory.EmbeddedImage:
		path, err := s.writeUpload(id, rec.Image)
		if err != nil {
			slog.Warn("dropping memory photo", "id", id, "error", err)
			rec.Image = memory.Image{}
			break
		}
		rec.Image = memory.Remote(path)
	case memory.RemoteImage:
		// Only paths we serve ourselves are meaningful.
		if !strings.HasPrefix(rec.Image.Path, UploadsPrefix) {
			rec.Image = memory.Image{}
		}
	}

	if !rec.Image.IsZero() {
		if _, err := s.db.Exec(`UPDATE memories SET image = ? WHERE id = ?`, rec.Image.Path, id); err != nil {
			return memory.Record{}, fmt.Errorf("recording memory photo: %w", err)
		}
	}
	return rec, nil
}

func (s *Store) writeUpload(id int64, img memory.Image) (string, error) {
	if s.uploads == "" {
		return "", fmt.Errorf("photo storage disabled")
	}
	if err := os.MkdirAll(s.uploads, 0o755); err != nil {
		return "", fmt.Errorf("creating uploads directory: %w", err)
	}
	name := fmt.Sprintf("%d.%s", id, img.Ext())
	if err := os.WriteFile(filepath.Join(s.uploads, name), img.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing photo: %w", err)
	}
	return UploadsPrefix + name, nil
}

// GetMemory returns a single record by id.
func (s *Store) GetMemory(id int64) (memory.Record, error) {
	row := s.db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	rec, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return memory.Record{}, ErrNotFound
	}
	return rec, err
}

// ListMemories returns every record in insertion order.
func (s *Store) ListMemories() ([]memory.Record, error) {
	rows, err := s.db.Query(`SELECT ` + memoryColumns + ` FROM memories ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []memory.Record
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// CountMemories returns the number of stored records.
func (s *Store) CountMemories() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// DeleteMemory removes a record and its uploaded photo, if any.
func (s *Store) DeleteMemory(id int64) error {
	rec, err := s.GetMemory(id)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if rec.Image.Kind == memory.RemoteImage && s.uploads != "" && strings.HasPrefix(rec.Image.Path, UploadsPrefix) {
		name := filepath.Base(strings.TrimPrefix(rec.Image.Path, UploadsPrefix))
		if err := os.Remove(filepath.Join(s.uploads, name)); err != nil && !os.IsNotExist(err) {
			slog.Warn("removing memory photo", "id", id, "error", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (memory.Record, error) {
	var rec memory.Record
	var mood string
	var image sql.NullString
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Desc, &rec.Date, &rec.Place, &mood, &image); err != nil {
		return memory.Record{}, err
	}
	rec.Mood = memory.Mood(mood)
	if image.Valid && image.String != "" {
		rec.Image = memory.Remote(image.String)
	}
	return rec, nil
}
