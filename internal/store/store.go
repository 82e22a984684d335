// Package store provides the SQLite-backed engine holding imported profiles.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/flamekit/internal/engine"
	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// ErrProfileNotFound is returned when a profile id is not stored.
var ErrProfileNotFound = errors.New("profile not found")

// DB is the profile database. It implements engine.Engine.
type DB struct {
	db *sql.DB
}

var _ engine.Engine = (*DB)(nil)

// Open opens or creates the database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(2000)&_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening profile db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Acquire pins one pooled connection for the caller. TEMP tables created
// through the session are private to it.
func (d *DB) Acquire(ctx context.Context) (engine.Session, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

// SaveProfile stores a profile, replacing any previous frames under its id.
func (d *DB) SaveProfile(p model.Profile) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := tx.Exec("DELETE FROM frames WHERE profile_id = ?", p.ID); err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO profiles
		(profile_id, name, source_path, format, frame_count, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SourcePath, p.Format, len(p.Frames), now,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO frames
		(profile_id, id, parent_id, name, mapping, source_file, line,
		 self_samples, self_time, self_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range p.Frames {
		var parent sql.NullInt64
		if f.ParentID >= 0 {
			parent = sql.NullInt64{Int64: f.ParentID, Valid: true}
		}
		var line sql.NullInt64
		if f.Line > 0 {
			line = sql.NullInt64{Int64: int64(f.Line), Valid: true}
		}
		_, err = stmt.Exec(p.ID, f.ID, parent, f.Name, nullString(f.Mapping), nullString(f.SourceFile),
			line, f.Samples, f.TimeNs, f.Bytes)
		if err != nil {
			return fmt.Errorf("inserting frame %d: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// ListProfiles returns every stored profile, most recently imported first.
func (d *DB) ListProfiles() ([]model.ProfileInfo, error) {
	rows, err := d.db.Query(`SELECT profile_id, name, source_path, format, frame_count, imported_at
		FROM profiles ORDER BY imported_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var profiles []model.ProfileInfo
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetProfile returns one stored profile.
func (d *DB) GetProfile(id string) (model.ProfileInfo, error) {
	row := d.db.QueryRow(`SELECT profile_id, name, source_path, format, frame_count, imported_at
		FROM profiles WHERE profile_id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProfileInfo{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, err
}

// ProfileColumns returns the value columns holding any non-zero data for a profile.
func (d *DB) ProfileColumns(id string) ([]string, error) {
	var samples, timeNs, bytes float64
	err := d.db.QueryRow(`SELECT COALESCE(SUM(ABS(self_samples)), 0), COALESCE(SUM(ABS(self_time)), 0),
		COALESCE(SUM(ABS(self_bytes)), 0) FROM frames WHERE profile_id = ?`, id).Scan(&samples, &timeNs, &bytes)
	if err != nil {
		return nil, err
	}

	var cols []string
	if samples != 0 {
		cols = append(cols, metric.ColumnSamples)
	}
	if timeNs != 0 {
		cols = append(cols, metric.ColumnTime)
	}
	if bytes != 0 {
		cols = append(cols, metric.ColumnBytes)
	}
	return cols, nil
}

// Registry returns the metrics that have data for a stored profile.
func (d *DB) Registry(id string) (*metric.Registry, error) {
	if _, err := d.GetProfile(id); err != nil {
		return nil, err
	}
	cols, err := d.ProfileColumns(id)
	if err != nil {
		return nil, fmt.Errorf("reading profile columns: %w", err)
	}
	if len(cols) == 0 {
		cols = []string{metric.ColumnSamples}
	}
	return metric.ForProfile(id, cols...), nil
}

// DeleteProfile removes a profile and its frames.
func (d *DB) DeleteProfile(id string) error {
	_, err := d.db.Exec("DELETE FROM profiles WHERE profile_id = ?", id)
	return err
}

// ProfileCount returns the number of stored profiles.
func (d *DB) ProfileCount() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(r rowScanner) (model.ProfileInfo, error) {
	var p model.ProfileInfo
	var sourcePath sql.NullString
	var importedAt string
	if err := r.Scan(&p.ID, &p.Name, &sourcePath, &p.Format, &p.FrameCount, &importedAt); err != nil {
		return p, err
	}
	if sourcePath.Valid {
		p.SourcePath = sourcePath.String
	}
	p.ImportedAt, _ = time.Parse(time.RFC3339, importedAt)
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
