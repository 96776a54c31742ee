package calibration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a profile does not exist.
var ErrNotFound = errors.New("calibration: profile not found")

// Profile is a named, persisted calibration.
type Profile struct {
	Name      string    `json:"name"`
	Transform Affine    `json:"transform"`
	Residual  float64   `json:"residual"`
	Points    int       `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists calibration profiles in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the profile database at path. Use ":memory:"
// for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate calibration store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS calibration_profiles (
        name TEXT PRIMARY KEY,
        a REAL NOT NULL,
        b REAL NOT NULL,
        c REAL NOT NULL,
        d REAL NOT NULL,
        e REAL NOT NULL,
        f REAL NOT NULL,
        residual REAL NOT NULL DEFAULT 0,
        points INTEGER NOT NULL DEFAULT 0,
        updated_at TEXT NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save inserts or replaces a profile.
func (s *Store) Save(ctx context.Context, p Profile) error {
	if p.Name == "" {
		return errors.New("calibration: profile name is required")
	}
	if !p.Transform.Valid() {
		return ErrDegenerate
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	t := p.Transform
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO calibration_profiles (name, a, b, c, d, e, f, residual, points, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            a = excluded.a, b = excluded.b, c = excluded.c,
            d = excluded.d, e = excluded.e, f = excluded.f,
            residual = excluded.residual, points = excluded.points,
            updated_at = excluded.updated_at`,
		p.Name, t.A, t.B, t.C, t.D, t.E, t.F, p.Residual, p.Points, p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile %q: %w", p.Name, err)
	}
	return nil
}

// Load returns the named profile or ErrNotFound.
func (s *Store) Load(ctx context.Context, name string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT name, a, b, c, d, e, f, residual, points, updated_at
        FROM calibration_profiles
        WHERE name = ?`, name)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, err
}

// List returns all profiles, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT name, a, b, c, d, e, f, residual, points, updated_at
        FROM calibration_profiles
        ORDER BY updated_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes the named profile. Deleting a missing profile returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calibration_profiles WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (Profile, error) {
	var p Profile
	var updated string
	t := &p.Transform
	if err := row.Scan(&p.Name, &t.A, &t.B, &t.C, &t.D, &t.E, &t.F, &p.Residual, &p.Points, &updated); err != nil {
		return Profile{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Profile{}, fmt.Errorf("calibration: bad timestamp for %q: %w", p.Name, err)
	}
	p.UpdatedAt = ts
	return p, nil
}
