// Package store persists the calculation history in SQLite so that it
// survives between CLI invocations and server restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/rshade/eap-emissions-calculator/internal/emissions"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	position        INTEGER NOT NULL,
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL,
	source_name     TEXT NOT NULL,
	unit            TEXT NOT NULL,
	energy_factor   REAL NOT NULL,
	emission_factor REAL NOT NULL,
	quantity        REAL NOT NULL
);`

// Store reads and writes the history.
type Store interface {
	Load(ctx context.Context) ([]emissions.Record, error)
	Save(ctx context.Context, records []emissions.Record) error
	Clear(ctx context.Context) error
	Close() error
}

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for a private in-memory database.
func Open(path string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	logger.Debug().Str("path", path).Msg("history store opened")
	return &SQLite{db: db, path: path, logger: logger}, nil
}

// Load returns the stored records in their original order. The source
// factors are those recorded at calculation time.
func (s *SQLite) Load(ctx context.Context) ([]emissions.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_id, source_name, unit,
		energy_factor, emission_factor, quantity FROM records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	var records []emissions.Record
	for rows.Next() {
		var (
			id       string
			src      emissions.EnergySource
			quantity float64
		)
		if err := rows.Scan(&id, &src.ID, &src.Name, &src.Unit,
			&src.EnergyFactor, &src.EmissionFactor, &quantity); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r := emissions.NewRecord(src, quantity)
		r.ID = id
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Save replaces the stored history with records in one transaction.
func (s *SQLite) Save(ctx context.Context, records []emissions.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (position, id, source_id,
		source_name, unit, energy_factor, emission_factor, quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, i, r.ID, r.Source.ID, r.Source.Name, r.Source.Unit,
			r.Source.EnergyFactor, r.Source.EmissionFactor, r.Quantity); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	s.logger.Debug().Int("records", len(records)).Msg("history saved")
	return nil
}

// Clear removes all stored records.
func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
