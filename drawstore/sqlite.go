package drawstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS draws (
	parameter TEXT NOT NULL,
	draw INTEGER NOT NULL,
	idx INTEGER NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (parameter, draw, idx)
)`
	sqliteSelect = `SELECT parameter, draw, idx, value FROM draws ORDER BY parameter, draw, idx`
	sqliteInsert = `INSERT INTO draws (parameter, draw, idx, value) VALUES (?, ?, ?, ?)`
)

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite db, %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping sqlite db, %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create draws table, %w", err)
	}
	return db, nil
}

type sqliteCell struct {
	draw, idx int
	value     float64
}

// OpenSQLite loads every draw stored in the draws table of a SQLite database
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, sqliteSelect)
	if err != nil {
		return nil, fmt.Errorf("unable to query draws, %w", err)
	}
	defer rows.Close()

	cells := make(map[string][]sqliteCell)
	dims := make(map[string]int)
	var numDraws int
	for rows.Next() {
		var (
			name string
			c    sqliteCell
		)
		if err := rows.Scan(&name, &c.draw, &c.idx, &c.value); err != nil {
			return nil, fmt.Errorf("unable to scan draw, %w", err)
		}
		if c.draw < 0 || c.idx < 0 {
			return nil, fmt.Errorf("%q has negative draw %d or index %d, %w", name, c.draw, c.idx, ErrDrawOutOfRange)
		}
		cells[name] = append(cells[name], c)
		dims[name] = max(dims[name], c.idx+1)
		numDraws = max(numDraws, c.draw+1)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate draws, %w", err)
	}
	if numDraws == 0 {
		return nil, ErrNoDraws
	}

	params := make(map[string]*mat.Dense, len(cells))
	for name, cs := range cells {
		m := mat.NewDense(numDraws, dims[name], nil)
		for _, c := range cs {
			m.Set(c.draw, c.idx, c.value)
		}
		params[name] = m
	}
	return New(numDraws, params)
}

// SaveSQLite replaces the contents of the draws table with the store
func SaveSQLite(ctx context.Context, path string, s *Store) error {
	if s == nil {
		return ErrNoDraws
	}
	db, err := openSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction, %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM draws`); err != nil {
		return fmt.Errorf("unable to clear draws, %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return fmt.Errorf("unable to prepare insert, %w", err)
	}
	defer stmt.Close()

	for _, name := range s.Names() {
		m := s.params[name]
		r, c := m.Dims()
		for d := 0; d < r; d++ {
			for j := 0; j < c; j++ {
				if _, err := stmt.ExecContext(ctx, name, d, j, m.At(d, j)); err != nil {
					return fmt.Errorf("unable to insert %q draw %d index %d, %w", name, d, j, err)
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit draws, %w", err)
	}
	return nil
}
