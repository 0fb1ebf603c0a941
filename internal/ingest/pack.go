package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

const packSchema = `
CREATE TABLE IF NOT EXISTS windows (
	name TEXT PRIMARY KEY,
	tmin INTEGER NOT NULL,
	tmax INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS streamlines (
	t INTEGER PRIMARY KEY,
	window TEXT NOT NULL,
	record JSON NOT NULL
);
`

// PackWriter bulk-writes streamline windows into a SQLite pack.
type PackWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmtWindow *sql.Stmt
	stmtEntry  *sql.Stmt
	batchSize  int
	count      int
}

// NewPackWriter creates (or extends) the pack at dbPath.
func NewPackWriter(dbPath string) (*PackWriter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(packSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &PackWriter{db: db, batchSize: 500}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *PackWriter) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return err
	}
	w.stmtWindow, err = w.tx.Prepare(`INSERT OR REPLACE INTO windows (name, tmin, tmax) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	w.stmtEntry, err = w.tx.Prepare(`INSERT OR REPLACE INTO streamlines (t, window, record) VALUES (?, ?, ?)`)
	return err
}

func (w *PackWriter) commitTx() error {
	if w.stmtWindow != nil {
		_ = w.stmtWindow.Close()
	}
	if w.stmtEntry != nil {
		_ = w.stmtEntry.Close()
	}
	return w.tx.Commit()
}

// AddWindow writes one window and all of its entries.
func (w *PackWriter) AddWindow(win Window, entries map[int]any) error {
	if _, err := w.stmtWindow.Exec(win.Name, win.TMin, win.TMax); err != nil {
		return fmt.Errorf("insert window %s: %w", win.Name, err)
	}
	for t, geometry := range entries {
		record, err := json.Marshal(geometry)
		if err != nil {
			return fmt.Errorf("encode t=%d: %w", t, err)
		}
		if _, err := w.stmtEntry.Exec(t, win.Name, string(record)); err != nil {
			return fmt.Errorf("insert t=%d: %w", t, err)
		}
		w.count++
		if w.count >= w.batchSize {
			if err := w.commitTx(); err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			if err := w.beginTx(); err != nil {
				return fmt.Errorf("begin: %w", err)
			}
			w.count = 0
		}
	}
	return nil
}

func (w *PackWriter) Close() error {
	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		return err
	}
	return w.db.Close()
}

// PackStats summarizes a WritePack run.
type PackStats struct {
	Windows int
	Entries int
	Skipped int
}

// WritePack copies every window of src into the pack at dbPath. A window
// that cannot be read is logged and skipped.
func WritePack(ctx context.Context, src Corpus, dbPath string) (PackStats, error) {
	var stats PackStats
	windows, err := src.Windows(ctx)
	if err != nil {
		return stats, err
	}

	w, err := NewPackWriter(dbPath)
	if err != nil {
		return stats, err
	}
	for _, win := range windows {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return stats, err
		}
		entries, err := src.Load(ctx, win)
		if err != nil {
			slog.Warn("ingest: pack skipped window", "window", win.Name, "err", err)
			stats.Skipped++
			continue
		}
		if err := w.AddWindow(win, entries); err != nil {
			_ = w.Close()
			return stats, err
		}
		stats.Windows++
		stats.Entries += len(entries)
	}
	return stats, w.Close()
}

// PackCorpus reads windows back from a SQLite pack.
type PackCorpus struct {
	DBPath string
}

func (c *PackCorpus) Source() string { return c.DBPath }

func (c *PackCorpus) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", c.DBPath, err)
	}
	return db, nil
}

func (c *PackCorpus) Windows(ctx context.Context) ([]Window, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.QueryContext(ctx, "SELECT name, tmin, tmax FROM windows")
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []Window
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.Name, &w.TMin, &w.TMax); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	sortWindows(out)
	return out, nil
}

func (c *PackCorpus) Load(ctx context.Context, win Window) (map[int]any, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.QueryContext(ctx, "SELECT t, record FROM streamlines WHERE window = ?", win.Name)
	if err != nil {
		return nil, fmt.Errorf("query streamlines: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	out := make(map[int]any)
	for rows.Next() {
		var t int
		var raw string
		if err := rows.Scan(&t, &raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		geometry, err := oj.ParseString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse record t=%d: %w", t, err)
		}
		out[t] = geometry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
