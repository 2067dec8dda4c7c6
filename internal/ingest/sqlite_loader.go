package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agentic-research/tarim/api"

	_ "modernc.org/sqlite"
)

// StreamSQLite iterates over the results table of a SQLite database in
// insertion order, calling fn with each row's id and raw JSON record. Only
// one row is alive at a time, keeping memory usage constant.
func StreamSQLite(ctx context.Context, dbPath string, fn func(id string, raw []byte) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.QueryContext(ctx, "SELECT id, record FROM results ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := fn(id, raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SQLiteSource reads feed records from a SQLite results(id, record) table,
// one JSON record per row.
type SQLiteSource struct {
	Path string
	Log  *slog.Logger
}

func (s *SQLiteSource) String() string { return s.Path }

// Records decodes every row. Rows that are not valid records are logged and
// skipped.
func (s *SQLiteSource) Records(ctx context.Context) ([]api.RawRecord, error) {
	log := s.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var records []api.RawRecord
	err := StreamSQLite(ctx, s.Path, func(id string, raw []byte) error {
		var r api.RawRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			log.Error("skip sqlite row", "row", id, "err", err)
			return nil
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("loaded records", "db", s.Path, "records", len(records))
	return records, nil
}
