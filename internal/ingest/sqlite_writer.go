package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentic-research/tarim/api"

	_ "modernc.org/sqlite"
)

const exportSchema = `
CREATE TABLE entries (
	position INTEGER PRIMARY KEY,
	id INTEGER NOT NULL,
	nc TEXT NOT NULL,
	parent_id INTEGER,
	parent_chain JSON NOT NULL,
	path_en TEXT, path_ro TEXT, path_ru TEXT,
	name_en TEXT, name_ro TEXT, name_ru TEXT,
	info_en TEXT, info_ro TEXT, info_ru TEXT,
	children_count INTEGER NOT NULL,
	import_acts JSON NOT NULL,
	export_acts JSON NOT NULL,
	transit_acts JSON NOT NULL,
	valid_from TEXT,
	valid_to TEXT,
	tax_info JSON
);
CREATE TABLE edges (
	parent_id INTEGER,
	child_id INTEGER NOT NULL,
	position INTEGER NOT NULL
);
`

// SQLiteWriter exports the views into a SQLite file: the flat view as the
// entries table in flat order, and the tree as parent/child edges where
// position is the sibling index. Top-level nodes have a NULL parent.
type SQLiteWriter struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtEntry *sql.Stmt
	stmtEdge  *sql.Stmt
	batchSize int
	count     int
	path      string
	tmp       string
}

// NewSQLiteWriter starts an export to dbPath. The database is built under a
// temporary name and renamed over dbPath by Publish.
func NewSQLiteWriter(dbPath string) (*SQLiteWriter, error) {
	tmp := dbPath + ".tmp"
	_ = os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", tmp, err)
	}

	// Bulk insert tuning; the file is discarded on failure anyway.
	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(exportSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &SQLiteWriter{db: db, batchSize: 10000, path: dbPath, tmp: tmp}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return err
	}
	w.stmtEntry, err = w.tx.Prepare(`
		INSERT INTO entries (position, id, nc, parent_id, parent_chain,
			path_en, path_ro, path_ru, name_en, name_ro, name_ru, info_en, info_ro, info_ru,
			children_count, import_acts, export_acts, transit_acts, valid_from, valid_to, tax_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	w.stmtEdge, err = w.tx.Prepare(`INSERT INTO edges (parent_id, child_id, position) VALUES (?, ?, ?)`)
	return err
}

func (w *SQLiteWriter) commitTx() error {
	if w.stmtEntry != nil {
		_ = w.stmtEntry.Close()
	}
	if w.stmtEdge != nil {
		_ = w.stmtEdge.Close()
	}
	return w.tx.Commit()
}

func (w *SQLiteWriter) tick() error {
	w.count++
	if w.count < w.batchSize {
		return nil
	}
	w.count = 0
	if err := w.commitTx(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return w.beginTx()
}

// WriteFlat inserts the flat view rows.
func (w *SQLiteWriter) WriteFlat(entries []api.FlatEntry) error {
	for i := range entries {
		e := &entries[i]
		chain, err := json.Marshal(e.ParentChain)
		if err != nil {
			return err
		}
		var tax []byte
		if e.TaxInfo != nil {
			if tax, err = json.Marshal(e.TaxInfo); err != nil {
				return err
			}
		}
		_, err = w.stmtEntry.Exec(i, e.ID, e.NC, e.ParentID, string(chain),
			e.PathEN, e.PathRO, e.PathRU, e.NameEN, e.NameRO, e.NameRU, e.InfoEN, e.InfoRO, e.InfoRU,
			e.ChildrenCount, actsJSON(e.ImportActs), actsJSON(e.ExportActs), actsJSON(e.TransitActs),
			e.ValidFrom, e.ValidTo, nullableJSON(tax))
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", e.ID, err)
		}
		if err := w.tick(); err != nil {
			return err
		}
	}
	return nil
}

// WriteTree inserts one edge per tree node.
func (w *SQLiteWriter) WriteTree(tree []*api.TreeNode) error {
	type item struct {
		parent *int64
		nodes  []*api.TreeNode
	}
	queue := []item{{nil, tree}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		for pos, n := range it.nodes {
			if _, err := w.stmtEdge.Exec(it.parent, n.ID, pos); err != nil {
				return fmt.Errorf("insert edge %d: %w", n.ID, err)
			}
			if err := w.tick(); err != nil {
				return err
			}
			if len(n.Children) > 0 {
				id := n.ID
				queue = append(queue, item{&id, n.Children})
			}
		}
	}
	return nil
}

// Close commits and indexes the export. The file stays under its temporary
// name until Publish.
func (w *SQLiteWriter) Close() error {
	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		_ = os.Remove(w.tmp)
		return err
	}
	for _, idx := range []string{
		`CREATE INDEX idx_entries_nc ON entries(nc)`,
		`CREATE INDEX idx_entries_id ON entries(id)`,
		`CREATE INDEX idx_edges_parent ON edges(parent_id, position)`,
	} {
		if _, err := w.db.Exec(idx); err != nil {
			_ = w.db.Close()
			_ = os.Remove(w.tmp)
			return fmt.Errorf("create index: %w", err)
		}
	}
	if err := w.db.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return err
	}
	return nil
}

// Publish moves a closed export over the target path.
func (w *SQLiteWriter) Publish() error {
	if err := os.Rename(w.tmp, w.path); err != nil {
		_ = os.Remove(w.tmp)
		return fmt.Errorf("publish sqlite %s: %w", w.path, err)
	}
	return nil
}

// Discard drops a closed export, leaving the target path untouched.
func (w *SQLiteWriter) Discard() {
	_ = os.Remove(w.tmp)
}

// Abort drops the partial export.
func (w *SQLiteWriter) Abort() {
	_ = w.tx.Rollback()
	_ = w.db.Close()
	_ = os.Remove(w.tmp)
}

// ExportSQLite writes both views next to dbPath. The returned writer is
// closed; the caller either publishes or discards it.
func ExportSQLite(dbPath string, flat []api.FlatEntry, tree []*api.TreeNode) (*SQLiteWriter, error) {
	w, err := NewSQLiteWriter(dbPath)
	if err != nil {
		return nil, err
	}
	if err := w.WriteFlat(flat); err != nil {
		w.Abort()
		return nil, err
	}
	if err := w.WriteTree(tree); err != nil {
		w.Abort()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return w, nil
}

func actsJSON(acts []json.RawMessage) string {
	if len(acts) == 0 {
		return "[]"
	}
	b, err := json.Marshal(acts)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
