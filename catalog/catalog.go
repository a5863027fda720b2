// Package catalog indexes ARF files in a SQLite database so that entries
// and datasets can be found without opening every file.
package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	// Pure Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/robert-malhotra/go-arf/arf"
	"github.com/robert-malhotra/go-arf/hdf5"
)

// ErrClosed is returned by every method of a closed catalog.
var ErrClosed = errors.New("catalog: closed")

// BusyTimeout is how long, in milliseconds, a connection waits on a
// locked database.
const BusyTimeout = 5000

const schema = `
	CREATE TABLE IF NOT EXISTS root (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		arf_version TEXT
	);

	CREATE TABLE IF NOT EXISTS entry (
		path TEXT PRIMARY KEY,
		root TEXT NOT NULL REFERENCES root(path),
		name TEXT NOT NULL,
		timestamp_sec INTEGER NOT NULL,
		timestamp_usec INTEGER NOT NULL,
		uuid TEXT,
		attrs TEXT -- JSON object
	);

	CREATE TABLE IF NOT EXISTS dataset (
		path TEXT PRIMARY KEY,
		entry TEXT NOT NULL REFERENCES entry(path),
		name TEXT NOT NULL,
		datatype INTEGER NOT NULL,
		units TEXT,
		shape TEXT, -- JSON array
		dtype TEXT,
		rows INTEGER NOT NULL,
		attrs TEXT -- JSON object
	);

	CREATE INDEX IF NOT EXISTS idx_entry_root ON entry(root);
	CREATE INDEX IF NOT EXISTS idx_dataset_entry ON dataset(entry);
	CREATE INDEX IF NOT EXISTS idx_dataset_datatype ON dataset(datatype);
`

// Catalog is an open index database. It is safe for concurrent use.
type Catalog struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Entry is an indexed entry. Path is the file path and the entry's path
// in the file joined by a colon.
type Entry struct {
	Path      string
	Root      string
	Name      string
	Timestamp arf.Timestamp
	UUID      string
	Attrs     map[string]any
}

// Dataset is an indexed dataset.
type Dataset struct {
	Path     string
	Entry    string
	Name     string
	DataType arf.DataType
	Units    string
	Shape    []uint64
	Dtype    string
	Rows     uint64
	Attrs    map[string]any
}

// Open opens or creates the database at path.
func Open(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: create schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// Key returns the catalog path of the object at objPath in the file at
// root.
func Key(root, objPath string) string {
	return root + ":" + objPath
}

// AddFile indexes f: the file, its entries and the datasets directly in
// each entry. Indexing a file again replaces what was recorded for it.
func (c *Catalog) AddFile(f *arf.File) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	root, err := filepath.Abs(f.Filename())
	if err != nil {
		return err
	}
	ver, _ := arf.CheckVersion(f)

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM dataset WHERE entry IN (SELECT path FROM entry WHERE root = ?)`, root); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM entry WHERE root = ?`, root); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO root (path, name, arf_version) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET name = excluded.name, arf_version = excluded.arf_version`,
		root, filepath.Base(root), ver)
	if err != nil {
		return err
	}

	names, err := f.Entries()
	if err != nil {
		return err
	}
	var nds int
	for _, name := range names {
		n, err := addEntry(tx, root, f, name)
		if err != nil {
			return fmt.Errorf("catalog: %s: %w", Key(root, name), err)
		}
		nds += n
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.V(1).Infof("indexed %s: %d entries, %d datasets", root, len(names), nds)
	return nil
}

func addEntry(tx *sql.Tx, root string, f *arf.File, name string) (int, error) {
	e, err := f.OpenEntry(name)
	if err != nil {
		return 0, err
	}
	defer e.Close()
	ts, err := e.Timestamp()
	if err != nil {
		log.Warningf("%s: no timestamp: %v", Key(root, e.Path()), err)
	}
	var id string
	if e.UUID() != uuid.Nil {
		id = e.UUID().String()
	}
	attrs, err := simpleAttrs(&e.Node)
	if err != nil {
		return 0, err
	}
	key := Key(root, e.Path())
	_, err = tx.Exec(`
		INSERT INTO entry (path, root, name, timestamp_sec, timestamp_usec, uuid, attrs)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET timestamp_sec = excluded.timestamp_sec,
			timestamp_usec = excluded.timestamp_usec, uuid = excluded.uuid, attrs = excluded.attrs`,
		key, root, name, ts.Sec, ts.Usec, id, attrs)
	if err != nil {
		return 0, err
	}

	members, err := e.Members()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range members {
		if k, err := e.Kind(m); err != nil || k != hdf5.KindDataset {
			continue
		}
		if err := addDataset(tx, root, key, e, m); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func addDataset(tx *sql.Tx, root, entry string, e *arf.Entry, name string) error {
	d, err := e.OpenDataset(name)
	if err != nil {
		return err
	}
	defer d.Close()
	dt, _ := arf.DataTypeOf(d)
	shape, err := json.Marshal(d.Shape())
	if err != nil {
		return err
	}
	attrs, err := simpleAttrs(&d.Node)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO dataset (path, entry, name, datatype, units, shape, dtype, rows, attrs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET datatype = excluded.datatype, units = excluded.units,
			shape = excluded.shape, dtype = excluded.dtype, rows = excluded.rows, attrs = excluded.attrs`,
		Key(root, d.Path()), entry, name, int32(dt), arf.Units(d), string(shape), d.Datatype().String(), int64(d.Len()), attrs)
	return err
}

// simpleAttrs returns the JSON object of the attributes of n that have
// simple values: strings, numbers and two-element integer vectors.
func simpleAttrs(n *hdf5.Node) (string, error) {
	names, err := n.Attrs()
	if err != nil {
		return "", err
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		a, err := n.Attr(name)
		if err != nil {
			continue
		}
		v, err := a.Value()
		if err != nil {
			continue
		}
		if v, ok := simpleValue(v); ok {
			out[name] = v
		}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func simpleValue(v any) (any, bool) {
	switch v := v.(type) {
	case string, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return v, true
	case float32:
		return simpleValue(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		return v, true
	case []int64:
		if len(v) == 2 {
			return v, true
		}
	case []int32:
		if len(v) == 2 {
			return v, true
		}
	}
	return nil, false
}

// Entries returns the indexed entries of the file at root in time order.
func (c *Catalog) Entries(root string) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.Query(`
		SELECT path, root, name, timestamp_sec, timestamp_usec, uuid, attrs FROM entry
		WHERE root = ? ORDER BY timestamp_sec, timestamp_usec, name`, abs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var attrs string
		if err := rows.Scan(&e.Path, &e.Root, &e.Name, &e.Timestamp.Sec, &e.Timestamp.Usec, &e.UUID, &attrs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &e.Attrs); err != nil {
			return nil, fmt.Errorf("catalog: %s attrs: %w", e.Path, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const datasetColumns = `path, entry, name, datatype, units, shape, dtype, rows, attrs`

// Datasets returns the datasets of the entry with catalog path entry, in
// name order.
func (c *Catalog) Datasets(entry string) ([]Dataset, error) {
	return c.queryDatasets(`SELECT `+datasetColumns+` FROM dataset WHERE entry = ? ORDER BY name`, entry)
}

// DatasetsByType returns every indexed dataset with the given data type
// code, in path order.
func (c *Catalog) DatasetsByType(dt arf.DataType) ([]Dataset, error) {
	return c.queryDatasets(`SELECT `+datasetColumns+` FROM dataset WHERE datatype = ? ORDER BY path`, int32(dt))
}

func (c *Catalog) queryDatasets(query string, args ...any) ([]Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dataset
	for rows.Next() {
		var d Dataset
		var dt int32
		var rowCount int64
		var shape, attrs string
		if err := rows.Scan(&d.Path, &d.Entry, &d.Name, &dt, &d.Units, &shape, &d.Dtype, &rowCount, &attrs); err != nil {
			return nil, err
		}
		d.DataType = arf.DataType(dt)
		d.Rows = uint64(rowCount)
		if err := json.Unmarshal([]byte(shape), &d.Shape); err != nil {
			return nil, fmt.Errorf("catalog: %s shape: %w", d.Path, err)
		}
		if err := json.Unmarshal([]byte(attrs), &d.Attrs); err != nil {
			return nil, fmt.Errorf("catalog: %s attrs: %w", d.Path, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats returns the number of indexed files, entries and datasets.
func (c *Catalog) Stats() (files, entries, datasets int, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, 0, 0, ErrClosed
	}
	err = c.db.QueryRow(`SELECT (SELECT COUNT(*) FROM root), (SELECT COUNT(*) FROM entry), (SELECT COUNT(*) FROM dataset)`).
		Scan(&files, &entries, &datasets)
	return files, entries, datasets, err
}
