package kv

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/return2faye/loamkv/internal/lsm"
)

var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("kv: key not found")
	// ErrClosed is returned when the DB is closed
	ErrClosed = errors.New("kv: db is closed")
)

// Options configures a store. The YAML tags let the CLI load it from a
// config file; see LoadOptions.
type Options struct {
	// Dir is the data directory holding wal/ and sstable/.
	Dir string `yaml:"dir"`
	// MemtableSize is the flush threshold in bytes; zero uses the engine
	// default.
	MemtableSize int `yaml:"memtable_size"`

	// Logger and Registerer are wired straight through to the engine.
	Logger     *slog.Logger          `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

// Pair is one result of a range scan.
type Pair struct {
	Key   string
	Value string
}

// DB is the string-keyed public face of the store. Keys and values are
// UTF-8 strings; deletion is expressed through Delete and never observed as
// a value on reads.
type DB struct {
	db *lsm.DB
}

// Open opens (or creates) a store at the given data directory with default
// options.
func Open(path string) (*DB, error) {
	return OpenWithOptions(Options{Dir: path})
}

// OpenWithOptions opens a store with explicit options.
func OpenWithOptions(opts Options) (*DB, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("kv: data directory cannot be empty")
	}

	lsmDB, err := lsm.Open(lsm.Options{
		DataDir:      opts.Dir,
		MemtableSize: opts.MemtableSize,
		Logger:       opts.Logger,
		Registerer:   opts.Registerer,
	})
	if err != nil {
		return nil, fmt.Errorf("kv: failed to open database: %w", err)
	}

	return &DB{db: lsmDB}, nil
}

// Close flushes and compacts outstanding state and releases all resources.
func (db *DB) Close() error {
	if db.db == nil {
		return ErrClosed
	}
	return db.db.Close()
}

// Put stores a key-value pair, overwriting any existing value.
func (db *DB) Put(key, value string) error {
	if db.db == nil {
		return ErrClosed
	}
	if err := db.db.Put([]byte(key), []byte(value)); err != nil {
		if errors.Is(err, lsm.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("kv: put failed: %w", err)
	}
	return nil
}

// Get retrieves the value for a key. Deleted or never-written keys return
// ErrNotFound.
func (db *DB) Get(key string) (string, error) {
	if db.db == nil {
		return "", ErrClosed
	}

	val, found, err := db.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, lsm.ErrClosed) {
			return "", ErrClosed
		}
		return "", fmt.Errorf("kv: get failed: %w", err)
	}
	if !found {
		return "", ErrNotFound
	}
	return string(val), nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (db *DB) Delete(key string) error {
	if db.db == nil {
		return ErrClosed
	}
	if err := db.db.Delete([]byte(key)); err != nil {
		if errors.Is(err, lsm.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("kv: delete failed: %w", err)
	}
	return nil
}

// RangeScan returns every live pair with lo <= key <= hi, inclusive on both
// ends, in the store's key order (length first, then bytes).
func (db *DB) RangeScan(lo, hi string) ([]Pair, error) {
	if db.db == nil {
		return nil, ErrClosed
	}

	pairs, err := db.db.RangeScan([]byte(lo), []byte(hi))
	if err != nil {
		if errors.Is(err, lsm.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("kv: range scan failed: %w", err)
	}

	out := make([]Pair, len(pairs))
	for i, p := range pairs {
		out[i] = Pair{Key: string(p.Key), Value: string(p.Value)}
	}
	return out, nil
}

// Compact flushes the write buffer and merges all tables down to one. When
// every merged entry is a deletion, the tables are left as they are.
func (db *DB) Compact() error {
	if db.db == nil {
		return ErrClosed
	}
	if err := db.db.Compact(); err != nil {
		if errors.Is(err, lsm.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("kv: compact failed: %w", err)
	}
	return nil
}
