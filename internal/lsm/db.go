package lsm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/return2faye/loamkv/internal/memtable"
	"github.com/return2faye/loamkv/internal/sstable"
	"github.com/return2faye/loamkv/internal/utils"
	"github.com/return2faye/loamkv/internal/wal"
)

var ErrClosed = errors.New("lsm: db is closed")

// Tombstone is the sentinel value that marks a deleted key. It travels
// unchanged through WAL, memtable and SSTables; only the read path turns it
// into "absent".
var Tombstone = []byte{0}

const (
	// DefaultMemtableSize is the flush threshold when Options doesn't set one.
	DefaultMemtableSize = 1 << 20 // 1MB

	// l0CompactionTrigger: more live tables than this after a flush (of any
	// level) forces a full compaction.
	l0CompactionTrigger = 3

	walDirName     = "wal"
	sstableDirName = "sstable"
)

// Options configures an engine instance.
type Options struct {
	// DataDir is the root directory; wal/ and sstable/ live below it.
	DataDir string
	// MemtableSize is the flush threshold in bytes. Zero means
	// DefaultMemtableSize.
	MemtableSize int
	// Logger receives recovery, flush and compaction events. Defaults to
	// slog.Default().
	Logger *slog.Logger
	// Registerer, when set, gets the engine metrics registered on it.
	Registerer prometheus.Registerer
}

// Pair is one key/value result of a range scan.
type Pair struct {
	Key   []byte
	Value []byte
}

// DB is the LSM coordinator. It owns the active memtable, its WAL, and the
// list of SSTables ordered oldest to newest. One mutex serializes every
// public operation; flush and compaction run inline on the calling
// goroutine inside that critical section, so all operations are
// linearizable by construction.
type DB struct {
	mu     sync.Mutex
	closed bool

	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	mem      *memtable.Memtable
	wal      *wal.WAL
	sstables []*sstable.Table // oldest -> newest by sequence
	nextSeq  uint64
}

// Open creates or recovers an engine rooted at opts.DataDir. Recovery loads
// every readable sst_<seq>.sst in sequence order (unreadable ones are logged
// and skipped), sets the next sequence past the highest seen, then replays
// the WAL into a fresh memtable, flushing immediately if the replayed data
// already exceeds the threshold.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, os.ErrInvalid
	}
	if opts.MemtableSize <= 0 {
		opts.MemtableSize = DefaultMemtableSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	sstDir := filepath.Join(opts.DataDir, sstableDirName)
	if err := os.MkdirAll(sstDir, 0o755); err != nil {
		return nil, fmt.Errorf("lsm: create sstable dir: %w", err)
	}

	db := &DB{
		opts:    opts,
		logger:  opts.Logger,
		metrics: newMetrics(opts.Registerer),
		mem:     memtable.New(),
	}

	if err := db.recoverSSTables(sstDir); err != nil {
		return nil, err
	}

	w, err := wal.Open(filepath.Join(opts.DataDir, walDirName), opts.Logger)
	if err != nil {
		return nil, err
	}
	db.wal = w

	records, err := w.Recover()
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, r := range records {
		db.mem.Put(r.Key, r.Value)
	}
	db.metrics.WALReplayed.Add(float64(len(records)))
	if len(records) > 0 {
		db.logger.Info("lsm: replayed write-ahead log", "records", len(records))
	}

	// A crash can leave more in the WAL than the threshold allows in memory.
	if db.mem.Size() >= opts.MemtableSize {
		if err := db.flushLocked(); err != nil {
			w.Close()
			return nil, err
		}
	}

	return db, nil
}

// recoverSSTables scans the table directory and loads every readable table
// in ascending sequence order, trusting each file's own level metadata.
func (db *DB) recoverSSTables(sstDir string) error {
	dirEntries, err := os.ReadDir(sstDir)
	if err != nil {
		return fmt.Errorf("lsm: read sstable dir: %w", err)
	}

	var seqs []uint64
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		seq, ok := sstable.ParseFilename(e.Name())
		if !ok {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	for _, seq := range seqs {
		tbl, err := sstable.Load(sstDir, seq)
		if err != nil {
			// a damaged table costs its data, not the whole store
			db.logger.Warn("lsm: skipping unreadable sstable", "sequence", seq, "error", err)
			continue
		}
		db.sstables = append(db.sstables, tbl)
	}

	if len(seqs) > 0 {
		db.nextSeq = seqs[len(seqs)-1] + 1
	}
	db.metrics.LiveSSTables.Set(float64(len(db.sstables)))
	return nil
}

// Put makes (key, value) durable and visible: WAL first, then memtable, then
// a flush if the memtable crossed the threshold. A WAL failure aborts the
// write before any in-memory state changes.
func (db *DB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if err := db.putLocked(key, value); err != nil {
		return err
	}
	db.metrics.Puts.Inc()
	return nil
}

// Delete records a tombstone for key. Deleting an absent key is a no-op
// that still writes the tombstone.
func (db *DB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if err := db.putLocked(key, Tombstone); err != nil {
		return err
	}
	db.metrics.Deletes.Inc()
	return nil
}

func (db *DB) putLocked(key, value []byte) error {
	if err := db.wal.Append(key, value); err != nil {
		return err
	}
	db.mem.Put(key, value)

	if db.mem.Size() >= db.opts.MemtableSize {
		return db.flushLocked()
	}
	return nil
}

// Get returns the newest value for key, or found=false when the key is
// absent or its newest occurrence is a tombstone. Lookup order: memtable,
// then SSTables newest to oldest.
func (db *DB) Get(key []byte) ([]byte, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, false, ErrClosed
	}
	db.metrics.Gets.Inc()

	if val, found := db.mem.Get(key); found {
		if isTombstone(val) {
			return nil, false, nil
		}
		return utils.CopyBytes(val), true, nil
	}

	for i := len(db.sstables) - 1; i >= 0; i-- {
		tbl := db.sstables[i]
		if !tbl.MayContain(key) {
			db.metrics.BloomSkips.Inc()
			continue
		}
		val, found, err := tbl.Get(key)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		if isTombstone(val) {
			return nil, false, nil
		}
		return val, true, nil
	}

	return nil, false, nil
}

// RangeScan merges every layer over [lo, hi], inclusive on both ends, and
// returns the surviving pairs in key order with tombstoned keys filtered
// out. The snapshot is materialized under the lock.
func (db *DB) RangeScan(lo, hi []byte) ([]Pair, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	// Oldest to newest so that later layers overwrite earlier ones.
	merged := make(map[string][]byte)
	for _, tbl := range db.sstables {
		entries, err := tbl.RangeScan(lo, hi)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			merged[string(e.Key)] = e.Value
		}
	}
	for _, p := range db.mem.RangeScan(lo, hi) {
		merged[string(p.Key)] = p.Value
	}

	out := make([]Pair, 0, len(merged))
	for k, v := range merged {
		if isTombstone(v) {
			continue
		}
		out = append(out, Pair{Key: []byte(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return utils.CompareKeys(out[i].Key, out[j].Key) < 0
	})
	return out, nil
}

// Compact flushes the memtable if it holds anything, then merges all
// SSTables down to one when more than one exists. If every merged entry is
// a tombstone, no table is written and the existing tables stay as they are.
func (db *DB) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	if db.mem.Len() > 0 {
		if err := db.flushLocked(); err != nil {
			return err
		}
	}
	if len(db.sstables) > 1 {
		return db.compactLocked()
	}
	return nil
}

// Close flushes outstanding writes, compacts multiple tables as Compact
// does, and releases every file handle. The engine is unusable afterwards.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}

	var firstErr error
	if db.mem.Len() > 0 {
		if err := db.flushLocked(); err != nil {
			firstErr = err
		}
	}
	if firstErr == nil && len(db.sstables) > 1 {
		if err := db.compactLocked(); err != nil {
			firstErr = err
		}
	}

	for _, tbl := range db.sstables {
		if err := tbl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	db.closed = true
	return firstErr
}

// Metrics exposes the engine counters.
func (db *DB) Metrics() *Metrics {
	return db.metrics
}

// SSTableCount reports the live table count; mostly for tests and stats.
func (db *DB) SSTableCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.sstables)
}

// flushLocked converts the memtable into a level-0 SSTable, rotates the
// WAL, and triggers compaction when the live table count is over the
// trigger. Caller holds the mutex.
func (db *DB) flushLocked() error {
	entries := db.snapshotMemtable()
	if len(entries) == 0 {
		return nil
	}

	sstDir := filepath.Join(db.opts.DataDir, sstableDirName)
	tbl, err := sstable.CreateFromSorted(sstDir, 0, db.nextSeq, entries)
	if err != nil {
		// memtable and WAL are untouched; the write set is still safe
		return fmt.Errorf("lsm: flush: %w", err)
	}
	db.nextSeq++
	db.sstables = append(db.sstables, tbl)

	// The flushed records are durable in the table now; the log restarts
	// empty alongside the fresh memtable.
	db.mem = memtable.New()
	if err := db.wal.Delete(); err != nil {
		return fmt.Errorf("lsm: rotate wal: %w", err)
	}
	w, err := wal.Open(filepath.Join(db.opts.DataDir, walDirName), db.logger)
	if err != nil {
		return fmt.Errorf("lsm: rotate wal: %w", err)
	}
	db.wal = w

	db.metrics.Flushes.Inc()
	db.metrics.LiveSSTables.Set(float64(len(db.sstables)))
	db.logger.Info("lsm: flushed memtable",
		"sequence", tbl.Sequence(), "entries", len(entries), "sstables", len(db.sstables))

	if len(db.sstables) > l0CompactionTrigger {
		return db.compactLocked()
	}
	return nil
}

func (db *DB) snapshotMemtable() []sstable.Entry {
	entries := make([]sstable.Entry, 0, db.mem.Len())
	it := db.mem.NewIterator()
	for it.Valid() {
		entries = append(entries, sstable.Entry{
			Key:   utils.CopyBytes(it.Key()),
			Value: utils.CopyBytes(it.Value()),
		})
		it.Next()
	}
	return entries
}

// compactLocked merges every live table into one level-1 table, keeping only
// the newest value per key and dropping tombstones. Old files are unlinked
// only after the replacement is durable; a failed create leaves the old
// list exactly as it was. Caller holds the mutex.
func (db *DB) compactLocked() error {
	if len(db.sstables) <= 1 {
		return nil
	}

	// Newest first, so the merge resolves duplicates to the latest write.
	newestFirst := make([]*sstable.Table, len(db.sstables))
	for i, tbl := range db.sstables {
		newestFirst[len(db.sstables)-1-i] = tbl
	}

	mi, err := sstable.NewMergeIterator(newestFirst)
	if err != nil {
		return fmt.Errorf("lsm: compact: %w", err)
	}

	var entries []sstable.Entry
	for mi.Valid() {
		if !isTombstone(mi.Value()) {
			entries = append(entries, sstable.Entry{Key: mi.Key(), Value: mi.Value()})
		}
		if err := mi.Next(); err != nil {
			return fmt.Errorf("lsm: compact: %w", err)
		}
	}

	// Everything was deleted: nothing to write, keep the current list.
	if len(entries) == 0 {
		return nil
	}

	sstDir := filepath.Join(db.opts.DataDir, sstableDirName)
	tbl, err := sstable.CreateFromSorted(sstDir, 1, db.nextSeq, entries)
	if err != nil {
		return fmt.Errorf("lsm: compact: %w", err)
	}
	db.nextSeq++

	old := db.sstables
	db.sstables = []*sstable.Table{tbl}

	for _, o := range old {
		seq := o.Sequence()
		if err := o.Remove(); err != nil {
			db.logger.Warn("lsm: failed to remove old sstable",
				"sequence", seq, "error", err)
		}
	}

	db.metrics.Compactions.Inc()
	db.metrics.LiveSSTables.Set(float64(len(db.sstables)))
	db.logger.Info("lsm: compacted sstables",
		"merged", len(old), "sequence", tbl.Sequence(), "entries", len(entries))
	return nil
}

func isTombstone(v []byte) bool {
	return len(v) == 1 && v[0] == 0
}
