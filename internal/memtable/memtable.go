package memtable

import (
	"github.com/return2faye/loamkv/internal/utils"
)

// Memtable is the mutable in-memory write buffer: a skiplist ordered by the
// engine key order plus byte-size accounting for the flush trigger. Values
// are opaque here; the engine's tombstone is stored like any other value and
// only interpreted above this layer. Durability is the WAL's job, recovery
// the engine's; the memtable itself never touches disk.
type Memtable struct {
	sl   *SkipList
	size int // approximate live key+value bytes
}

// Pair is one entry yielded by a range scan.
type Pair struct {
	Key   []byte
	Value []byte
}

func New() *Memtable {
	return &Memtable{sl: NewSkipList()}
}

// Put inserts or overwrites. Size accounting drops the old entry's
// contribution and adds the new one.
func (mt *Memtable) Put(key, value []byte) {
	old, existed := mt.sl.Put(key, value)
	if existed {
		mt.size -= len(key) + len(old)
	}
	mt.size += len(key) + len(value)
}

// Get returns the stored value, tombstones included.
func (mt *Memtable) Get(key []byte) ([]byte, bool) {
	return mt.sl.Get(key)
}

// Delete removes the entry outright and reverses its accounting. The engine
// records deletions as tombstone Puts; this is a helper for callers that
// really want the entry gone.
func (mt *Memtable) Delete(key []byte) bool {
	old, existed := mt.sl.Delete(key)
	if existed {
		mt.size -= len(key) + len(old)
	}
	return existed
}

// RangeScan returns all entries with lo <= key <= hi in key order,
// inclusive on both ends.
func (mt *Memtable) RangeScan(lo, hi []byte) []Pair {
	var out []Pair
	it := mt.sl.NewRangeIterator(lo)
	for it.Valid() {
		if utils.CompareKeys(it.Key(), hi) > 0 {
			break
		}
		out = append(out, Pair{Key: utils.CopyBytes(it.Key()), Value: utils.CopyBytes(it.Value())})
		it.Next()
	}
	return out
}

// NewIterator walks every entry in key order.
func (mt *Memtable) NewIterator() *SLIterator {
	return mt.sl.NewIterator()
}

// Size is the approximate resident byte footprint, used by the engine to
// decide when to flush.
func (mt *Memtable) Size() int {
	return mt.size
}

// Len is the number of live entries.
func (mt *Memtable) Len() int {
	return mt.sl.Len()
}
