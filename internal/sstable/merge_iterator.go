package sstable

import (
	"github.com/return2faye/loamkv/internal/utils"
)

// MergeIterator merges the data sections of several tables into one sorted
// stream under the engine key order. Duplicate keys resolve to the value
// from the first iterator, so callers pass tables newest to oldest and the
// newest write wins. Compaction is the main consumer.
type MergeIterator struct {
	iterators []*Iterator
	current   []*Iterator // iterators positioned on the winning key
	key       []byte
	value     []byte
}

// NewMergeIterator builds a merge over the given tables, newest first.
func NewMergeIterator(tables []*Table) (*MergeIterator, error) {
	iterators := make([]*Iterator, 0, len(tables))
	for _, t := range tables {
		if t == nil {
			continue
		}
		it := t.NewIterator()
		if err := it.Next(); err != nil {
			continue
		}
		if it.Valid() {
			iterators = append(iterators, it)
		}
	}

	mi := &MergeIterator{
		iterators: iterators,
		current:   make([]*Iterator, 0, len(iterators)),
	}

	if err := mi.advance(); err != nil {
		return nil, err
	}
	return mi, nil
}

func (mi *MergeIterator) Valid() bool {
	return len(mi.current) > 0
}

func (mi *MergeIterator) Key() []byte {
	return mi.key
}

func (mi *MergeIterator) Value() []byte {
	return mi.value
}

func (mi *MergeIterator) Next() error {
	return mi.advance()
}

// advance finds the smallest key across all iterators, takes the newest
// value for it, and steps every iterator sitting on that key.
func (mi *MergeIterator) advance() error {
	mi.current = mi.current[:0]
	mi.key = nil
	mi.value = nil

	if len(mi.iterators) == 0 {
		return nil
	}

	var minKey []byte
	for _, it := range mi.iterators {
		if !it.Valid() {
			continue
		}
		if minKey == nil || utils.CompareKeys(it.Key(), minKey) < 0 {
			minKey = it.Key()
		}
	}
	if minKey == nil {
		return nil
	}

	for _, it := range mi.iterators {
		if !it.Valid() {
			continue
		}
		if utils.CompareKeys(it.Key(), minKey) == 0 {
			mi.current = append(mi.current, it)
		}
	}

	// first iterator is the newest table holding this key
	if len(mi.current) > 0 {
		mi.key = mi.current[0].Key()
		mi.value = mi.current[0].Value()
	}

	for _, it := range mi.current {
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}
