package memtable

import (
	"math/rand"
	"sync"

	"github.com/return2faye/loamkv/internal/utils"
)

// skiplist ordered by the engine key comparator (length first, then bytes)

const MaxLevel = 16

type Node struct {
	key   []byte
	value []byte
	next  []*Node // next node per level
}

type SkipList struct {
	head  *Node
	level int
	size  int
	mu    sync.RWMutex
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:  &Node{next: make([]*Node, MaxLevel)},
		level: 1,
	}
}

func (sl *SkipList) randomLevel() int {
	level := 1
	for rand.Float64() < 0.5 && level < MaxLevel {
		level++
	}
	return level
}

// Put inserts or overwrites. The previous value is returned so the caller
// can keep its byte accounting straight.
func (sl *SkipList) Put(key, val []byte) (old []byte, existed bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	update := make([]*Node, MaxLevel)
	curr := sl.head

	for i := sl.level - 1; i >= 0; i-- {
		for curr.next[i] != nil && utils.CompareKeys(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
		update[i] = curr
	}

	// already present: replace in place
	curr = curr.next[0]
	if curr != nil && utils.CompareKeys(curr.key, key) == 0 {
		old = curr.value
		curr.value = utils.CopyBytes(val)
		return old, true
	}

	lvl := sl.randomLevel()
	if lvl > sl.level {
		for i := sl.level; i < lvl; i++ {
			update[i] = sl.head
		}
		sl.level = lvl
	}

	newNode := &Node{
		key:   utils.CopyBytes(key),
		value: utils.CopyBytes(val),
		next:  make([]*Node, lvl),
	}

	for i := 0; i < lvl; i++ {
		newNode.next[i] = update[i].next[i]
		update[i].next[i] = newNode
	}

	sl.size++
	return nil, false
}

func (sl *SkipList) Get(key []byte) ([]byte, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	curr := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for curr.next[i] != nil && utils.CompareKeys(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
	}

	curr = curr.next[0]
	if curr != nil && utils.CompareKeys(curr.key, key) == 0 {
		return curr.value, true
	}
	return nil, false
}

// Delete unlinks the node. The removed value is returned for accounting.
func (sl *SkipList) Delete(key []byte) (old []byte, existed bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	update := make([]*Node, MaxLevel)
	curr := sl.head

	for i := sl.level - 1; i >= 0; i-- {
		for curr.next[i] != nil && utils.CompareKeys(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
		update[i] = curr
	}

	curr = curr.next[0]
	if curr == nil || utils.CompareKeys(curr.key, key) != 0 {
		return nil, false
	}

	for i := 0; i < sl.level; i++ {
		if update[i].next[i] != curr {
			break
		}
		update[i].next[i] = curr.next[i]
	}

	// shrink empty top levels
	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		sl.level--
	}

	sl.size--
	return curr.value, true
}

func (sl *SkipList) Len() int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.size
}

/*
Iterator
*/
type SLIterator struct {
	curr *Node
}

func (sl *SkipList) NewIterator() *SLIterator {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return &SLIterator{curr: sl.head.next[0]}
}

// NewRangeIterator starts at the first key >= lo.
func (sl *SkipList) NewRangeIterator(lo []byte) *SLIterator {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	curr := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for curr.next[i] != nil && utils.CompareKeys(curr.next[i].key, lo) < 0 {
			curr = curr.next[i]
		}
	}
	return &SLIterator{curr: curr.next[0]}
}

func (it *SLIterator) Valid() bool {
	return it.curr != nil
}

func (it *SLIterator) Next() {
	it.curr = it.curr.next[0]
}

func (it *SLIterator) Key() []byte {
	return it.curr.key
}

func (it *SLIterator) Value() []byte {
	return it.curr.value
}
