package memtable

import (
	"fmt"
	"testing"
)

func TestMemtablePutGet(t *testing.T) {
	mt := New()

	testData := map[string]string{
		"key1": "value1",
		"key2": "value2",
		"key3": "value3",
	}

	for k, v := range testData {
		mt.Put([]byte(k), []byte(v))
	}

	for k, expectedV := range testData {
		val, found := mt.Get([]byte(k))
		if !found {
			t.Errorf("Key %s not found", k)
			continue
		}
		if string(val) != expectedV {
			t.Errorf("Key %s: expected %s, got %s", k, expectedV, string(val))
		}
	}
}

func TestMemtableSizeAccounting(t *testing.T) {
	mt := New()

	if mt.Size() != 0 {
		t.Errorf("New memtable should have size 0, got %d", mt.Size())
	}

	mt.Put([]byte("key1"), []byte("value1"))
	want := len("key1") + len("value1")
	if mt.Size() != want {
		t.Errorf("Expected size %d, got %d", want, mt.Size())
	}

	// Overwriting replaces the old contribution instead of adding to it
	mt.Put([]byte("key1"), []byte("longer-value-than-before"))
	want = len("key1") + len("longer-value-than-before")
	if mt.Size() != want {
		t.Errorf("Expected size %d after overwrite, got %d", want, mt.Size())
	}

	// Shrinking the value shrinks the size
	mt.Put([]byte("key1"), []byte("v"))
	want = len("key1") + 1
	if mt.Size() != want {
		t.Errorf("Expected size %d after shrink, got %d", want, mt.Size())
	}

	if mt.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", mt.Len())
	}
}

func TestMemtableDelete(t *testing.T) {
	mt := New()

	mt.Put([]byte("key1"), []byte("value1"))
	mt.Put([]byte("key2"), []byte("value2"))

	if !mt.Delete([]byte("key1")) {
		t.Fatal("Delete should find key1")
	}
	if _, found := mt.Get([]byte("key1")); found {
		t.Error("key1 should be gone after delete")
	}

	// Accounting is reversed down to the remaining entry
	want := len("key2") + len("value2")
	if mt.Size() != want {
		t.Errorf("Expected size %d after delete, got %d", want, mt.Size())
	}

	if mt.Delete([]byte("missing")) {
		t.Error("Delete of a missing key should report false")
	}
}

func TestMemtableTombstoneIsOpaque(t *testing.T) {
	mt := New()

	// The engine stores deletions as the one-byte NUL value; the memtable
	// must hand it back like any other value
	mt.Put([]byte("key1"), []byte{0})

	val, found := mt.Get([]byte("key1"))
	if !found {
		t.Fatal("Tombstone entry should be found")
	}
	if len(val) != 1 || val[0] != 0 {
		t.Errorf("Expected tombstone value back, got %v", val)
	}
}

func TestMemtableRangeScan(t *testing.T) {
	mt := New()

	for i := 1; i <= 5; i++ {
		mt.Put([]byte(fmt.Sprintf("key%d", i)), []byte(fmt.Sprintf("value%d", i)))
	}

	pairs := mt.RangeScan([]byte("key2"), []byte("key4"))
	expected := []string{"key2", "key3", "key4"}
	if len(pairs) != len(expected) {
		t.Fatalf("Expected %d pairs, got %d", len(expected), len(pairs))
	}
	for i, k := range expected {
		if string(pairs[i].Key) != k {
			t.Errorf("Position %d: expected %s, got %s", i, k, string(pairs[i].Key))
		}
	}

	// Both bounds are inclusive
	pairs = mt.RangeScan([]byte("key1"), []byte("key1"))
	if len(pairs) != 1 || string(pairs[0].Key) != "key1" {
		t.Errorf("Single-key range should yield exactly key1, got %d pairs", len(pairs))
	}

	// Disjoint range yields nothing
	pairs = mt.RangeScan([]byte("zz1"), []byte("zz9"))
	if len(pairs) != 0 {
		t.Errorf("Disjoint range should yield nothing, got %d pairs", len(pairs))
	}
}

func TestMemtableRangeScanLengthOrder(t *testing.T) {
	mt := New()

	for _, k := range []string{"a", "bb", "aa", "b"} {
		mt.Put([]byte(k), []byte("v"))
	}

	// "a" .. "bb" spans everything under length-first order
	pairs := mt.RangeScan([]byte("a"), []byte("bb"))
	expected := []string{"a", "b", "aa", "bb"}
	if len(pairs) != len(expected) {
		t.Fatalf("Expected %d pairs, got %d", len(expected), len(pairs))
	}
	for i, k := range expected {
		if string(pairs[i].Key) != k {
			t.Errorf("Position %d: expected %s, got %s", i, k, string(pairs[i].Key))
		}
	}
}

func TestMemtableIterator(t *testing.T) {
	mt := New()

	for _, k := range []string{"key3", "key1", "key2"} {
		mt.Put([]byte(k), []byte("value"))
	}

	it := mt.NewIterator()
	expectedOrder := []string{"key1", "key2", "key3"}
	idx := 0
	for it.Valid() {
		if string(it.Key()) != expectedOrder[idx] {
			t.Errorf("Position %d: expected %s, got %s", idx, expectedOrder[idx], string(it.Key()))
		}
		it.Next()
		idx++
	}
	if idx != len(expectedOrder) {
		t.Errorf("Expected %d items, got %d", len(expectedOrder), idx)
	}
}
