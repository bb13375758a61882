package utils

import "bytes"

// CompareKeys is the key order used everywhere in the engine:
// shorter keys sort before longer keys, equal-length keys sort by bytes.
// Memtable, sstable index search, range scans and compaction all share it;
// mixing in plain lexicographic order anywhere would corrupt lookups.
func CompareKeys(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}
