package benchmark

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/return2faye/loamkv/pkg/kv"
)

// setupDB creates a temporary database for benchmarking
func setupDB(b *testing.B) *kv.DB {
	db, err := kv.Open(filepath.Join(b.TempDir(), "bench-db"))
	if err != nil {
		b.Fatalf("Failed to open DB: %v", err)
	}
	return db
}

// BenchmarkPut measures the performance of Put operations
func BenchmarkPut(b *testing.B) {
	db := setupDB(b)
	defer db.Close()

	// Pre-generate keys and values to avoid allocation in benchmark
	keys := make([]string, b.N)
	values := make([]string, b.N)
	for i := 0; i < b.N; i++ {
		keys[i] = fmt.Sprintf("key-%d", i)
		values[i] = fmt.Sprintf("value-%d", i)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := db.Put(keys[i], values[i]); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

// BenchmarkGetMemtable measures Get performance while everything is still
// in the write buffer
func BenchmarkGetMemtable(b *testing.B) {
	db := setupDB(b)
	defer db.Close()

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		if err := db.Put(fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	readKeys := make([]string, b.N)
	for i := 0; i < b.N; i++ {
		readKeys[i] = fmt.Sprintf("key-%d", rand.Intn(numKeys))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := db.Get(readKeys[i]); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

// BenchmarkGetSSTable measures Get performance after the data has been
// compacted to disk, exercising the bloom filter and sparse index
func BenchmarkGetSSTable(b *testing.B) {
	db := setupDB(b)
	defer db.Close()

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		if err := db.Put(fmt.Sprintf("key-%05d", i), fmt.Sprintf("value-%05d", i)); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
	if err := db.Compact(); err != nil {
		b.Fatalf("Compact failed: %v", err)
	}

	readKeys := make([]string, b.N)
	for i := 0; i < b.N; i++ {
		readKeys[i] = fmt.Sprintf("key-%05d", rand.Intn(numKeys))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := db.Get(readKeys[i]); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

// BenchmarkGetMissing measures lookups that the bloom filters should reject
// without touching the data sections
func BenchmarkGetMissing(b *testing.B) {
	db := setupDB(b)
	defer db.Close()

	for i := 0; i < 10000; i++ {
		if err := db.Put(fmt.Sprintf("key-%05d", i), fmt.Sprintf("value-%05d", i)); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
	if err := db.Compact(); err != nil {
		b.Fatalf("Compact failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := db.Get(fmt.Sprintf("missing-%d", i)); err != nil && err != kv.ErrNotFound {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

// BenchmarkRangeScan measures scans over a compacted store
func BenchmarkRangeScan(b *testing.B) {
	db := setupDB(b)
	defer db.Close()

	for i := 0; i < 10000; i++ {
		if err := db.Put(fmt.Sprintf("key-%05d", i), fmt.Sprintf("value-%05d", i)); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
	if err := db.Compact(); err != nil {
		b.Fatalf("Compact failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		start := rand.Intn(9000)
		lo := fmt.Sprintf("key-%05d", start)
		hi := fmt.Sprintf("key-%05d", start+100)
		if _, err := db.RangeScan(lo, hi); err != nil {
			b.Fatalf("RangeScan failed: %v", err)
		}
	}
}

// BenchmarkMixed measures an interleaved read/write workload
func BenchmarkMixed(b *testing.B) {
	db := setupDB(b)
	defer db.Close()

	for i := 0; i < 1000; i++ {
		if err := db.Put(fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if i%4 == 0 {
			if err := db.Put(fmt.Sprintf("key-%d", i%1000), fmt.Sprintf("value-%d", i)); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		} else {
			if _, err := db.Get(fmt.Sprintf("key-%d", i%1000)); err != nil && err != kv.ErrNotFound {
				b.Fatalf("Get failed: %v", err)
			}
		}
	}
}
