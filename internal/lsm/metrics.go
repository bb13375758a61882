package lsm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's operation counters. They are always live; when
// Options.Registerer is set they are additionally registered there so a
// process can scrape them.
type Metrics struct {
	Puts         prometheus.Counter
	Deletes      prometheus.Counter
	Gets         prometheus.Counter
	BloomSkips   prometheus.Counter
	Flushes      prometheus.Counter
	Compactions  prometheus.Counter
	WALReplayed  prometheus.Counter
	LiveSSTables prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loamkv",
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		Puts:        counter("puts_total", "Number of put operations accepted."),
		Deletes:     counter("deletes_total", "Number of delete operations accepted."),
		Gets:        counter("gets_total", "Number of get operations served."),
		BloomSkips:  counter("bloom_skips_total", "SSTable reads avoided by the bloom filter."),
		Flushes:     counter("flushes_total", "Memtable flushes to level-0 SSTables."),
		Compactions: counter("compactions_total", "SSTable compactions completed."),
		WALReplayed: counter("wal_records_replayed_total", "Records replayed from the WAL on open."),
		LiveSSTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loamkv",
			Subsystem: "engine",
			Name:      "live_sstables",
			Help:      "SSTables currently in the live list.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Puts, m.Deletes, m.Gets, m.BloomSkips,
			m.Flushes, m.Compactions, m.WALReplayed, m.LiveSSTables,
		)
	}
	return m
}
