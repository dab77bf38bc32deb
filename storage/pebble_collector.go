package storage

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleGauge struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

// PebbleCollector reports compaction, memtable and WAL figures of the
// record database.
type PebbleCollector struct {
	db     *pebble.DB
	gauges []pebbleGauge
}

func NewPebbleCollector(db *pebble.DB) *PebbleCollector {
	g := func(name, help string, kind prometheus.ValueType, value func(m *pebble.Metrics) float64) pebbleGauge {
		return pebbleGauge{
			desc:  prometheus.NewDesc("objgraph_pebble_"+name, help, nil, nil),
			kind:  kind,
			value: value,
		}
	}
	return &PebbleCollector{
		db: db,
		gauges: []pebbleGauge{
			g("compaction_count_total", "Total number of compactions performed", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
			g("compaction_estimated_debt_bytes", "Estimated bytes to compact to reach a stable state", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
			g("compaction_in_progress_bytes", "Bytes being compacted right now", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }),
			g("memtable_size_bytes", "Bytes allocated by memtables", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
			g("memtable_count", "Number of memtables", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
			g("wal_files", "Number of live WAL files", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }),
			g("wal_size_bytes", "Size of live WAL data in bytes", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
			g("wal_bytes_written_total", "Total physical bytes written to the WAL", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }),
		},
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range pc.gauges {
		ch <- g.desc
	}
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.db.Metrics()
	for _, g := range pc.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, g.kind, g.value(metrics))
	}
}
