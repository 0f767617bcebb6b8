// Package stats exposes package-level Prometheus counters/gauges plus a
// throughput rate counter, mirroring Zeno's stats package (ArchiverRoutines
// Incr/Decr and friends) used from archiver.go, postprocessor.go et al.
package stats

import (
	"sync"

	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	harvestsRunning prometheus.Gauge
	proxyRoutines   prometheus.Gauge
	warcsProcessed  prometheus.Counter
	itemsExported   prometheus.Counter

	itemRate *ratecounter.RateCounter

	shadowWARCsProcessed int64
)

// Init registers every metric exactly once, called defensively at the top of
// every counter helper below, matching stats.Init() in Zeno.
func Init() {
	once.Do(func() {
		harvestsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sfm_harvests_running",
			Help: "Number of harvests currently in the running state.",
		})
		proxyRoutines = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sfm_proxy_routines",
			Help: "Number of in-flight recording proxy requests.",
		})
		warcsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfm_warcs_processed_total",
			Help: "Number of WARC files fully processed (moved, committed, notified).",
		})
		itemsExported = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfm_items_exported_total",
			Help: "Number of items written by the exporter runtime.",
		})

		prometheus.MustRegister(harvestsRunning, proxyRoutines, warcsProcessed, itemsExported)

		itemRate = ratecounter.NewRateCounter(60 * 1e9) // 60s window, nanosecond units
	})
}

func HarvestRunningIncr() { Init(); harvestsRunning.Inc() }
func HarvestRunningDecr() { Init(); harvestsRunning.Dec() }

func ProxyRoutinesIncr() { Init(); proxyRoutines.Inc() }
func ProxyRoutinesDecr() { Init(); proxyRoutines.Dec() }

func WARCProcessedIncr() {
	Init()
	warcsProcessed.Inc()
	shadowWARCsProcessed++
}

func ItemExportedIncr() {
	Init()
	itemsExported.Inc()
	itemRate.Incr(1)
}

// ItemRate returns items exported in the trailing window, used by the live
// console stats view.
func ItemRate() int64 {
	Init()
	return itemRate.Rate()
}
