// Package promstats exports sharedptr pool statistics to Prometheus.
//
// Pools are single-threaded, so the collector never reads a pool directly.
// The goroutine that owns the pool pushes snapshots with Update, and scrapes
// read the latest snapshot:
//
//	collector := promstats.NewCollector("simulator")
//	registry.MustRegister(collector)
//	...
//	collector.Update(pool.Stats()) // from the simulation loop
package promstats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plctlab/sharedptr"
)

const subsystem = "pool"

// Collector is a prometheus.Collector over the latest PoolStats of any
// number of pools, labelled by pool name.
type Collector struct {
	mu        sync.Mutex
	snapshots map[string]sharedptr.PoolStats

	capacity           *prometheus.Desc
	watermark          *prometheus.Desc
	allocated          *prometheus.Desc
	free               *prometheus.Desc
	peakAllocated      *prometheus.Desc
	allocations        *prometheus.Desc
	releases           *prometheus.Desc
	capacityErrors     *prometheus.Desc
	watermarkCrossings *prometheus.Desc
	controlBlocks      *prometheus.Desc
}

// NewCollector creates a collector whose metrics live under namespace.
func NewCollector(namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name),
			help,
			[]string{"pool"},
			nil,
		)
	}

	return &Collector{
		snapshots:          make(map[string]sharedptr.PoolStats),
		capacity:           desc("capacity", "Maximum number of simultaneously live objects"),
		watermark:          desc("watermark", "Live object count at which the watermark callback fires"),
		allocated:          desc("allocated", "Number of live objects"),
		free:               desc("free", "Number of unused slots"),
		peakAllocated:      desc("peak_allocated", "Highest number of simultaneously live objects"),
		allocations:        desc("allocations_total", "Objects allocated from the pool"),
		releases:           desc("releases_total", "Objects returned to the pool"),
		capacityErrors:     desc("capacity_errors_total", "Allocations rejected because the pool was full"),
		watermarkCrossings: desc("watermark_crossings_total", "Upward crossings of the watermark"),
		controlBlocks:      desc("control_blocks", "Control blocks held by live strong or weak handles"),
	}
}

// Update stores the latest snapshot for the pool named in stats.
func (c *Collector) Update(stats *sharedptr.PoolStats) {
	if stats == nil {
		return
	}
	c.mu.Lock()
	c.snapshots[stats.Name] = *stats
	c.mu.Unlock()
}

// Forget drops the snapshot of the named pool.
func (c *Collector) Forget(pool string) {
	c.mu.Lock()
	delete(c.snapshots, pool)
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.watermark
	ch <- c.allocated
	ch <- c.free
	ch <- c.peakAllocated
	ch <- c.allocations
	ch <- c.releases
	ch <- c.capacityErrors
	ch <- c.watermarkCrossings
	ch <- c.controlBlocks
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	snapshots := make([]sharedptr.PoolStats, 0, len(c.snapshots))
	for _, s := range c.snapshots {
		snapshots = append(snapshots, s)
	}
	c.mu.Unlock()

	for _, s := range snapshots {
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, s.Name)
		}
		counter := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, s.Name)
		}

		gauge(c.capacity, float64(s.Capacity))
		gauge(c.watermark, float64(s.Watermark))
		gauge(c.allocated, float64(s.Allocated))
		gauge(c.free, float64(s.Free))
		gauge(c.peakAllocated, float64(s.PeakAllocated))
		counter(c.allocations, float64(s.TotalAllocations))
		counter(c.releases, float64(s.TotalReleases))
		counter(c.capacityErrors, float64(s.CapacityErrors))
		counter(c.watermarkCrossings, float64(s.WatermarkCrossings))
		gauge(c.controlBlocks, float64(s.LiveControlBlocks))
	}
}

var _ prometheus.Collector = (*Collector)(nil)
