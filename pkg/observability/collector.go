package observability

import (
	"github.com/aretw0/strata/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything reporting resolution cache statistics.
type StatsSource interface {
	Stats() cache.Stats
}

// CacheCollector exports cache.Stats as Prometheus metrics. Values are read
// from the source on every scrape.
type CacheCollector struct {
	src StatsSource

	size      *prometheus.Desc
	capacity  *prometheus.Desc
	stale     *prometheus.Desc
	hitRate   *prometheus.Desc
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	expired   *prometheus.Desc
}

// NewCacheCollector creates a collector for src. Metric names are prefixed
// with namespace, "strata" when empty.
func NewCacheCollector(src StatsSource, namespace string) *CacheCollector {
	if namespace == "" {
		namespace = "strata"
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, nil)
	}
	return &CacheCollector{
		src:       src,
		size:      desc("entries", "Number of resolved trees currently cached."),
		capacity:  desc("capacity", "Maximum number of cached entries."),
		stale:     desc("expired_unswept", "Entries past their TTL not yet removed."),
		hitRate:   desc("hit_ratio", "Hits over lookups since start."),
		hits:      desc("hits_total", "Cache lookups served from memory."),
		misses:    desc("misses_total", "Cache lookups that missed or found an expired entry."),
		evictions: desc("evictions_total", "Entries evicted to respect capacity."),
		expired:   desc("expired_total", "Entries removed because their TTL elapsed."),
	}
}

// Describe implements prometheus.Collector.
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.size, c.capacity, c.stale, c.hitRate, c.hits, c.misses, c.evictions, c.expired} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, float64(s.Stale))
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, s.HitRate)
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(s.Expired))
}
