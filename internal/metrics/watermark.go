package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WatermarkSource exposes the currently cached watermark values. A nil value
// means the watermark was never advanced.
type WatermarkSource interface {
	Snapshot() map[string]*time.Time
}

// WatermarkCollector exports the age of each cached watermark on scrape.
// Watermarks that never ran are reported as -1.
type WatermarkCollector struct {
	source WatermarkSource
	now    func() time.Time
	age    *prometheus.Desc
}

// NewWatermarkCollector creates a collector reading from source.
func NewWatermarkCollector(source WatermarkSource) *WatermarkCollector {
	return &WatermarkCollector{
		source: source,
		now:    time.Now,
		age: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "watermark", "age_seconds"),
			"Seconds since the watermark was last advanced, -1 if never.",
			[]string{"name"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *WatermarkCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.age
}

// Collect implements prometheus.Collector.
func (c *WatermarkCollector) Collect(ch chan<- prometheus.Metric) {
	now := c.now()
	for name, v := range c.source.Snapshot() {
		age := -1.0
		if v != nil {
			age = now.Sub(*v).Seconds()
		}
		ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue, age, name)
	}
}
