// Package metrics records operation timings in a bounded in-memory buffer and
// exports them as a prometheus histogram.
package metrics

import (
	"errors"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCapacity is the number of measurements kept in memory.
const DefaultCapacity = 100

const recentInReport = 10

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metric is a single timed operation.
type Metric struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report summarizes the buffered measurements.
type Report struct {
	TotalMetrics int                `json:"totalMetrics"`
	Averages     map[string]float64 `json:"averagesMs"`
	Recent       []Metric           `json:"recent"`
}

// Monitor keeps the last measurements in a ring buffer. A nil *Monitor is
// valid and records nothing.
type Monitor struct {
	mu       sync.Mutex
	metrics  []Metric
	next     int
	full     bool
	duration *prometheus.HistogramVec
	now      func() time.Time
}

// NewMonitor builds a monitor holding capacity measurements (DefaultCapacity
// when <= 0) and registers its histogram with reg when reg is not nil.
func NewMonitor(capacity int, reg prometheus.Registerer) (*Monitor, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "herdbook",
		Name:      "operation_duration_seconds",
		Help:      "Duration of ledger operations and API calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	if reg != nil {
		if err := reg.Register(hist); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				return nil, err
			}
			hist = existing
		}
	}

	return &Monitor{
		metrics:  make([]Metric, capacity),
		duration: hist,
		now:      time.Now,
	}, nil
}

// StartMeasurement starts timing name; the returned func records the result.
func (m *Monitor) StartMeasurement(name string) func() {
	if m == nil {
		return func() {}
	}
	start := m.now()
	return func() {
		m.AddMetric(name, m.now().Sub(start))
	}
}

// AddMetric records a finished measurement.
func (m *Monitor) AddMetric(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(name).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[m.next] = Metric{Name: name, Duration: d, Timestamp: m.now()}
	m.next = (m.next + 1) % len(m.metrics)
	if m.next == 0 {
		m.full = true
	}
}

// Metrics returns the buffered measurements, oldest first, optionally
// restricted to name.
func (m *Monitor) Metrics(name string) []Metric {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.orderedLocked()
	if name == "" {
		return all
	}
	out := make([]Metric, 0, len(all))
	for _, metric := range all {
		if metric.Name == name {
			out = append(out, metric)
		}
	}
	return out
}

// Average returns the mean duration of the buffered measurements of name.
func (m *Monitor) Average(name string) time.Duration {
	metrics := m.Metrics(name)
	if len(metrics) == 0 {
		return 0
	}
	var sum time.Duration
	for _, metric := range metrics {
		sum += metric.Duration
	}
	return sum / time.Duration(len(metrics))
}

// MeasureAPICall times fn under name and returns its error.
func (m *Monitor) MeasureAPICall(name string, fn func() error) error {
	stop := m.StartMeasurement(name)
	defer stop()
	return fn()
}

// Report builds the summary of the buffer.
func (m *Monitor) Report() Report {
	metrics := m.Metrics("")

	sums := make(map[string]time.Duration)
	counts := make(map[string]int)
	for _, metric := range metrics {
		sums[metric.Name] += metric.Duration
		counts[metric.Name]++
	}

	averages := make(map[string]float64, len(sums))
	for name, sum := range sums {
		averages[name] = float64(sum) / float64(counts[name]) / float64(time.Millisecond)
	}

	recent := metrics
	if len(recent) > recentInReport {
		recent = recent[len(recent)-recentInReport:]
	}

	return Report{TotalMetrics: len(metrics), Averages: averages, Recent: recent}
}

// ReportJSON encodes Report.
func (m *Monitor) ReportJSON() ([]byte, error) {
	return json.Marshal(m.Report())
}

// Clear drops the buffered measurements. The histogram is left untouched.
func (m *Monitor) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.metrics {
		m.metrics[i] = Metric{}
	}
	m.next = 0
	m.full = false
}

func (m *Monitor) orderedLocked() []Metric {
	if !m.full {
		out := make([]Metric, m.next)
		copy(out, m.metrics[:m.next])
		return out
	}
	out := make([]Metric, 0, len(m.metrics))
	out = append(out, m.metrics[m.next:]...)
	return append(out, m.metrics[:m.next]...)
}
