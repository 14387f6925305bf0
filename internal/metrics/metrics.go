package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kwscan/internal/domain"
)

var (
	keywordImpactDesc = prometheus.NewDesc(
		"kwscan_keyword_occurrences",
		"Occurrences of a candidate keyword in the last run, by bucket",
		[]string{"keyword", "bucket"},
		nil,
	)
)

// ReportCollector exports the per-keyword totals of the most recent report on
// each scrape.
type ReportCollector struct {
	mu     sync.RWMutex
	report *domain.Report
}

// Describe sends the metric descriptor to the channel.
func (c *ReportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- keywordImpactDesc
}

// Collect emits one gauge per keyword and bucket.
func (c *ReportCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.report == nil {
		return
	}
	for _, k := range c.report.Keywords {
		ch <- prometheus.MustNewConstMetric(keywordImpactDesc, prometheus.GaugeValue, float64(k.SoftCount), k.Keyword, "soft")
		ch <- prometheus.MustNewConstMetric(keywordImpactDesc, prometheus.GaugeValue, float64(k.HardCount), k.Keyword, "hard")
	}
}

// Recorder collects run metrics on its own registry so several runs in one
// process do not collide.
type Recorder struct {
	registry *prometheus.Registry
	files    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	tokens   prometheus.Histogram
	duration prometheus.Histogram
	report   *ReportCollector
}

// NewRecorder creates a recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kwscan_files_total",
			Help: "Files processed, by outcome",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kwscan_file_errors_total",
			Help: "Files excluded because of an error, by kind",
		}, []string{"kind"}),
		tokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kwscan_file_tokens",
			Help:    "Tokens per analyzed file",
			Buckets: prometheus.ExponentialBuckets(16, 4, 9),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kwscan_file_duration_seconds",
			Help:    "Time spent analyzing one file",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9),
		}),
		report: &ReportCollector{},
	}
	r.registry.MustRegister(r.files, r.errors, r.tokens, r.duration, r.report)
	return r
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FileAnalyzed records a successfully analyzed file.
func (r *Recorder) FileAnalyzed(outcome domain.FileOutcome, cached bool, elapsed time.Duration) {
	if cached {
		r.files.WithLabelValues("cached").Inc()
		return
	}
	r.files.WithLabelValues("analyzed").Inc()
	r.tokens.Observe(float64(outcome.Tokens))
	r.duration.Observe(elapsed.Seconds())
}

// FileFailed records a file excluded because of an error.
func (r *Recorder) FileFailed(kind domain.ErrorKind) {
	r.files.WithLabelValues("failed").Inc()
	r.errors.WithLabelValues(string(kind)).Inc()
}

// SetReport publishes the final report's keyword totals.
func (r *Recorder) SetReport(rep *domain.Report) {
	r.report.mu.Lock()
	defer r.report.mu.Unlock()
	r.report.report = rep
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
