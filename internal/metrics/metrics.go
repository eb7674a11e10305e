package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CredentialsIssued  *prometheus.CounterVec
	Scans              *prometheus.CounterVec
	ScanLatency        prometheus.Histogram
	CertificatesIssued prometheus.Counter
	CertificateRuns    *prometheus.CounterVec
	DispatchOutcomes   *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	Jobs               *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcheckin_credentials_issued_total",
			Help: "Credentials returned by issuance, split by whether an existing one was reused",
		}, []string{"reissued"}),

		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcheckin_scans_total",
			Help: "Check-in scans by outcome and rejection reason",
		}, []string{"outcome", "reason"}),

		ScanLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "clubcheckin_scan_duration_seconds",
			Help:    "Duration of scan validation including the conditional update",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		CertificatesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "clubcheckin_certificates_issued_total",
			Help: "Certificate records inserted",
		}),

		CertificateRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcheckin_certificate_runs_total",
			Help: "Certificate issuance runs by result",
		}, []string{"result"}), // result: "issued", "nothing_to_issue", "failed"

		DispatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcheckin_dispatch_outcomes_total",
			Help: "Per-recipient notification outcomes by template and status",
		}, []string{"template", "status"}),

		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubcheckin_dispatch_duration_seconds",
			Help:    "Wall time of a full dispatch job",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"template"}),

		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clubcheckin_jobs_total",
			Help: "Background jobs processed by kind and result",
		}, []string{"kind", "result"}),
	}
}

// IncCredentialsIssued counts a credential handed out.
func (m *Metrics) IncCredentialsIssued(reissued bool) {
	if m != nil {
		m.CredentialsIssued.WithLabelValues(strconv.FormatBool(reissued)).Inc()
	}
}

// IncScan records a scan verdict.
func (m *Metrics) IncScan(outcome, reason string) {
	if m != nil {
		m.Scans.WithLabelValues(outcome, reason).Inc()
	}
}

// ObserveScanLatency records how long a scan took to validate.
func (m *Metrics) ObserveScanLatency(d time.Duration) {
	if m != nil {
		m.ScanLatency.Observe(d.Seconds())
	}
}

// AddCertificatesIssued adds n inserted certificates.
func (m *Metrics) AddCertificatesIssued(n int) {
	if m != nil && n > 0 {
		m.CertificatesIssued.Add(float64(n))
	}
}

// IncCertificateRun records the result of one issuance run.
func (m *Metrics) IncCertificateRun(result string) {
	if m != nil {
		m.CertificateRuns.WithLabelValues(result).Inc()
	}
}

// IncDispatchOutcome records one recipient's final status.
func (m *Metrics) IncDispatchOutcome(template, status string) {
	if m != nil {
		m.DispatchOutcomes.WithLabelValues(template, status).Inc()
	}
}

// ObserveDispatchDuration records a finished dispatch job.
func (m *Metrics) ObserveDispatchDuration(template string, d time.Duration) {
	if m != nil {
		m.DispatchDuration.WithLabelValues(template).Observe(d.Seconds())
	}
}

// IncJob records a processed background job.
func (m *Metrics) IncJob(kind, result string) {
	if m != nil {
		m.Jobs.WithLabelValues(kind, result).Inc()
	}
}
