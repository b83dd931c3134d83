package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sequences       *prometheus.CounterVec
	entries         *prometheus.CounterVec
	tbRuns          *prometheus.CounterVec
	tbDifference    prometheus.Gauge
	txRetries       *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik buku besar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan method, route dan status.",
	}, []string{"method", "route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sequences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_sequence_allocations_total",
		Help: "Nomor dokumen yang dialokasikan per prefix.",
	}, []string{"prefix"})
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_posted_total",
		Help: "Entri buku besar yang tercatat per jenis voucher.",
	}, []string{"voucher_type"})
	tbRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trial_balance_runs_total",
		Help: "Perhitungan neraca saldo berdasarkan hasil keseimbangan.",
	}, []string{"balanced"})
	tbDifference := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_trial_balance_difference",
		Help: "Selisih debit dan kredit pada perhitungan neraca saldo terakhir.",
	})
	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_tx_retries_total",
		Help: "Transaksi yang diulang karena konflik serialisasi, dan yang menyerah.",
	}, []string{"outcome"})
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, duration, sequences, entries, tbRuns, tbDifference, txRetries,
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		requestsTotal:   requests,
		requestDuration: duration,
		sequences:       sequences,
		entries:         entries,
		tbRuns:          tbRuns,
		tbDifference:    tbDifference,
		txRetries:       txRetries,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		// Pola route baru lengkap setelah chi selesai routing.
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SequenceAllocated menghitung nomor dokumen yang terpakai.
func (m *Metrics) SequenceAllocated(prefix string) {
	if m == nil {
		return
	}
	m.sequences.WithLabelValues(prefix).Inc()
}

// EntriesPosted menghitung entri yang sudah di-commit.
func (m *Metrics) EntriesPosted(voucherType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.entries.WithLabelValues(voucherType).Add(float64(count))
}

// TrialBalanceComputed mencatat hasil neraca saldo.
func (m *Metrics) TrialBalanceComputed(difference float64, balanced bool) {
	if m == nil {
		return
	}
	m.tbRuns.WithLabelValues(strconv.FormatBool(balanced)).Inc()
	m.tbDifference.Set(difference)
}

// TxRetried mencatat transaksi yang diulang.
func (m *Metrics) TxRetried(exhausted bool) {
	if m == nil {
		return
	}
	outcome := "retried"
	if exhausted {
		outcome = "exhausted"
	}
	m.txRetries.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Unwrap membuka writer asli untuk http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
