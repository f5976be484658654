/*
Package metrics exposes depreciation posting metrics to Prometheus.

PURPOSE:
  Implements depreciation.Recorder so the posting engine can count the
  postings it creates and the schedules it fails on, and keeps a gauge of
  assets per status refreshed after each sweep.

METRICS:
  asset_depreciation_postings_total{finance_book}
  asset_depreciation_posted_amount_total{finance_book}
  asset_depreciation_postings_cancelled_total{finance_book}
  asset_depreciation_schedule_failures_total{reason}
  asset_depreciation_sweeps_total
  asset_depreciation_sweep_duration_seconds
  asset_depreciation_last_sweep_schedules
  asset_depreciation_assets{status}

SEE ALSO:
  - depreciation/posting.go: Recorder
  - api/scheduler.go: calls UpdateAssetMetrics after each sweep
*/
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/warp/asset-engine/depreciation"
)

const namespace = "asset_depreciation"

// Metrics contains all Prometheus metrics of the engine.
type Metrics struct {
	PostingsTotal     *prometheus.CounterVec
	PostedAmount      *prometheus.CounterVec
	PostingsCancelled *prometheus.CounterVec
	ScheduleFailures  *prometheus.CounterVec

	SweepsTotal        prometheus.Counter
	SweepDuration      prometheus.Histogram
	LastSweepSchedules prometheus.Gauge

	Assets *prometheus.GaugeVec
}

// New registers the metrics with the default registerer.
func New() *Metrics {
	return NewWithRegistry(nil)
}

// NewWithRegistry registers the metrics with registry.
func NewWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		PostingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_total",
			Help:      "Depreciation postings created",
		}, []string{"finance_book"}),
		PostedAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posted_amount_total",
			Help:      "Sum of depreciation amounts posted",
		}, []string{"finance_book"}),
		PostingsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_cancelled_total",
			Help:      "Depreciation postings reversed",
		}, []string{"finance_book"}),
		ScheduleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_failures_total",
			Help:      "Schedules a sweep could not post",
		}, []string{"reason"}),
		SweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed posting sweeps",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of posting sweeps",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		LastSweepSchedules: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_schedules",
			Help:      "Schedules with due rows in the last sweep",
		}),
		Assets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assets",
			Help:      "Assets per status",
		}, []string{"status"}),
	}
}

func (m *Metrics) PostingsCreated(financeBook string, count int, amount decimal.Decimal) {
	m.PostingsTotal.WithLabelValues(financeBook).Add(float64(count))
	m.PostedAmount.WithLabelValues(financeBook).Add(amount.InexactFloat64())
}

func (m *Metrics) PostingCancelled(financeBook string) {
	m.PostingsCancelled.WithLabelValues(financeBook).Inc()
}

func (m *Metrics) ScheduleFailed(reason string) {
	m.ScheduleFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SweepCompleted(schedules, failures int, elapsed time.Duration) {
	m.SweepsTotal.Inc()
	m.SweepDuration.Observe(elapsed.Seconds())
	m.LastSweepSchedules.Set(float64(schedules))
}

// UpdateAssetMetrics recounts assets per status.
func (m *Metrics) UpdateAssetMetrics(ctx context.Context, st depreciation.AssetStore) error {
	list, err := st.ListAssets(ctx)
	if err != nil {
		return err
	}
	counts := make(map[depreciation.AssetStatus]int)
	for _, a := range list {
		counts[a.Status]++
	}
	m.Assets.Reset()
	for status, n := range counts {
		m.Assets.WithLabelValues(string(status)).Set(float64(n))
	}
	return nil
}

var _ depreciation.Recorder = (*Metrics)(nil)
