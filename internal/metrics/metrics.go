// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミラー・サービス層・セッションレジストリから利用する。
type MetricsCollector interface {
	RecordSnapshotApplied(collection string, size int)
	RecordCascadeDelete(taskCount int)
	RecordLogin(outcome string)
	RecordBatchCommitLatency(duration time.Duration)
	SetActiveSessions(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	snapshotsApplied   *prometheus.CounterVec
	mirrorSize         *prometheus.GaugeVec
	cascadeDeletes     prometheus.Counter
	cascadeTasks       prometheus.Counter
	logins             *prometheus.CounterVec
	batchCommitLatency prometheus.Histogram
	activeSessions     prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		snapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agenda_snapshots_applied_total",
			Help: "コレクション別に適用されたスナップショットの合計数",
		}, []string{"collection"}),
		mirrorSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agenda_mirror_size",
			Help: "コレクション別のミラー内ドキュメント数（最終スナップショット時点）",
		}, []string{"collection"}),
		cascadeDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agenda_cascade_deletes_total",
			Help: "顧客カスケード削除の合計数",
		}),
		cascadeTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agenda_cascade_deleted_tasks_total",
			Help: "カスケード削除で巻き込まれたタスクの合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agenda_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		batchCommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agenda_batch_commit_latency_seconds",
			Help:    "書き込みバッチコミットのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agenda_active_sessions",
			Help: "稼働中のセッション数",
		}),
	}

	reg.MustRegister(
		c.snapshotsApplied,
		c.mirrorSize,
		c.cascadeDeletes,
		c.cascadeTasks,
		c.logins,
		c.batchCommitLatency,
		c.activeSessions,
	)

	return c
}

// RecordSnapshotApplied はスナップショット適用を記録する。
func (c *Collector) RecordSnapshotApplied(collection string, size int) {
	c.snapshotsApplied.WithLabelValues(collection).Inc()
	c.mirrorSize.WithLabelValues(collection).Set(float64(size))
}

// RecordCascadeDelete はカスケード削除と巻き込まれたタスク数を記録する。
func (c *Collector) RecordCascadeDelete(taskCount int) {
	c.cascadeDeletes.Inc()
	c.cascadeTasks.Add(float64(taskCount))
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordBatchCommitLatency は書き込みバッチコミットのレイテンシを記録する。
func (c *Collector) RecordBatchCommitLatency(duration time.Duration) {
	c.batchCommitLatency.Observe(duration.Seconds())
}

// SetActiveSessions は稼働中のセッション数を設定する。
func (c *Collector) SetActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
