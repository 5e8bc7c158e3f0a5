// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 計画実行結果のラベル値。
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// プランナーやサービス層から利用する。
type MetricsCollector interface {
	RecordPlanningRun(result string)
	RecordPostsGenerated(count int)
	RecordPostsPromoted(count int)
	RecordGenerationFailure()
	RecordNotificationFailure()
	RecordSlotFallback()
	RecordPlanningLatency(duration time.Duration)
	RecordApproval()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	planningRuns         *prometheus.CounterVec
	postsGenerated       prometheus.Counter
	postsPromoted        prometheus.Counter
	generationFailures   prometheus.Counter
	notificationFailures prometheus.Counter
	slotFallbacks        prometheus.Counter
	planningLatency      prometheus.Histogram
	approvals            prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		planningRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentplanner_planning_runs_total",
			Help: "サイト単位のバッチ計画実行数（結果別）",
		}, []string{"result"}),
		postsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contentplanner_posts_generated_total",
			Help: "バッチ計画で生成・登録された投稿テーマの合計数",
		}),
		postsPromoted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contentplanner_posts_promoted_total",
			Help: "pendingからapprovedに昇格した投稿テーマの合計数",
		}),
		generationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contentplanner_generation_failures_total",
			Help: "テーマ生成失敗の合計数",
		}),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contentplanner_notification_failures_total",
			Help: "通知送信失敗の合計数",
		}),
		slotFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contentplanner_slot_fallback_total",
			Help: "28日以内に空き枠がなく翌日にフォールバックした回数",
		}),
		planningLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contentplanner_planning_latency_seconds",
			Help:    "サイト単位のバッチ計画のレイテンシ（秒）",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		approvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contentplanner_approvals_total",
			Help: "対話モードで承認された投稿テーマの合計数",
		}),
	}

	reg.MustRegister(
		c.planningRuns,
		c.postsGenerated,
		c.postsPromoted,
		c.generationFailures,
		c.notificationFailures,
		c.slotFallbacks,
		c.planningLatency,
		c.approvals,
	)

	return c
}

// RecordPlanningRun はサイト単位の計画実行結果を記録する。
func (c *Collector) RecordPlanningRun(result string) {
	c.planningRuns.WithLabelValues(result).Inc()
}

// RecordPostsGenerated は生成・登録された投稿テーマ数を記録する。
func (c *Collector) RecordPostsGenerated(count int) {
	c.postsGenerated.Add(float64(count))
}

// RecordPostsPromoted は昇格した投稿テーマ数を記録する。
func (c *Collector) RecordPostsPromoted(count int) {
	c.postsPromoted.Add(float64(count))
}

// RecordGenerationFailure はテーマ生成失敗を記録する。
func (c *Collector) RecordGenerationFailure() {
	c.generationFailures.Inc()
}

// RecordNotificationFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notificationFailures.Inc()
}

// RecordSlotFallback は空き枠探索のフォールバックを記録する。
func (c *Collector) RecordSlotFallback() {
	c.slotFallbacks.Inc()
}

// RecordPlanningLatency は計画のレイテンシを記録する。
func (c *Collector) RecordPlanningLatency(duration time.Duration) {
	c.planningLatency.Observe(duration.Seconds())
}

// RecordApproval は承認を記録する。
func (c *Collector) RecordApproval() {
	c.approvals.Inc()
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

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
