// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/workdesk/internal/gate"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ゲート、IDプロバイダー、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordGateDecision(state gate.State)
	RecordRedirect(returnPath string)
	RecordSessionResolutionFailure()
	RecordSignIn(outcome string)
	RecordRecordOperation(operation string, err error, duration time.Duration)
	RecordSessionsCleaned(count int64)
	SetIdentityReady(ready bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions      *prometheus.CounterVec
	redirects          *prometheus.CounterVec
	resolutionFailures prometheus.Counter
	signIns            *prometheus.CounterVec
	recordOps          *prometheus.CounterVec
	recordLatency      *prometheus.HistogramVec
	sessionsCleaned    prometheus.Counter
	identityReady      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workdesk_gate_decisions_total",
			Help: "アクセスゲートの判定結果別の評価回数",
		}, []string{"state"}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workdesk_sign_in_redirects_total",
			Help: "サインインへのリダイレクト発行数（戻り先別）",
		}, []string{"return_path"}),
		resolutionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workdesk_session_resolution_failures_total",
			Help: "セッションストアのエラーにより解決できなかった回数",
		}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workdesk_sign_ins_total",
			Help: "サインイン結果別の合計数",
		}, []string{"outcome"}),
		recordOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workdesk_record_operations_total",
			Help: "レコード操作の合計数",
		}, []string{"operation", "result"}),
		recordLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workdesk_record_operation_seconds",
			Help:    "レコード操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workdesk_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
		identityReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workdesk_identity_ready",
			Help: "IDプロバイダーの初期解決が完了していれば1",
		}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.redirects,
		c.resolutionFailures,
		c.signIns,
		c.recordOps,
		c.recordLatency,
		c.sessionsCleaned,
		c.identityReady,
	)

	return c
}

// RecordGateDecision はゲートの判定結果を記録する。
func (c *Collector) RecordGateDecision(state gate.State) {
	c.gateDecisions.WithLabelValues(string(state)).Inc()
}

// RecordRedirect はサインインへのリダイレクト発行を記録する。
// 戻り先は設定値由来の固定パスのみのため、ラベルの種類は増えない。
func (c *Collector) RecordRedirect(returnPath string) {
	c.redirects.WithLabelValues(returnPath).Inc()
}

// RecordSessionResolutionFailure はセッション解決失敗を記録する。
func (c *Collector) RecordSessionResolutionFailure() {
	c.resolutionFailures.Inc()
}

// RecordSignIn はサインイン結果を記録する。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIns.WithLabelValues(outcome).Inc()
}

// RecordRecordOperation はレコード操作の結果とレイテンシを記録する。
func (c *Collector) RecordRecordOperation(operation string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.recordOps.WithLabelValues(operation, result).Inc()
	c.recordLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// SetIdentityReady はIDプロバイダーの初期解決状態を記録する。
func (c *Collector) SetIdentityReady(ready bool) {
	if ready {
		c.identityReady.Set(1)
		return
	}
	c.identityReady.Set(0)
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

var (
	_ gate.DecisionRecorder = (*Collector)(nil)
	_ MetricsCollector      = (*Collector)(nil)
)
