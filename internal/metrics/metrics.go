// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// HTTP層、ブートストラップ、診断、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordCallbackOutcome(state string, attempts int)
	RecordProfileLookup(found bool, attempts int)
	RecordDiagnosis(duration time.Duration, ok bool)
	RecordProfilesProvisioned(created int)
	RecordSiteCheck(reachable bool)
	RecordSessionsCleaned(deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus          *prometheus.CounterVec
	callbackOutcome     *prometheus.CounterVec
	callbackAttempts    prometheus.Histogram
	profileLookup       *prometheus.CounterVec
	diagnosisTotal      *prometheus.CounterVec
	diagnosisLatency    prometheus.Histogram
	profilesProvisioned prometheus.Counter
	siteChecks          *prometheus.CounterVec
	sessionsCleaned     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inflect_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		callbackOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inflect_auth_callback_total",
			Help: "認証コールバックの終了状態別の件数",
		}, []string{"state"}),
		callbackAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inflect_auth_callback_attempts",
			Help:    "認証コールバックでセッションを確認した回数",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		profileLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inflect_profile_lookup_total",
			Help: "マイページ表示時のプロフィール取得結果",
		}, []string{"result"}),
		diagnosisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inflect_diagnosis_total",
			Help: "AI診断の実行結果別の件数",
		}, []string{"result"}),
		diagnosisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inflect_diagnosis_latency_seconds",
			Help:    "AI診断のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		profilesProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inflect_profiles_provisioned_total",
			Help: "ワーカーが作成したプロフィールの合計数",
		}),
		siteChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inflect_site_check_total",
			Help: "パイロット申込Webサイト確認の結果別の件数",
		}, []string{"result"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inflect_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.callbackOutcome,
		c.callbackAttempts,
		c.profileLookup,
		c.diagnosisTotal,
		c.diagnosisLatency,
		c.profilesProvisioned,
		c.siteChecks,
		c.sessionsCleaned,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCallbackOutcome は認証コールバックの終了状態と試行回数を記録する。
func (c *Collector) RecordCallbackOutcome(state string, attempts int) {
	c.callbackOutcome.WithLabelValues(state).Inc()
	if attempts > 0 {
		c.callbackAttempts.Observe(float64(attempts))
	}
}

// RecordProfileLookup はプロフィール取得の成否を記録する。
func (c *Collector) RecordProfileLookup(found bool, attempts int) {
	c.profileLookup.WithLabelValues(resultLabel(found, "found", "fallback")).Inc()
}

// RecordDiagnosis はAI診断の所要時間と成否を記録する。
func (c *Collector) RecordDiagnosis(duration time.Duration, ok bool) {
	c.diagnosisTotal.WithLabelValues(resultLabel(ok, "ok", "error")).Inc()
	c.diagnosisLatency.Observe(duration.Seconds())
}

// RecordProfilesProvisioned は作成されたプロフィール数を記録する。
func (c *Collector) RecordProfilesProvisioned(created int) {
	c.profilesProvisioned.Add(float64(created))
}

// RecordSiteCheck はWebサイト確認の結果を記録する。
func (c *Collector) RecordSiteCheck(reachable bool) {
	c.siteChecks.WithLabelValues(resultLabel(reachable, "reachable", "unreachable")).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(deleted int64) {
	c.sessionsCleaned.Add(float64(deleted))
}

func resultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
