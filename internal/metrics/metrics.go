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
// 共有サービス・ワーカー・HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordOperation(op, outcome string, duration time.Duration)
	RecordTransactionRetry(op string)
	RecordInvitesSent(count int)
	RecordNotificationsEmitted(count int)
	RecordRepairs(kind string, count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	operations    *prometheus.CounterVec
	opLatency     *prometheus.HistogramVec
	txRetries     *prometheus.CounterVec
	invitesSent   prometheus.Counter
	notifications prometheus.Counter
	repairs       *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultshare_sharing_operations_total",
			Help: "共有操作の結果別の合計数",
		}, []string{"operation", "outcome"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vaultshare_sharing_operation_seconds",
			Help:    "共有操作のレイテンシ（秒）。トランザクションの再試行を含む",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultshare_transaction_retries_total",
			Help: "競合によるトランザクション再試行の合計数",
		}, []string{"operation"}),
		invitesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultshare_invites_sent_total",
			Help: "送信（再送を含む）された招待の合計数",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultshare_notifications_emitted_total",
			Help: "受信箱に追記された通知の合計数",
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultshare_reconcile_repairs_total",
			Help: "整合性監査で修復されたドキュメントの種類別合計数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultshare_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.operations,
		c.opLatency,
		c.txRetries,
		c.invitesSent,
		c.notifications,
		c.repairs,
		c.httpStatus,
	)

	return c
}

// RecordOperation は共有操作の結果とレイテンシを記録する。
func (c *Collector) RecordOperation(op, outcome string, duration time.Duration) {
	c.operations.WithLabelValues(op, outcome).Inc()
	c.opLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTransactionRetry はトランザクションの再試行を記録する。
func (c *Collector) RecordTransactionRetry(op string) {
	c.txRetries.WithLabelValues(op).Inc()
}

// RecordInvitesSent は送信した招待数を記録する。
func (c *Collector) RecordInvitesSent(count int) {
	c.invitesSent.Add(float64(count))
}

// RecordNotificationsEmitted は追記した通知数を記録する。
func (c *Collector) RecordNotificationsEmitted(count int) {
	c.notifications.Add(float64(count))
}

// RecordRepairs は修復件数を記録する。
func (c *Collector) RecordRepairs(kind string, count int) {
	if count <= 0 {
		return
	}
	c.repairs.WithLabelValues(kind).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成とテストで使用する。
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordOperation(string, string, time.Duration) {}
func (Nop) RecordTransactionRetry(string)                 {}
func (Nop) RecordInvitesSent(int)                         {}
func (Nop) RecordNotificationsEmitted(int)                {}
func (Nop) RecordRepairs(string, int)                     {}
func (Nop) RecordHTTPStatus(int)                          {}
