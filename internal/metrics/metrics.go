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
// 関数ハンドラー、ドキュメントアクセサ、RPCクライアントから利用する。
type MetricsCollector interface {
	RecordInvocation(function string, success bool, duration time.Duration)
	ObserveDocumentWrite(collection string, success bool)
	ObserveRPC(route string, success bool, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	invocations    *prometheus.CounterVec
	invocationTime *prometheus.HistogramVec
	documentWrites *prometheus.CounterVec
	rpcCalls       *prometheus.CounterVec
	rpcLatency     *prometheus.HistogramVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastiest_function_invocations_total",
			Help: "関数の呼び出し回数",
		}, []string{"function", "outcome"}),
		invocationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tastiest_function_duration_seconds",
			Help:    "関数の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"function"}),
		documentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastiest_document_writes_total",
			Help: "ドキュメントへのフィールド書き込み回数",
		}, []string{"collection", "outcome"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastiest_rpc_calls_total",
			Help: "Horus RPCの呼び出し回数",
		}, []string{"route", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tastiest_rpc_latency_seconds",
			Help:    "Horus RPCのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tastiest_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.invocations,
		c.invocationTime,
		c.documentWrites,
		c.rpcCalls,
		c.rpcLatency,
		c.httpStatus,
	)

	return c
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordInvocation は関数の呼び出し結果と処理時間を記録する。
func (c *Collector) RecordInvocation(function string, success bool, duration time.Duration) {
	c.invocations.WithLabelValues(function, outcome(success)).Inc()
	c.invocationTime.WithLabelValues(function).Observe(duration.Seconds())
}

// ObserveDocumentWrite はドキュメント書き込みの結果を記録する。
func (c *Collector) ObserveDocumentWrite(collection string, success bool) {
	c.documentWrites.WithLabelValues(collection, outcome(success)).Inc()
}

// ObserveRPC はRPC呼び出しの結果とレイテンシを記録する。
// routeはテンプレート（動的セグメント置換前）なのでラベルの濃度は有限。
func (c *Collector) ObserveRPC(route string, success bool, duration time.Duration) {
	c.rpcCalls.WithLabelValues(route, outcome(success)).Inc()
	c.rpcLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
