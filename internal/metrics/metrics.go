// Package metrics 注册进程内的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 采集结果标签值
const (
	ResultCaptured  = "captured"
	ResultUndeleted = "undeleted"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

var (
	// CaptureImages 按结果统计的附件处理次数
	CaptureImages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord2vrc_capture_images_total",
		Help: "Image attachments handled by the capture pipeline, by result",
	}, []string{"result"})

	// CaptureMessages 进入采集流程的消息数
	CaptureMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discord2vrc_capture_messages_total",
		Help: "Messages from active channels handled by the capture pipeline",
	})

	// PurgedImages 被软删除的图片数
	PurgedImages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discord2vrc_purged_images_total",
		Help: "Images soft deleted by channel purges",
	})

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discord2vrc_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler 暴露默认注册表的指标
func Handler() http.Handler {
	return promhttp.Handler()
}
