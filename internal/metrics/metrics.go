// Package metrics 定义转发流程的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UnitsForwarded 成功转发的单元数
	UnitsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_units_forwarded_total",
			Help: "Total number of units (messages or media groups) forwarded to the target channel",
		},
		[]string{"channel", "kind"},
	)

	// ForwardFailures 转发失败的单元数（水位线仍会推进）
	ForwardFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_forward_failures_total",
			Help: "Total number of units whose forward call failed",
		},
		[]string{"channel"},
	)

	// DuplicatesSkipped 重复检查命中的单元数
	DuplicatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_duplicates_skipped_total",
			Help: "Total number of units skipped because a content record already existed",
		},
		[]string{"channel"},
	)

	// HistoryErrors 拉取历史消息失败次数
	HistoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_history_errors_total",
			Help: "Total number of failed history fetches",
		},
		[]string{"channel"},
	)

	// ArchiveUploads 媒体归档结果
	ArchiveUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_archive_uploads_total",
			Help: "Total number of media archive attempts by result",
		},
		[]string{"result"},
	)

	// RecordsSaved 写入内容记录结果
	RecordsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_records_saved_total",
			Help: "Total number of content record writes by result",
		},
		[]string{"result"},
	)

	// Watermark 每个频道当前的水位线
	Watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_watermark",
			Help: "Highest processed message id per source channel",
		},
		[]string{"channel"},
	)

	// PollDuration 单次轮询耗时
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_poll_duration_seconds",
			Help:    "Duration of one poll over all source channels",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// 归档与记录结果标签
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// ObservePoll 记录一次轮询耗时
func ObservePoll(started time.Time) {
	PollDuration.Observe(time.Since(started).Seconds())
}
