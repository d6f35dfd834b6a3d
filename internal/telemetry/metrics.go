// Package telemetry は投稿タスクの Prometheus メトリクスを提供します。
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	TasksStarted    prometheus.Counter
	TasksActive     prometheus.Gauge
	ResolveFailures prometheus.Counter
	PostsSucceeded  prometheus.Counter
	PostsFailed     *prometheus.CounterVec
)

// Init はメトリクスを登録します (何度呼んでも一度だけ登録されます)。
func Init() {
	once.Do(func() {
		TasksStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chatposter_tasks_started_total", Help: "Number of chat poster tasks spawned"})
		TasksActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatposter_tasks_active", Help: "Number of chat poster tasks currently running"})
		ResolveFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chatposter_resolve_failures_total", Help: "Number of tasks that failed to resolve a live chat id"})
		PostsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "chatposter_posts_succeeded_total", Help: "Number of chat messages posted"})
		PostsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatposter_posts_failed_total", Help: "Number of failed chat message posts"}, []string{"kind"})
	})
}

// TaskStarted はタスク起動を記録します。
func TaskStarted() {
	if TasksStarted != nil {
		TasksStarted.Inc()
	}
	if TasksActive != nil {
		TasksActive.Inc()
	}
}

// TaskFinished はタスク終了を記録します。
func TaskFinished() {
	if TasksActive != nil {
		TasksActive.Dec()
	}
}

func ResolveFailed() {
	if ResolveFailures != nil {
		ResolveFailures.Inc()
	}
}

func PostSucceeded() {
	if PostsSucceeded != nil {
		PostsSucceeded.Inc()
	}
}

// PostFailed は失敗した投稿を kind ラベル付きで記録します。
func PostFailed(kind string) {
	if PostsFailed != nil {
		PostsFailed.WithLabelValues(kind).Inc()
	}
}
