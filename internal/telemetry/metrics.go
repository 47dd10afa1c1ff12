package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CallbacksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "judge_callbacks_processed_total",
		Help: "Judge testcase callbacks merged into a submission verdict",
	})
	CallbacksRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "judge_callbacks_rejected_total",
		Help: "Judge testcase callbacks rejected while another was in flight",
	})
	JobsScheduled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contest_jobs_scheduled_total",
		Help: "Contest lifecycle jobs placed on the delayed queue",
	})
	JobsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contest_jobs_fired_total",
		Help: "Contest lifecycle jobs promoted and handled",
	})
	JobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contest_jobs_cancelled_total",
		Help: "Contest lifecycle jobs cancelled before firing",
	})
	LeaderboardPublishes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_publishes_total",
		Help: "Ranked leaderboard snapshots broadcast to contest rooms",
	})
)

var registerOnce sync.Once

// Register installs the collectors on the default registry. Safe to call from
// multiple packages; registration happens once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CallbacksProcessed,
			CallbacksRejected,
			JobsScheduled,
			JobsFired,
			JobsCancelled,
			LeaderboardPublishes,
		)
	})
}

func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
