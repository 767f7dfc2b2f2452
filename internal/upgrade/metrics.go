package upgrade

import "github.com/prometheus/client_golang/prometheus"

var questionMigrationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_question_migrations_total",
		Help: "Total stored-question migration attempts by outcome.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(questionMigrationsTotal)
}
