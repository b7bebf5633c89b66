package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobTransitionsTotal, jobPollsTotal) }

var (
	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_transitions_total",
			Help: "Job status transitions, labeled by kind and edge.",
		},
		[]string{"kind", "from", "to"},
	)

	jobPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_remote_polls_total",
			Help: "Remote status checks issued for running jobs.",
		},
		[]string{"provider"},
	)
)

func IncJobTransition(kind, from, to string) {
	jobTransitionsTotal.WithLabelValues(norm(kind), norm(from), norm(to)).Inc()
}

func IncJobPoll(provider string) {
	jobPollsTotal.WithLabelValues(norm(provider)).Inc()
}
