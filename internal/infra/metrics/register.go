package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Series declared in this package queue themselves from init and are added to
// one genhub registry by MustRegister, together with the Go runtime and
// process collectors.
var (
	registry = prometheus.NewRegistry()
	queued   []prometheus.Collector
	regOnce  sync.Once
)

func register(cs ...prometheus.Collector) {
	queued = append(queued, cs...)
}

// MustRegister adds every queued series to the registry. Calls after the
// first do nothing.
func MustRegister() {
	regOnce.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry.MustRegister(queued...)
	})
}

// Handler serves the genhub registry in the exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
