package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		providerCallLatencyMs,
		providerErrors,
		providerTokens,
	)
}

var (
	providerCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Provider call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000, 60000},
		},
		[]string{"provider", "op", "success"},
	)

	providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Provider call failures by normalized error kind.",
		},
		[]string{"provider", "kind"},
	)

	providerTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_tokens_total",
			Help: "Tokens reported or estimated per provider/model.",
		},
		[]string{"provider", "model"},
	)
)

func ObserveProviderCall(provider, op string, d time.Duration, success bool) {
	providerCallLatencyMs.WithLabelValues(norm(provider), op, strconv.FormatBool(success)).
		Observe(float64(d / time.Millisecond))
}

func IncProviderError(provider, kind string) {
	providerErrors.WithLabelValues(norm(provider), kind).Inc()
}

func AddTokens(provider, model string, n int) {
	if n <= 0 {
		return
	}
	providerTokens.WithLabelValues(norm(provider), norm(model)).Add(float64(n))
}
