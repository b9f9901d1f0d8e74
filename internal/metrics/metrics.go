// Package metrics provides ambient Prometheus instrumentation for the SDK:
// verification outcomes, poll-loop duration, and token refreshes. An
// embedding service scrapes the same registry it already uses for its own
// metrics, following the promauto idiom from client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aim_sdk",
		Name:      "verifications_total",
		Help:      "Total verification requests submitted, labeled by terminal status.",
	}, []string{"status"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aim_sdk",
		Name:      "verification_poll_duration_seconds",
		Help:      "Time spent polling for a verification decision before reaching a terminal state.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	TokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aim_sdk",
		Name:      "token_refreshes_total",
		Help:      "Total access token refresh attempts, labeled by outcome.",
	}, []string{"outcome"})
)
