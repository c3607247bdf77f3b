// Package metrics provides Prometheus instrumentation for the Hertz
// matching service. It exposes histograms for ranking and messaging
// latency and counters for scoring throughput and connection lifecycle
// transitions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RankDuration records the end-to-end time of a match ranking request.
	RankDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hertz_rank_duration_seconds",
		Help:    "End-to-end match ranking latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// CandidatesScored counts candidate profiles pushed through the scorer.
	CandidatesScored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hertz_candidates_scored_total",
		Help: "Total number of candidate profiles scored",
	})

	// MatchesReturned records the number of candidates surviving the
	// inclusion threshold per ranking request.
	MatchesReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hertz_matches_returned",
		Help:    "Candidates returned per ranking request",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	// ConnectionTransitions counts connection lifecycle events, labeled by
	// action: "propose", "accept", "reject", "remove".
	ConnectionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hertz_connection_transitions_total",
		Help: "Total connection lifecycle transitions",
	}, []string{"action"})

	// MessagesTotal counts chat messages processed, labeled by outcome:
	// "sent" or "gated" (rejected because the pair is not connected).
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hertz_messages_total",
		Help: "Total chat messages processed",
	}, []string{"outcome"})

	// SpotifySyncs counts profile refreshes against the Spotify API,
	// labeled by result: "ok", "empty", "error".
	SpotifySyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hertz_spotify_syncs_total",
		Help: "Total Spotify profile synchronization attempts",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		RankDuration,
		CandidatesScored,
		MatchesReturned,
		ConnectionTransitions,
		MessagesTotal,
		SpotifySyncs,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
