/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Seednode/secretsanta/santa"
)

type santaMetrics struct {
	draws       *prometheus.CounterVec
	drawLatency prometheus.Histogram
	resets      prometheus.Counter
	claimed     prometheus.Gauge
	remaining   prometheus.Gauge
}

// newSantaMetrics registers the game collectors with reg.
// A nil reg yields working collectors that are never exported.
func newSantaMetrics(reg prometheus.Registerer) *santaMetrics {
	f := promauto.With(reg)

	return &santaMetrics{
		draws: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secretsanta",
			Name:      "draws_total",
			Help:      "Draw requests by outcome (drawn, repeat, no_candidate, persistence, error).",
		}, []string{"result"}),
		drawLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "secretsanta",
			Name:      "draw_duration_seconds",
			Help:      "Time taken to draw and save a recipient.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Namespace: "secretsanta",
			Name:      "resets_total",
			Help:      "Completed game resets.",
		}),
		claimed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "secretsanta",
			Name:      "claimed",
			Help:      "Participants who have drawn a recipient.",
		}),
		remaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "secretsanta",
			Name:      "remaining",
			Help:      "Names still in the pool.",
		}),
	}
}

func (m *santaMetrics) observe(st santa.Status) {
	m.claimed.Set(float64(st.Claimed))
	m.remaining.Set(float64(st.Remaining))
}
