package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for the gateway, the curator and the store. It implements
// spotify.Recorder and curator.Recorder.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitedTotal *prometheus.CounterVec
	TracksAddedTotal prometheus.Counter
	DuplicatesTotal  prometheus.Counter
	PublishesTotal   *prometheus.CounterVec
	PersistFailures  prometheus.Counter
	PlaylistSize     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setlist_spotify_requests_total",
				Help: "Total number of Spotify API calls",
			},
			[]string{"op", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "setlist_spotify_request_duration_seconds",
				Help:    "Time spent in Spotify API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setlist_spotify_rate_limited_total",
				Help: "Total number of 429 answers from Spotify",
			},
			[]string{"op"},
		),
		TracksAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "setlist_tracks_added_total",
				Help: "Total number of tracks added to a project aggregate",
			},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "setlist_duplicates_total",
				Help: "Total number of fetched tracks already present in the aggregate",
			},
		),
		PublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "setlist_publishes_total",
				Help: "Total number of publish attempts",
			},
			[]string{"outcome"},
		),
		PersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "setlist_persist_failures_total",
				Help: "Total number of snapshot writes that failed",
			},
		),
		PlaylistSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "setlist_playlist_size",
				Help: "Number of tracks in the last updated project",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RateLimitedTotal,
		m.TracksAddedTotal,
		m.DuplicatesTotal,
		m.PublishesTotal,
		m.PersistFailures,
		m.PlaylistSize,
	)

	return m
}

func (m *Metrics) RecordRequest(op, outcome string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(op, outcome).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Metrics) RecordRateLimited(op string) {
	m.RateLimitedTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordTracksAdded(added, duplicates int) {
	m.TracksAddedTotal.Add(float64(added))
	m.DuplicatesTotal.Add(float64(duplicates))
}

func (m *Metrics) RecordPublish(outcome string) {
	m.PublishesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPlaylistSize(size int) {
	m.PlaylistSize.Set(float64(size))
}
