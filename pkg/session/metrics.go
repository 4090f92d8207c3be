package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sudorandom/ropt-live/pkg/model"
)

var (
	snapshotsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ropt_live_snapshots_applied_total",
		Help: "Snapshots applied to the view, by source",
	}, []string{"source"})

	snapshotsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ropt_live_snapshots_dropped_total",
		Help: "Polled snapshots discarded because the live channel was already up",
	})

	routeUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ropt_live_route_updates_total",
		Help: "Route updates received on the live channel",
	})

	transportErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ropt_live_transport_errors_total",
		Help: "Fetch, decode and channel errors retained by the session",
	})

	flashesTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ropt_live_flashes_triggered_total",
		Help: "Zone flashes started or extended by entry events",
	})

	activeFlashesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ropt_live_active_flashes",
		Help: "Zones currently flashing",
	})

	connectionStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ropt_live_connection_state",
		Help: "1 for the current live channel state, 0 otherwise",
	}, []string{"state"})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ropt_live_poll_duration_seconds",
		Help:    "Duration of GET /state polls",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

var connStates = []model.ConnState{model.ConnConnecting, model.ConnLive, model.ConnError, model.ConnOffline}

func recordConnState(s model.ConnState) {
	for _, st := range connStates {
		v := 0.0
		if st == s {
			v = 1
		}
		connectionStateGauge.WithLabelValues(string(st)).Set(v)
	}
}
