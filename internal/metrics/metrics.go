// Package metrics exposes the mission kernel's Prometheus collectors,
// grounded in engine/monitoring's PrometheusExporter (the ariadne reference
// repo): a private registry, namespaced Counter/Gauge vectors, and a
// Handler() for mounting on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mobfleet"

// Registry wraps the collectors every binary (droneagent, coordinator)
// registers against.
type Registry struct {
	registry *prometheus.Registry

	PhaseTransitions  *prometheus.CounterVec
	DetectionsTotal   *prometheus.CounterVec
	BusMessagesTotal  *prometheus.CounterVec
	DroneBatteryPct   *prometheus.GaugeVec
	DroneConnected    *prometheus.GaugeVec
	FleetSize         prometheus.Gauge
	SearchGridSum     prometheus.Gauge
	WaypointsAssigned prometheus.Counter
}

// New constructs and registers every collector.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "phase_transitions_total",
			Help: "Count of mission FSM transitions by trigger and resulting phase.",
		}, []string{"trigger", "phase"}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "detections_total",
			Help: "Count of sensor detections by drone and detector source.",
		}, []string{"drone_id", "source"}),
		BusMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bus_messages_total",
			Help: "Count of bus messages received by topic.",
		}, []string{"topic"}),
		DroneBatteryPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "drone_battery_pct",
			Help: "Last reported battery percentage per drone.",
		}, []string{"drone_id"}),
		DroneConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "drone_connected",
			Help: "1 if the drone's last heartbeat is within the configured max latency, else 0.",
		}, []string{"drone_id"}),
		FleetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fleet_size",
			Help: "Number of drones currently in the fleet roster.",
		}),
		SearchGridSum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "search_grid_probability_sum",
			Help: "Sum of the probabilistic search grid's cell values; should stay near 1.0.",
		}),
		WaypointsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "waypoints_assigned_total",
			Help: "Count of search waypoints handed out by the coordinator.",
		}),
	}

	reg.MustRegister(
		r.PhaseTransitions, r.DetectionsTotal, r.BusMessagesTotal,
		r.DroneBatteryPct, r.DroneConnected, r.FleetSize,
		r.SearchGridSum, r.WaypointsAssigned,
	)
	return r
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
