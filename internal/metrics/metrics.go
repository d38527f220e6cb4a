// Package metrics exposes the session's health counters as Prometheus
// collectors (github.com/prometheus/client_golang). The core engine never
// opens a listener itself (spec.md's "no network surface" non-goal binds
// the core); a caller that wants an HTTP /metrics endpoint registers
// Registry.Gatherer() with its own promhttp handler.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry wraps a dedicated prometheus.Registry (not the global default
// registry, so multiple Sessions in one process don't collide) with the
// counters/gauges the session updates as a side effect of its existing
// state machine — no new control flow is introduced by instrumentation.
type Registry struct {
	reg *prometheus.Registry

	FramesPublished prometheus.Counter
	Reboots         prometheus.Counter
	StaleEpisodes   prometheus.Counter
	RetryCount      prometheus.Counter
	EventsEmitted   prometheus.Counter
	EventsDropped   prometheus.Counter
	QueueDepth      prometheus.Gauge
	LogDrops        prometheus.Counter
}

// New builds a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		FramesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strikepoint_frames_published_total",
			Help: "Unique thermal frames published to the mailbox.",
		}),
		Reboots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strikepoint_thermal_reboots_total",
			Help: "Sensor power-cycles triggered by the thermal assembler.",
		}),
		StaleEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strikepoint_thermal_stale_episodes_total",
			Help: "Stale-frame episodes (runs of consecutive duplicate frames) seen by the thermal assembler.",
		}),
		RetryCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strikepoint_thermal_retries_total",
			Help: "Packet-level retries raised by the thermal assembler.",
		}),
		EventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strikepoint_audio_events_emitted_total",
			Help: "Strike events enqueued by the audio detector.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strikepoint_audio_events_dropped_total",
			Help: "Strike events evicted from the queue on overflow.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strikepoint_audio_queue_depth",
			Help: "Current number of strike events waiting to be drained.",
		}),
		LogDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strikepoint_log_drops_total",
			Help: "Log records dropped from the in-memory buffer on overflow. The log does not update this counter; it stays at zero.",
		}),
	}
	reg.MustRegister(
		r.FramesPublished, r.Reboots, r.StaleEpisodes, r.RetryCount,
		r.EventsEmitted, r.EventsDropped, r.QueueDepth, r.LogDrops,
	)
	return r
}

// Gatherer exposes the underlying registry for a caller-owned promhttp
// handler; the core engine does not serve it.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
