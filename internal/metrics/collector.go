// Package nfcmetrics provides the Prometheus metrics exposed by nfcd:
// adapter power and target-presence state, tag/peer/host churn, and APDU routing
// outcomes.
package nfcmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "nfcd"
	subsystem = "core"
)

// Label names for nfcd metrics.
const (
	labelAdapter = "adapter"
	labelKind    = "kind"
	labelSW      = "sw"
)

// -------------------------------------------------------------------------
// Collector — Prometheus nfcd Metrics
// -------------------------------------------------------------------------

// Collector holds all nfcd Prometheus metrics.
//
//   - Adapter gauges track power and target-presence state per controller.
//   - Entity counters track tag/peer/host churn per adapter.
//   - APDU counters track host-engine routing outcomes by status word.
type Collector struct {
	// AdaptersPowered reports, per adapter, whether it is currently
	// powered (1) or not (0).
	AdaptersPowered *prometheus.GaugeVec

	// AdapterTargetPresent tracks each adapter's target-present flag
	// (1 present, 0 absent) per §3 invariant (d).
	AdapterTargetPresent *prometheus.GaugeVec

	// EntitiesAdded counts tag/peer/host additions per adapter.
	EntitiesAdded *prometheus.CounterVec

	// EntitiesRemoved counts tag/peer/host removals per adapter.
	EntitiesRemoved *prometheus.CounterVec

	// DriverFailures counts submit-hook and completion failures per adapter
	// (§7 "DriverFailure").
	DriverFailures *prometheus.CounterVec

	// APDUsRouted counts host-engine routing outcomes labeled by the
	// status word returned, for alerting on unexpected fall-through rates.
	APDUsRouted *prometheus.CounterVec
}

// NewCollector creates a Collector with all nfcd metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "nfcd_core_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.AdaptersPowered,
		c.AdapterTargetPresent,
		c.EntitiesAdded,
		c.EntitiesRemoved,
		c.DriverFailures,
		c.APDUsRouted,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	adapterLabels := []string{labelAdapter}
	entityLabels := []string{labelAdapter, labelKind}
	apduLabels := []string{labelAdapter, labelSW}

	return &Collector{
		AdaptersPowered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "adapter_powered",
			Help:      "Whether an adapter is currently powered (1) or not (0).",
		}, adapterLabels),

		AdapterTargetPresent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "adapter_target_present",
			Help:      "Whether an adapter currently has a present tag, peer, or host.",
		}, adapterLabels),

		EntitiesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entities_added_total",
			Help:      "Total tag/peer/host entities added, labeled by kind.",
		}, entityLabels),

		EntitiesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entities_removed_total",
			Help:      "Total tag/peer/host entities removed, labeled by kind.",
		}, entityLabels),

		DriverFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "driver_failures_total",
			Help:      "Total driver submit/completion failures per adapter (§7 DriverFailure).",
		}, adapterLabels),

		APDUsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "apdus_routed_total",
			Help:      "Total APDUs routed by the host engine, labeled by response status word.",
		}, apduLabels),
	}
}

// -------------------------------------------------------------------------
// Adapter state
// -------------------------------------------------------------------------

// SetAdapterPowered records whether adapter is currently powered.
func (c *Collector) SetAdapterPowered(adapter string, powered bool) {
	c.AdaptersPowered.WithLabelValues(adapter).Set(boolValue(powered))
}

// SetAdapterTargetPresent records an adapter's target-present flag.
func (c *Collector) SetAdapterTargetPresent(adapter string, present bool) {
	c.AdapterTargetPresent.WithLabelValues(adapter).Set(boolValue(present))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// -------------------------------------------------------------------------
// Entity lifecycle
// -------------------------------------------------------------------------

// IncEntityAdded increments the added counter for kind ("tag", "peer", or
// "host") on adapter.
func (c *Collector) IncEntityAdded(adapter, kind string) {
	c.EntitiesAdded.WithLabelValues(adapter, kind).Inc()
}

// IncEntityRemoved increments the removed counter for kind on adapter.
func (c *Collector) IncEntityRemoved(adapter, kind string) {
	c.EntitiesRemoved.WithLabelValues(adapter, kind).Inc()
}

// -------------------------------------------------------------------------
// Driver failures
// -------------------------------------------------------------------------

// IncDriverFailure increments the driver failure counter for adapter.
func (c *Collector) IncDriverFailure(adapter string) {
	c.DriverFailures.WithLabelValues(adapter).Inc()
}

// -------------------------------------------------------------------------
// APDU routing
// -------------------------------------------------------------------------

// IncAPDURouted increments the routed-APDU counter for adapter, labeled by
// the status word returned to the initiator (formatted as four hex
// digits, e.g. "9000").
func (c *Collector) IncAPDURouted(adapter string, sw uint16) {
	c.APDUsRouted.WithLabelValues(adapter, swHex(sw)).Inc()
}

func swHex(sw uint16) string {
	const hexDigits = "0123456789ABCDEF"
	b := [4]byte{
		hexDigits[(sw>>12)&0xF],
		hexDigits[(sw>>8)&0xF],
		hexDigits[(sw>>4)&0xF],
		hexDigits[sw&0xF],
	}
	return string(b[:])
}
