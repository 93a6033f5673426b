package stagegraph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the control-path events an operator cares about during a
// show. All of them are incremented on the control thread only; the
// audio thread never touches prometheus.
var (
	metricWorkspaceSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagegraph_workspace_switches_total",
		Help: "Completed workspace switches.",
	})
	metricIORebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagegraph_io_rebuilds_total",
		Help: "Permanent I/O node rebuilds triggered by prepare.",
	})
	metricDroppedWires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagegraph_dropped_wires_total",
		Help: "Connections dropped because a hardware channel disappeared or a snapshot endpoint did not resolve.",
	})
	metricFlushArms = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagegraph_zombie_flush_arms_total",
		Help: "Times the post-restart silence flush was armed.",
	})
)
