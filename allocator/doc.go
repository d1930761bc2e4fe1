// Package allocator implements the shard allocation core of a distributed
// search cluster: given a snapshot of cluster state (live nodes, index
// metadata, current routing table) and a batch of events (nodes joining or
// leaving, shards starting or failing, administrative commands), it produces
// a new routing table that moves the cluster towards a legal, balanced
// placement of shards on nodes.
//
// The package is a transactional reducer over an immutable ClusterState: a
// single AllocationService entry point applies one batch of events, re-runs
// constraint-based placement through a stack of pluggable Deciders, updates
// per-index metadata (active allocation IDs, primary terms) consistently
// with the new routing, and returns either the original state (no change)
// or a fully validated replacement. Callers own persistence, node discovery
// and cluster-state publication; this package assumes a single writer feeds
// it immutable snapshots and serializes calls to it.
package allocator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocShardsInitializedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocator_shards_initialized_total",
		Help: "Cumulative number of shard copies moved from UNASSIGNED to INITIALIZING.",
	})
	allocShardsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocator_shards_started_total",
		Help: "Cumulative number of shard copies moved from INITIALIZING to STARTED.",
	})
	allocShardsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocator_shards_failed_total",
		Help: "Cumulative number of shard copies moved to UNASSIGNED due to failure.",
	})
	allocShardsRelocatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocator_shards_relocated_total",
		Help: "Cumulative number of shard relocations initiated.",
	})
	allocPrimaryPromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocator_primary_promotions_total",
		Help: "Cumulative number of replica-to-primary promotions.",
	})
	allocRerouteTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocator_reroute_passes_total",
		Help: "Cumulative number of reroute passes executed.",
	})
	allocRerouteDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "allocator_reroute_duration_seconds",
		Help: "Duration of the reroute step of a pass (dead-node handling, placement and invariant check).",
	})
	allocNumShards = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocator_shards",
		Help: "Number of distinct shard IDs known to the allocator.",
	})
	allocNumNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocator_nodes",
		Help: "Number of nodes known to the allocator.",
	})
	allocNumUnassigned = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allocator_unassigned_shards",
		Help: "Number of shard copies currently UNASSIGNED.",
	})
)
