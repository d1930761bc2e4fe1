package allocator

import "time"

// Settings is the cluster-wide tunable configuration consulted by deciders
// and the balancer. It is loaded once by the caller (flags, a config file,
// or defaults) and threaded through every RoutingAllocation; the allocator
// package never reads configuration itself, matching the teacher's
// convention of a single Config/Settings value constructed at the edge and
// passed down rather than read ambiently.
type Settings struct {
	// EnableAllocationMode gates allocation and rebalancing cluster-wide as
	// a three-way enum (all/primaries/none). "all" (the zero value) allows
	// both primaries and replicas; "primaries" refuses replica allocation;
	// "none" refuses all allocation and rebalancing.
	EnableAllocationMode EnableAllocationMode

	// ConcurrentRecoveriesPerNode caps how many shard copies may be
	// concurrently INITIALIZING (incoming) on one node.
	ConcurrentRecoveriesPerNode int
	// ConcurrentOutgoingPerNode caps how many RELOCATING shards may have
	// their source on one node at once.
	ConcurrentOutgoingPerNode int

	// DiskWatermarkLow is the used-disk-ratio threshold above which new
	// shards stop being allocated to a node.
	DiskWatermarkLow float64
	// DiskWatermarkHigh is the used-disk-ratio threshold above which
	// existing shards are relocated off a node.
	DiskWatermarkHigh float64
	// DiskWatermarkFloodStage is the used-disk-ratio threshold above which
	// a node is refused any further allocation outright, harder than
	// DiskWatermarkHigh: it also forces off shards that CanRemain would
	// otherwise tolerate.
	DiskWatermarkFloodStage float64

	// MaxShardsPerNode caps the total number of shard copies (any index)
	// a single node may hold. Zero means unlimited.
	MaxShardsPerNode int

	// SameShardHost names the rule that two copies of the same shard never
	// share a node. No decider reads this field: sameShardDecider enforces
	// the rule unconditionally (spec.md invariant 4), whatever its value.
	SameShardHost bool

	// AwarenessAttributes lists node attribute names (e.g. "zone") used by
	// the awareness decider to spread shard copies across attribute
	// values.
	AwarenessAttributes []string

	// MaxRetries caps automatic allocation attempts of a failed shard
	// before the max-retry decider starts vetoing it (spec.md §4.2).
	MaxRetries int

	// DefaultDelayedNodeLeftTimeout is used for indices whose
	// IndexSettings.DelayedNodeLeftTimeout is zero.
	DefaultDelayedNodeLeftTimeout time.Duration
}

// EnableAllocationMode restricts which kind of shard the balancer may move.
type EnableAllocationMode int

const (
	EnableAll EnableAllocationMode = iota
	EnablePrimaries
	EnableNone
)

// DefaultSettings returns production-sane defaults, mirrored from
// Elasticsearch's documented defaults for the equivalent settings.
func DefaultSettings() Settings {
	return Settings{
		EnableAllocationMode:        EnableAll,
		ConcurrentRecoveriesPerNode: 2,
		ConcurrentOutgoingPerNode:   2,
		DiskWatermarkLow:            0.85,
		DiskWatermarkHigh:           0.90,
		DiskWatermarkFloodStage:     0.95,
		SameShardHost:               true,
		MaxRetries:                 5,
		DefaultDelayedNodeLeftTimeout: time.Minute,
	}
}
