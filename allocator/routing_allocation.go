package allocator

import log "github.com/sirupsen/logrus"

// Clock supplies the current time to a reroute pass. A real pass captures
// it exactly once at the start, so that every delay computation and
// UnassignedInfo timestamp within the same pass agrees (spec.md §5) — tests
// inject a fixed clock for determinism.
type Clock func() (nanos int64, millis int64)

// RoutingAllocation is the single-pass transaction context threaded through
// event application, decider evaluation and command execution. It owns the
// one mutable RoutingNodes working copy for the pass and is discarded at
// commit time; nothing may retain a pointer to it afterwards.
type RoutingAllocation struct {
	ClusterState ClusterState
	Nodes        *RoutingNodes
	ClusterInfo  ClusterInfo
	Settings     Settings

	chain *deciderChain

	nowNanos  int64
	nowMillis int64

	ignoreShards map[ShardId]bool
	retryFailed  bool
	ignoreDisable bool

	changed      bool
	explanations []RoutingExplanation
}

func newRoutingAllocation(cs ClusterState, deciders []Decider, ci ClusterInfo, settings Settings, clock Clock, debug bool) *RoutingAllocation {
	var nanos, millis = clock()
	return &RoutingAllocation{
		ClusterState: cs,
		Nodes:        newRoutingNodes(cs),
		ClusterInfo:  ci,
		Settings:     settings,
		chain:        newDeciderChain(deciders, debug),
		nowNanos:     nanos,
		nowMillis:    millis,
		ignoreShards: make(map[ShardId]bool),
	}
}

func (a *RoutingAllocation) NanoTime() int64  { return a.nowNanos }
func (a *RoutingAllocation) MilliTime() int64 { return a.nowMillis }

// MarkChanged records that this pass produced at least one routing change,
// so the caller knows to commit a new ClusterState rather than return the
// original unchanged (spec.md §5).
func (a *RoutingAllocation) MarkChanged() { a.changed = true }
func (a *RoutingAllocation) Changed() bool { return a.changed }

// IgnoreShard excludes id, on every node, from further placement attempts
// by the gateway allocator and the balancer for the remainder of this pass.
// Nothing in this package calls it: failed and cascade-failed shards are
// not added to the set and stay eligible for placement in the same pass.
func (a *RoutingAllocation) IgnoreShard(id ShardId) { a.ignoreShards[id] = true }
func (a *RoutingAllocation) IsIgnored(id ShardId) bool { return a.ignoreShards[id] }

// SetRetryFailed clears the max-retry decider's veto for this pass only,
// mirroring the retryFailed flag accepted by the plain (non-command)
// reroute entry point (spec.md §6): an operator asking to retry failed
// shards should not have to wait for the next unrelated event.
func (a *RoutingAllocation) SetRetryFailed(v bool) { a.retryFailed = v }
func (a *RoutingAllocation) RetryFailed() bool     { return a.retryFailed }

// SetIgnoreDisable bypasses the cluster-wide EnableAllocationMode gate for
// the remainder of this pass, so an explicit operator command (spec.md §6)
// can still place a shard while cluster.routing.allocation.enable=none.
func (a *RoutingAllocation) SetIgnoreDisable(v bool) { a.ignoreDisable = v }
func (a *RoutingAllocation) IgnoreDisable() bool     { return a.ignoreDisable }

func (a *RoutingAllocation) CanAllocate(shard ShardRouting, node Node) Decision {
	return a.chain.CanAllocate(shard, node, a)
}
func (a *RoutingAllocation) CanRemain(shard ShardRouting, node Node) Decision {
	return a.chain.CanRemain(shard, node, a)
}
func (a *RoutingAllocation) CanRebalance(shard ShardRouting) Decision {
	return a.chain.CanRebalance(shard, a)
}
func (a *RoutingAllocation) CanForceAllocatePrimary(shard ShardRouting, node Node) Decision {
	return a.chain.CanForceAllocatePrimary(shard, node, a)
}

// RecordExplanation appends a RoutingExplanation for operator-facing
// /explain output. Only called when the pass runs in debug/explain mode.
func (a *RoutingAllocation) RecordExplanation(e RoutingExplanation) {
	a.explanations = append(a.explanations, e)
}

func (a *RoutingAllocation) Explanations() []RoutingExplanation { return a.explanations }

// Debug reports whether this pass was constructed in explain mode, so a
// caller composing several sub-steps (the gateway allocator, the balancer)
// can decide whether to bother recording explanations without threading a
// second flag alongside the RoutingAllocation itself.
func (a *RoutingAllocation) Debug() bool { return a.chain.debug }

// dataNode resolves a NodeID to its Node value among the data nodes of the
// original ClusterState.
func (a *RoutingAllocation) dataNode(id NodeID) (Node, bool) {
	var nodes = a.ClusterState.dataNodeSet()
	n, ok := nodes[id]
	return n, ok
}

func (a *RoutingAllocation) logf(fields log.Fields, format string, args ...interface{}) {
	log.WithFields(fields).Debugf(format, args...)
}
