package allocator

import "sort"

// WeightFunction scores how attractive a node is as a placement target: a
// lower weight is more attractive. It balances two concerns — total shard
// count per node, and per-index shard count per node — each independently
// tunable, mirroring Elasticsearch's BalancedShardsAllocator weight
// function but expressed as the simple argmax-over-nodes search spec.md
// §4.5 prescribes in place of the teacher's max-flow network formulation.
type WeightFunction struct {
	ShardBalanceFactor float64
	IndexBalanceFactor float64
}

// DefaultWeightFunction matches Elasticsearch's documented defaults.
func DefaultWeightFunction() WeightFunction {
	return WeightFunction{ShardBalanceFactor: 0.45, IndexBalanceFactor: 0.55}
}

// weight scores placing one more copy of shardId on node, given the current
// contents of nodes.
func (w WeightFunction) weight(nodes *RoutingNodes, node NodeID, shardId ShardId) float64 {
	var total = nodes.ShardsOnNode(node)
	var totalCount = len(total)
	var indexCount int
	for _, s := range total {
		if s.ShardId.Index == shardId.Index {
			indexCount++
		}
	}
	return w.ShardBalanceFactor*float64(totalCount) + w.IndexBalanceFactor*float64(indexCount)
}

// balancer implements the balancing phase of a reroute pass: place every
// unassigned shard, move any shard that has become illegal where it sits,
// and finally rebalance for even weight across eligible nodes. Grounded on
// the teacher's item_state.go constrain-then-build-ops staging (constrain
// candidates, then commit the chosen operation) generalized from the
// teacher's max-flow-network placement to the argmax weight search spec.md
// §4.5 calls for.
type balancer struct {
	alloc  *RoutingAllocation
	weight WeightFunction
}

func newBalancer(a *RoutingAllocation, w WeightFunction) *balancer {
	return &balancer{alloc: a, weight: w}
}

func (b *balancer) eligibleNodes() []Node {
	var nodes []Node
	for id, n := range b.alloc.ClusterState.dataNodeSet() {
		if b.alloc.Nodes.HasNode(id) {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// nodeDecisions evaluates decide against every eligible node, in the same
// order bestNode considers them, for operator-facing /explain output.
func (b *balancer) nodeDecisions(shard ShardRouting, decide func(Node) Decision) []NodeDecision {
	var out []NodeDecision
	for _, n := range b.eligibleNodes() {
		out = append(out, NodeDecision{Node: n.ID, Decision: decide(n)})
	}
	return out
}

// bestNode returns the lightest-weighted node for which decide returns YES,
// or the lightest THROTTLED candidate if no node returns YES, in that order
// of preference. The bool is true only for a YES node: a THROTTLED candidate
// is returned with its THROTTLED decision and false, and if every node
// returned NO the result is an empty Node, a NO decision and false.
func (b *balancer) bestNode(shard ShardRouting, decide func(Node) Decision) (Node, Decision, bool) {
	var bestYes, bestThrottle Node
	var bestYesW, bestThrottleW = 0.0, 0.0
	var haveYes, haveThrottle bool
	var throttleDecision Decision

	for _, n := range b.eligibleNodes() {
		var dec = decide(n)
		var w = b.weight.weight(b.alloc.Nodes, n.ID, shard.ShardId)
		switch dec.Type {
		case Yes:
			if !haveYes || w < bestYesW {
				bestYes, bestYesW, haveYes = n, w, true
			}
		case Throttled:
			if !haveThrottle || w < bestThrottleW {
				bestThrottle, bestThrottleW, haveThrottle, throttleDecision = n, w, true, dec
			}
		}
	}
	if haveYes {
		return bestYes, Decision{Yes, "balancer", "lightest eligible node"}, true
	}
	if haveThrottle {
		return bestThrottle, throttleDecision, false
	}
	return Node{}, Decision{No, "balancer", "no eligible node"}, false
}

// allocateUnassigned attempts to place every currently unassigned shard,
// all primaries first and then all replicas, each in ShardId order. Shards
// in the per-pass ignore set and replicas still marked Delayed are skipped.
// A replica whose primary is only INITIALIZING (including one placed earlier
// in this same pass) is refused by replicaAfterPrimary and stays UNASSIGNED.
func (b *balancer) allocateUnassigned(explain bool) {
	var queue = b.alloc.Nodes.UnassignedShards()
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].Primary != queue[j].Primary {
			return queue[i].Primary
		}
		return queue[i].ShardId.Less(queue[j].ShardId)
	})

	for _, shard := range queue {
		if b.alloc.IsIgnored(shard.ShardId) {
			continue
		}
		if shard.UnassignedInfo != nil && shard.UnassignedInfo.Delayed {
			continue
		}
		var decide = func(n Node) Decision { return b.alloc.CanAllocate(shard, n) }

		var maxRetry = maxRetryDecider{}
		if dec := maxRetry.CanAllocate(shard, Node{}, b.alloc); dec.Type == No {
			b.recordExplanationWithNodes(shard, nil, DecidersNo, explain, nil)
			continue
		}

		node, dec, ok := b.bestNode(shard, decide)
		if !ok {
			var status = DecidersNo
			if dec.Type == Throttled {
				status = DecidersThrottled
			}
			var nds []NodeDecision
			if explain {
				nds = b.nodeDecisions(shard, decide)
			}
			b.recordExplanationWithNodes(shard, nil, status, explain, nds)
			continue
		}
		var expected, _ = b.alloc.ClusterInfo.ShardSize(shard.ShardId, shard.Primary)
		if _, err := b.alloc.Nodes.initialize(shard.handle, node.ID, expected); err == nil {
			b.alloc.MarkChanged()
		}
		b.recordExplanation(shard, &node, NoAttempt, explain)
	}
}

// moveIllegallyPlacedShards relocates every STARTED shard for which
// CanRemain now vetoes its current node (e.g. a disk watermark crossed, or
// a filter changed since the shard was placed).
func (b *balancer) moveIllegallyPlacedShards() {
	for _, id := range b.alloc.Nodes.AllShardIds() {
		for _, shard := range b.alloc.Nodes.ShardCopies(id) {
			if shard.State != Started || b.alloc.IsIgnored(shard.ShardId) {
				continue
			}
			var node, ok = b.alloc.dataNode(shard.CurrentNodeID)
			if !ok {
				continue
			}
			if dec := b.alloc.CanRemain(shard, node); dec.Type != No {
				continue
			}
			target, _, ok := b.bestNode(shard, func(n Node) Decision {
				if n.ID == shard.CurrentNodeID {
					return no("balancer", "same node")
				}
				return b.alloc.CanAllocate(shard, n)
			})
			if !ok {
				continue
			}
			var expected, _ = b.alloc.ClusterInfo.ShardSize(shard.ShardId, shard.Primary)
			if _, _, err := b.alloc.Nodes.relocate(shard.handle, target.ID, expected); err == nil {
				b.alloc.MarkChanged()
			}
		}
	}
}

// rebalance moves STARTED shards purely to improve weight balance, one
// shard at a time, stopping once no move would reduce the spread between
// the heaviest and lightest eligible node by a meaningful margin. This is
// the argmax-weight-function loop spec.md §4.5 calls for, replacing the
// teacher's push-relabel max-flow balancer.
func (b *balancer) rebalance() {
	const epsilon = 1e-6

	for _, id := range b.alloc.Nodes.AllShardIds() {
		for _, shard := range b.alloc.Nodes.ShardCopies(id) {
			if shard.State != Started || b.alloc.IsIgnored(shard.ShardId) {
				continue
			}
			if dec := b.alloc.CanRebalance(shard); dec.Type != Yes {
				continue
			}
			var currentWeight = b.weight.weight(b.alloc.Nodes, shard.CurrentNodeID, shard.ShardId) - b.weight.ShardBalanceFactor - b.weight.IndexBalanceFactor

			target, _, ok := b.bestNode(shard, func(n Node) Decision {
				if n.ID == shard.CurrentNodeID {
					return no("balancer", "same node")
				}
				return b.alloc.CanAllocate(shard, n)
			})
			if !ok {
				continue
			}
			var targetWeight = b.weight.weight(b.alloc.Nodes, target.ID, shard.ShardId)
			if currentWeight-targetWeight <= epsilon {
				continue
			}
			var expected, _ = b.alloc.ClusterInfo.ShardSize(shard.ShardId, shard.Primary)
			if _, _, err := b.alloc.Nodes.relocate(shard.handle, target.ID, expected); err == nil {
				b.alloc.MarkChanged()
			}
		}
	}
}

func (b *balancer) recordExplanation(shard ShardRouting, node *Node, status AllocationStatus, explain bool) {
	b.recordExplanationWithNodes(shard, node, status, explain, nil)
}

func (b *balancer) recordExplanationWithNodes(shard ShardRouting, node *Node, status AllocationStatus, explain bool, nds []NodeDecision) {
	if !explain {
		return
	}
	var e = RoutingExplanation{ShardId: shard.ShardId, Primary: shard.Primary, AllocationStatus: status, NodeDecisions: nds}
	if node != nil {
		e.CurrentNode = node.ID
	}
	b.alloc.RecordExplanation(e)
}

// Balance runs the full placement phase: allocate unassigned shards, move
// any illegally placed STARTED shard, then rebalance for even weight. This
// is the entry point AllocationService.reroute calls after event
// application (spec.md §4.4/§4.5).
func (b *balancer) Balance(explain bool) {
	b.allocateUnassigned(explain)
	b.moveIllegallyPlacedShards()
	b.rebalance()
}
