package allocator

import "strconv"

// throttlingDecider bounds the number of concurrent INITIALIZING shards
// incoming to, and RELOCATING shards outgoing from, any one node, so that
// a reroute pass never schedules an avalanche of simultaneous recoveries
// (spec.md §4.2/§4.6, grounded on Elasticsearch's
// ConcurrentRebalanceAllocationDecider / ThrottlingAllocationDecider pair).
type throttlingDecider struct{ allowAll }

func (throttlingDecider) Name() string { return "throttling" }

func (d throttlingDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	var incoming int
	for _, s := range a.Nodes.ShardsOnNode(node.ID) {
		if s.State == Initializing && !s.IsSameAllocation(shard) {
			incoming++
		}
	}
	if incoming >= a.Settings.ConcurrentRecoveriesPerNode {
		return throttle("throttling", "node already has "+strconv.Itoa(incoming)+" concurrent incoming recoveries")
	}
	return yes("throttling", "within concurrent recovery limit")
}

func (d throttlingDecider) CanRebalance(shard ShardRouting, a *RoutingAllocation) Decision {
	if shard.State != Started {
		return yes("throttling", "not a candidate for outgoing throttling")
	}
	var outgoing int
	for _, s := range a.Nodes.ShardsOnNode(shard.CurrentNodeID) {
		if s.State == Relocating {
			outgoing++
		}
	}
	if outgoing >= a.Settings.ConcurrentOutgoingPerNode {
		return throttle("throttling", "source node already has "+strconv.Itoa(outgoing)+" concurrent outgoing relocations")
	}
	return yes("throttling", "within concurrent relocation limit")
}
