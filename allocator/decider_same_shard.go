package allocator

// sameShardDecider enforces invariant 4 of the data model: no two copies of
// the same ShardId may ever reside on the same node. It is never
// overridable, including by the force-allocate commands — a shard cannot be
// forced onto a node that already holds a copy of it no matter what the
// operator asks for.
type sameShardDecider struct{ allowAll }

func (sameShardDecider) Name() string { return "same_shard" }

func (d sameShardDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return d.check(shard, node, a)
}

func (d sameShardDecider) CanForceAllocatePrimary(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return d.check(shard, node, a)
}

func (sameShardDecider) check(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	for _, existing := range a.Nodes.ShardsOnNode(node.ID) {
		if existing.ShardId == shard.ShardId && !existing.IsSameAllocation(shard) {
			return no("same_shard", "node "+string(node.ID)+" already holds a copy of "+shard.ShardId.String())
		}
	}
	return yes("same_shard", "no existing copy on node")
}
