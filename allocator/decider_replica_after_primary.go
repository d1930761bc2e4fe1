package allocator

// replicaAfterPrimaryDecider forbids allocating a replica until its primary
// is active (STARTED or RELOCATING), matching spec.md §3 invariant 3: a
// replica may be INITIALIZING only if its primary is STARTED. An
// INITIALIZING primary has nothing recoverable to copy from yet, so
// allocating the replica this early would only waste a recovery slot.
type replicaAfterPrimaryDecider struct{ allowAll }

func (replicaAfterPrimaryDecider) Name() string { return "replica_after_primary" }

func (d replicaAfterPrimaryDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	if shard.Primary {
		return yes("replica_after_primary", "shard is a primary")
	}
	var group = a.Nodes.ShardCopies(shard.ShardId)
	for _, s := range group {
		if s.Primary && (s.State == Started || s.State == Relocating) {
			return yes("replica_after_primary", "primary is active")
		}
	}
	return no("replica_after_primary", "primary of "+shard.ShardId.String()+" is not yet active")
}
