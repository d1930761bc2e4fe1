package allocator

// allowAll is embedded by deciders that only have an opinion on some of the
// four Decider methods; the rest default to an unconditional YES. This
// mirrors the teacher's preference for small, single-purpose types composed
// by embedding rather than one god-interface with boilerplate no-op
// implementations scattered across every decider file.
type allowAll struct{}

func (allowAll) CanAllocate(ShardRouting, Node, *RoutingAllocation) Decision {
	return yes("", "no constraint")
}
func (allowAll) CanRemain(ShardRouting, Node, *RoutingAllocation) Decision {
	return yes("", "no constraint")
}
func (allowAll) CanRebalance(ShardRouting, *RoutingAllocation) Decision {
	return yes("", "no constraint")
}
func (allowAll) CanForceAllocatePrimary(ShardRouting, Node, *RoutingAllocation) Decision {
	return yes("", "no constraint")
}
