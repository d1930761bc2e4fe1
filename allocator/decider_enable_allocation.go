package allocator

// enableAllocationDecider implements the cluster-wide
// EnableAllocationMode kill switch: an operator can freeze the balancer
// entirely, or allow only primary allocation while an incident is being
// worked. Commands issued directly by an operator bypass this decider
// (spec.md §6), so it is not consulted from CanForceAllocatePrimary.
type enableAllocationDecider struct{ allowAll }

func (enableAllocationDecider) Name() string { return "enable_allocation" }

func (d enableAllocationDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	if a.IgnoreDisable() {
		return yes("enable_allocation", "ignoreDisable set by caller")
	}
	switch a.Settings.EnableAllocationMode {
	case EnableNone:
		return no("enable_allocation", "allocation disabled cluster-wide")
	case EnablePrimaries:
		if !shard.Primary {
			return no("enable_allocation", "only primary allocation is enabled")
		}
	}
	return yes("enable_allocation", "allocation enabled")
}

func (d enableAllocationDecider) CanRebalance(shard ShardRouting, a *RoutingAllocation) Decision {
	if a.IgnoreDisable() {
		return yes("enable_allocation", "ignoreDisable set by caller")
	}
	if a.Settings.EnableAllocationMode == EnableNone {
		return no("enable_allocation", "allocation disabled cluster-wide")
	}
	return yes("enable_allocation", "allocation enabled")
}
