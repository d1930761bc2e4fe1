package allocator

// maxRetryDecider stops the balancer from repeatedly attempting to place a
// shard that has already failed allocation Settings.MaxRetries times,
// until an operator explicitly asks to retry (RoutingAllocation.retryFailed,
// surfaced by the plain reroute entry point's retryFailed argument,
// spec.md §6).
type maxRetryDecider struct{ allowAll }

func (maxRetryDecider) Name() string { return "max_retry" }

func (d maxRetryDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	if a.RetryFailed() {
		return yes("max_retry", "retry explicitly requested")
	}
	if shard.UnassignedInfo == nil {
		return yes("max_retry", "shard was never unassigned due to failure")
	}
	if shard.UnassignedInfo.NumFailedAllocations >= a.Settings.MaxRetries && a.Settings.MaxRetries > 0 {
		return no("max_retry", "exceeded max retries")
	}
	return yes("max_retry", "within retry budget")
}

func (d maxRetryDecider) CanForceAllocatePrimary(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return yes("max_retry", "force-allocate bypasses retry budget")
}
