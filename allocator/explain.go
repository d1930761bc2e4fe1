package allocator

// RoutingExplanation is the operator-facing record of why one shard copy
// ended up (or stayed) where it did, accumulated on a RoutingAllocation
// when a pass runs in explain/debug mode. cmd/reroutesim renders these as a
// table.
type RoutingExplanation struct {
	ShardId ShardId
	Primary bool

	// CurrentNode is empty for an unassigned shard.
	CurrentNode NodeID

	// NodeDecisions holds the CanAllocate/CanRemain verdict this shard
	// received for each node considered, in evaluation order.
	NodeDecisions []NodeDecision

	AllocationStatus AllocationStatus
}

// NodeDecision is one candidate node's verdict within a RoutingExplanation.
type NodeDecision struct {
	Node     NodeID
	Decision Decision
}

// Summary renders a short, single-line human-readable explanation, the
// degenerate case of the table cmd/reroutesim prints in full.
func (e RoutingExplanation) Summary() string {
	var best = "no eligible node"
	for _, nd := range e.NodeDecisions {
		if nd.Decision.Type == Yes {
			best = string(nd.Node)
			break
		}
	}
	return e.ShardId.String() + ": " + best + " (" + e.AllocationStatus.String() + ")"
}
