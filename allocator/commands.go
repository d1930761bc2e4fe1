package allocator

// AllocationCommand is an operator-issued instruction executed by the
// command-mode reroute entry point (spec.md §6). Unlike the automatic
// balancer, commands may override normal decider vetoes where explicitly
// documented (force-allocating a primary), but never the same-shard
// invariant, and never silently: a command that cannot be legally applied
// returns a KindCommandRejected error rather than being skipped.
type AllocationCommand interface {
	Execute(a *RoutingAllocation) error
}

func (a *RoutingAllocation) findUnassigned(id ShardId, primary bool) (ShardRouting, bool) {
	for _, s := range a.Nodes.UnassignedShards() {
		if s.ShardId == id && s.Primary == primary {
			return s, true
		}
	}
	return ShardRouting{}, false
}

func (a *RoutingAllocation) findStarted(id ShardId, node NodeID) (ShardRouting, bool) {
	for _, s := range a.Nodes.ShardCopies(id) {
		if s.State == Started && s.CurrentNodeID == node {
			return s, true
		}
	}
	return ShardRouting{}, false
}

// MoveAllocationCommand relocates a STARTED shard from one node to another,
// subject to the same deciders a rebalance would consult on the target.
type MoveAllocationCommand struct {
	ShardId  ShardId
	FromNode NodeID
	ToNode   NodeID
}

func (c MoveAllocationCommand) Execute(a *RoutingAllocation) error {
	var shard, ok = a.findStarted(c.ShardId, c.FromNode)
	if !ok {
		return errCommandRejected("move: no STARTED copy of %s on %s", c.ShardId, c.FromNode)
	}
	var target, hasTarget = a.dataNode(c.ToNode)
	if !hasTarget {
		return errCommandRejected("move: unknown target node %s", c.ToNode)
	}
	if dec := a.CanAllocate(shard, target); dec.Type == No {
		return errCommandRejected("move: %s", dec.Reason)
	}
	var expected, _ = a.ClusterInfo.ShardSize(c.ShardId, shard.Primary)
	if _, _, err := a.Nodes.relocate(shard.handle, c.ToNode, expected); err != nil {
		return err
	}
	a.MarkChanged()
	return nil
}

// CancelAllocationCommand removes an INITIALIZING or RELOCATING copy,
// returning the shard to UNASSIGNED (or, for a relocation, cancelling the
// relocation and leaving the source STARTED). Cancelling a shard's only
// remaining primary copy requires AllowPrimary, guarding against an
// operator accidentally discarding the last copy of data.
type CancelAllocationCommand struct {
	ShardId      ShardId
	Node         NodeID
	AllowPrimary bool
}

func (c CancelAllocationCommand) Execute(a *RoutingAllocation) error {
	for _, s := range a.Nodes.ShardCopies(c.ShardId) {
		if s.CurrentNodeID != c.Node {
			continue
		}
		if s.Primary && !c.AllowPrimary {
			return errCommandRejected("cancel: %s is a primary on %s; AllowPrimary not set", c.ShardId, c.Node)
		}
		switch s.State {
		case Relocating:
			if err := a.Nodes.cancelRelocation(s.handle); err != nil {
				return err
			}
		case Initializing:
			var info = UnassignedInfo{
				Reason:               ReasonRerouteCancelled,
				Message:              "cancelled by operator command",
				UnassignedSinceNanos: a.NanoTime(),
				UnassignedSinceMillis: a.MilliTime(),
			}
			if _, _, err := a.Nodes.failShard(s.handle, info); err != nil {
				return err
			}
		default:
			return errCommandRejected("cancel: %s on %s is %s, not cancellable", c.ShardId, c.Node, s.State)
		}
		a.MarkChanged()
		return nil
	}
	return errCommandRejected("cancel: no copy of %s on %s", c.ShardId, c.Node)
}

// AllocateReplicaCommand places an UNASSIGNED replica onto a specific node,
// still subject to normal deciders (it is not a force-allocation).
type AllocateReplicaCommand struct {
	ShardId ShardId
	Node    NodeID
}

func (c AllocateReplicaCommand) Execute(a *RoutingAllocation) error {
	var shard, ok = a.findUnassigned(c.ShardId, false)
	if !ok {
		return errCommandRejected("allocate_replica: no unassigned replica of %s", c.ShardId)
	}
	var node, hasNode = a.dataNode(c.Node)
	if !hasNode {
		return errCommandRejected("allocate_replica: unknown node %s", c.Node)
	}
	if dec := a.CanAllocate(shard, node); dec.Type == No {
		return errCommandRejected("allocate_replica: %s", dec.Reason)
	}
	var expected, _ = a.ClusterInfo.ShardSize(c.ShardId, false)
	if _, err := a.Nodes.initialize(shard.handle, c.Node, expected); err != nil {
		return err
	}
	a.MarkChanged()
	return nil
}

// AllocateStalePrimaryCommand force-allocates a primary from a node whose
// on-disk copy is known to be stale (not the most recent active allocation
// id). It requires AcceptDataLoss because the promoted copy may be missing
// writes acknowledged against the lost primary.
type AllocateStalePrimaryCommand struct {
	ShardId        ShardId
	Node           NodeID
	AcceptDataLoss bool
}

func (c AllocateStalePrimaryCommand) Execute(a *RoutingAllocation) error {
	if !c.AcceptDataLoss {
		return errCommandRejected("allocate_stale_primary: AcceptDataLoss must be set")
	}
	var shard, ok = a.findUnassigned(c.ShardId, true)
	if !ok {
		return errCommandRejected("allocate_stale_primary: no unassigned primary of %s", c.ShardId)
	}
	var node, hasNode = a.dataNode(c.Node)
	if !hasNode {
		return errCommandRejected("allocate_stale_primary: unknown node %s", c.Node)
	}
	if dec := a.CanForceAllocatePrimary(shard, node); dec.Type == No {
		return errCommandRejected("allocate_stale_primary: %s", dec.Reason)
	}
	var expected, _ = a.ClusterInfo.ShardSize(c.ShardId, true)
	if _, err := a.Nodes.initialize(shard.handle, c.Node, expected); err != nil {
		return err
	}
	a.MarkChanged()
	return nil
}

// AllocateEmptyPrimaryCommand force-allocates a brand new, empty primary
// onto a node, discarding any existing data for the shard. Used to recover
// an index that has permanently lost every copy of a shard.
type AllocateEmptyPrimaryCommand struct {
	ShardId        ShardId
	Node           NodeID
	AcceptDataLoss bool
}

func (c AllocateEmptyPrimaryCommand) Execute(a *RoutingAllocation) error {
	if !c.AcceptDataLoss {
		return errCommandRejected("allocate_empty_primary: AcceptDataLoss must be set")
	}
	var shard, ok = a.findUnassigned(c.ShardId, true)
	if !ok {
		return errCommandRejected("allocate_empty_primary: no unassigned primary of %s", c.ShardId)
	}
	var node, hasNode = a.dataNode(c.Node)
	if !hasNode {
		return errCommandRejected("allocate_empty_primary: unknown node %s", c.Node)
	}
	if dec := a.CanForceAllocatePrimary(shard, node); dec.Type == No {
		return errCommandRejected("allocate_empty_primary: %s", dec.Reason)
	}
	if _, err := a.Nodes.initialize(shard.handle, c.Node, 0); err != nil {
		return err
	}
	a.MarkChanged()
	return nil
}
