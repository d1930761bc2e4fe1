package allocator

import (
	"fmt"
	"math/rand"
	"sort"
)

// shardHandle identifies one ShardRouting instance within a RoutingNodes
// arena for the lifetime of a single reroute pass. Using a stable integer
// handle rather than a pointer or a map key derived from mutable fields lets
// RoutingNodes relocate, promote and remove entries without invalidating
// other handles a caller may be holding — the arena+index pattern noted in
// spec.md's design notes as a replacement for the cyclic
// RoutingNodes/ShardRouting/node-list references of the original design.
type shardHandle int

// RoutingNodes is the mutable, one-pass-lived working copy of the routing
// table. It is exclusively owned by the RoutingAllocation that created it;
// nothing may reference it once a pass returns (spec.md §5).
type RoutingNodes struct {
	arena      map[shardHandle]*ShardRouting
	nextHandle shardHandle

	nodeShards  map[NodeID]map[shardHandle]struct{}
	shardCopies map[ShardId]map[shardHandle]struct{}
	unassigned  []shardHandle
}

// newRoutingNodes builds a mutable RoutingNodes from an immutable
// ClusterState, one arena entry per ShardRouting currently in the routing
// table, plus an empty per-node shard set for every live node (so a newly
// joined, still-empty node is visible to the balancer).
func newRoutingNodes(cs ClusterState) *RoutingNodes {
	var rn = &RoutingNodes{
		arena:       make(map[shardHandle]*ShardRouting),
		nodeShards:  make(map[NodeID]map[shardHandle]struct{}),
		shardCopies: make(map[ShardId]map[shardHandle]struct{}),
	}
	for _, n := range cs.Nodes {
		rn.nodeShards[n.ID] = make(map[shardHandle]struct{})
	}

	var shardIds = cs.RoutingTable.AllShardIds()
	for _, id := range shardIds {
		var group, _ = cs.RoutingTable.ShardRoutingTable(id)
		var copies = append([]ShardRouting(nil), group.Shards...)
		sort.SliceStable(copies, func(i, j int) bool { return copies[i].Primary && !copies[j].Primary })

		for _, sr := range copies {
			var h = rn.put(sr)
			if sr.State == Unassigned {
				rn.unassigned = append(rn.unassigned, h)
			} else {
				if rn.nodeShards[sr.CurrentNodeID] == nil {
					rn.nodeShards[sr.CurrentNodeID] = make(map[shardHandle]struct{})
				}
				rn.nodeShards[sr.CurrentNodeID][h] = struct{}{}
			}
		}
	}
	return rn
}

func (rn *RoutingNodes) put(sr ShardRouting) shardHandle {
	rn.nextHandle++
	var h = rn.nextHandle
	sr.handle = h
	rn.arena[h] = &sr
	if rn.shardCopies[sr.ShardId] == nil {
		rn.shardCopies[sr.ShardId] = make(map[shardHandle]struct{})
	}
	rn.shardCopies[sr.ShardId][h] = struct{}{}
	return h
}

func (rn *RoutingNodes) remove(h shardHandle) {
	var sr = rn.arena[h]
	if sr == nil {
		return
	}
	if sr.CurrentNodeID != "" {
		delete(rn.nodeShards[sr.CurrentNodeID], h)
	}
	delete(rn.shardCopies[sr.ShardId], h)
	delete(rn.arena, h)
}

// Get returns a copy of the ShardRouting identified by h.
func (rn *RoutingNodes) Get(h shardHandle) (ShardRouting, bool) {
	var sr = rn.arena[h]
	if sr == nil {
		return ShardRouting{}, false
	}
	return *sr, true
}

// NodeIDs returns every node known to RoutingNodes (live nodes, including
// those with no assigned shards), sorted for deterministic iteration.
func (rn *RoutingNodes) NodeIDs() []NodeID {
	var out = make([]NodeID, 0, len(rn.nodeShards))
	for id := range rn.nodeShards {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (rn *RoutingNodes) HasNode(id NodeID) bool {
	_, ok := rn.nodeShards[id]
	return ok
}

// AddNode registers a node with no assigned shards.
func (rn *RoutingNodes) AddNode(id NodeID) {
	if rn.nodeShards[id] == nil {
		rn.nodeShards[id] = make(map[shardHandle]struct{})
	}
}

// RemoveNode drops a node that no longer has any assigned shards. It panics
// if shards remain, since callers must fail them first (deassociateDeadNodes
// fails every shard of a dead node before removing it, exactly as the
// original AllocationService.deassociateDeadNodes does: "it's important to
// remove it *after* we apply failed shard").
func (rn *RoutingNodes) RemoveNode(id NodeID) {
	if shards, ok := rn.nodeShards[id]; ok && len(shards) != 0 {
		panic(fmt.Sprintf("RemoveNode(%s): %d shards still assigned", id, len(shards)))
	}
	delete(rn.nodeShards, id)
}

// ShardsOnNode returns the ShardRoutings currently assigned to node, sorted
// by ShardId for determinism.
func (rn *RoutingNodes) ShardsOnNode(id NodeID) []ShardRouting {
	var handles = rn.nodeShards[id]
	var out = make([]ShardRouting, 0, len(handles))
	for h := range handles {
		out = append(out, *rn.arena[h])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardId.Less(out[j].ShardId) })
	return out
}

// ShardCopies returns every current copy (any state) of a ShardId, primary
// first.
func (rn *RoutingNodes) ShardCopies(id ShardId) []ShardRouting {
	var handles = rn.shardCopies[id]
	var out = make([]ShardRouting, 0, len(handles))
	for h := range handles {
		out = append(out, *rn.arena[h])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Primary && !out[j].Primary })
	return out
}

// AllShardIds returns every ShardId with at least one copy, sorted.
func (rn *RoutingNodes) AllShardIds() []ShardId {
	var out = make([]ShardId, 0, len(rn.shardCopies))
	for id, handles := range rn.shardCopies {
		if len(handles) != 0 {
			out = append(out, id)
		}
	}
	sortShardIds(out)
	return out
}

// UnassignedShards returns the current unassigned queue, in its current
// (possibly shuffled) order.
func (rn *RoutingNodes) UnassignedShards() []ShardRouting {
	var out = make([]ShardRouting, 0, len(rn.unassigned))
	for _, h := range rn.unassigned {
		out = append(out, *rn.arena[h])
	}
	return out
}

func (rn *RoutingNodes) UnassignedLen() int { return len(rn.unassigned) }

// ShuffleUnassigned randomizes the order of the unassigned queue, so that a
// shard which repeatedly fails to place does not permanently starve shards
// behind it in iteration order ("poison shard" avoidance, spec.md §4.5).
// Command-mode reroute must not call this: command execution needs a
// deterministic, insertion-ordered queue.
func (rn *RoutingNodes) ShuffleUnassigned(r *rand.Rand) {
	r.Shuffle(len(rn.unassigned), func(i, j int) {
		rn.unassigned[i], rn.unassigned[j] = rn.unassigned[j], rn.unassigned[i]
	})
}

// UpdateUnassignedInfo replaces the UnassignedInfo of the unassigned shard
// at queue position i, used by removeDelayMarkers to clear expired delays.
func (rn *RoutingNodes) UpdateUnassignedInfo(i int, info UnassignedInfo) {
	rn.arena[rn.unassigned[i]].UnassignedInfo = &info
}

// removeFromUnassigned splices handle out of the unassigned queue.
func (rn *RoutingNodes) removeFromUnassigned(h shardHandle) {
	for i, u := range rn.unassigned {
		if u == h {
			rn.unassigned = append(rn.unassigned[:i], rn.unassigned[i+1:]...)
			return
		}
	}
}

// initialize transitions the UNASSIGNED shard identified by h to
// INITIALIZING on node, minting a fresh AllocationId. h must currently be
// UNASSIGNED (invariant: only unassigned copies may be initialized).
func (rn *RoutingNodes) initialize(h shardHandle, node NodeID, expectedSize int64) (ShardRouting, error) {
	var sr = rn.arena[h]
	if sr == nil {
		return ShardRouting{}, errInvariant("initialize: unknown shard handle")
	}
	if sr.State != Unassigned {
		return ShardRouting{}, errInvariant("initialize: shard %s is not UNASSIGNED", sr.ShardId)
	}
	rn.removeFromUnassigned(h)

	var id = newAllocationId()
	sr.State = Initializing
	sr.CurrentNodeID = node
	sr.AllocationID = &id
	sr.ExpectedShardSize = expectedSize

	if rn.nodeShards[node] == nil {
		rn.nodeShards[node] = make(map[shardHandle]struct{})
	}
	rn.nodeShards[node][h] = struct{}{}

	allocShardsInitializedTotal.Inc()
	return *sr, nil
}

// relocate transitions the STARTED shard h to RELOCATING, creating a paired
// INITIALIZING copy on target that carries relocatingNodeId back to the
// source (spec.md §4.3).
func (rn *RoutingNodes) relocate(h shardHandle, target NodeID, expectedSize int64) (source, dest ShardRouting, err error) {
	var sr = rn.arena[h]
	if sr == nil || sr.State != Started {
		return ShardRouting{}, ShardRouting{}, errInvariant("relocate: shard must be STARTED")
	}
	var targetID = newAllocationId()
	sr.State = Relocating
	sr.RelocatingNodeID = target
	sr.AllocationID.RelocationID = targetID.ID

	var destSR = ShardRouting{
		ShardId:           sr.ShardId,
		Primary:           sr.Primary,
		State:             Initializing,
		CurrentNodeID:     target,
		RelocatingNodeID:  sr.CurrentNodeID,
		AllocationID:      &targetID,
		ExpectedShardSize: expectedSize,
	}
	var dh = rn.put(destSR)
	if rn.nodeShards[target] == nil {
		rn.nodeShards[target] = make(map[shardHandle]struct{})
	}
	rn.nodeShards[target][dh] = struct{}{}

	allocShardsRelocatedTotal.Inc()
	return *sr, *rn.arena[dh], nil
}

// findRelocationPeer returns the handle of the other half of h's relocation
// handshake: if h is the RELOCATING source, its INITIALIZING target; if h is
// the INITIALIZING target, its RELOCATING source.
func (rn *RoutingNodes) findRelocationPeer(h shardHandle) (shardHandle, bool) {
	var sr = rn.arena[h]
	if sr == nil {
		return 0, false
	}
	for peer := range rn.shardCopies[sr.ShardId] {
		if peer == h {
			continue
		}
		var p = rn.arena[peer]
		switch {
		case sr.State == Relocating && p.State == Initializing &&
			p.CurrentNodeID == sr.RelocatingNodeID && p.AllocationID.ID == sr.AllocationID.RelocationID:
			return peer, true
		case sr.RelocatingNodeID != "" && sr.State == Initializing &&
			p.State == Relocating && p.RelocatingNodeID == sr.CurrentNodeID && sr.AllocationID.ID == p.AllocationID.RelocationID:
			return peer, true
		}
	}
	return 0, false
}

// startShard transitions the INITIALIZING shard h to STARTED. If h is the
// target half of a relocation handshake, the paired RELOCATING source is
// removed atomically (spec.md §4.3).
func (rn *RoutingNodes) startShard(h shardHandle) (ShardRouting, error) {
	var sr = rn.arena[h]
	if sr == nil || sr.State != Initializing {
		return ShardRouting{}, errInvariant("startShard: shard must be INITIALIZING")
	}
	if sr.RelocatingNodeID != "" {
		if peer, ok := rn.findRelocationPeer(h); ok {
			rn.remove(peer)
		}
		sr.RelocatingNodeID = ""
	}
	sr.State = Started
	sr.UnassignedInfo = nil

	allocShardsStartedTotal.Inc()
	return *sr, nil
}

// cancelRelocation transitions the RELOCATING shard h back to STARTED,
// removing its paired INITIALIZING target.
func (rn *RoutingNodes) cancelRelocation(h shardHandle) error {
	var sr = rn.arena[h]
	if sr == nil || sr.State != Relocating {
		return errInvariant("cancelRelocation: shard must be RELOCATING")
	}
	if peer, ok := rn.findRelocationPeer(h); ok {
		rn.remove(peer)
	}
	sr.State = Started
	sr.RelocatingNodeID = ""
	sr.AllocationID.RelocationID = ""
	return nil
}

// promotionCandidate scores a STARTED replica for primary promotion.
// Highest priority wins; ties break on allocation id, ascending
// lexicographic order, as the final deterministic tiebreak (spec.md §9 open
// question). Priority is the negative count of primaries already on the
// candidate's node, so that promotion prefers the least loaded node — the
// available generalization of the teacher's "lowest primary load ratio"
// tiebreak, absent RoutingNodes-level visibility into per-node capacity.
func (rn *RoutingNodes) promotionCandidate(shardId ShardId) (shardHandle, bool) {
	var best shardHandle
	var bestLoad = int(^uint(0) >> 1)
	var bestAllocID string
	var found bool

	for h, sr := range rn.arena {
		if sr.ShardId != shardId || sr.Primary || sr.State != Started {
			continue
		}
		var load = 0
		for peer := range rn.nodeShards[sr.CurrentNodeID] {
			if rn.arena[peer].Primary {
				load++
			}
		}
		if !found || load < bestLoad || (load == bestLoad && sr.AllocationID.ID < bestAllocID) {
			best, bestLoad, bestAllocID, found = h, load, sr.AllocationID.ID, true
		}
	}
	return best, found
}

// failShard transitions any non-UNASSIGNED shard h to UNASSIGNED, cascading
// to INITIALIZING replicas and promoting a STARTED replica when h was a
// STARTED primary (spec.md §4.3). The INITIALIZING target half of a
// relocation is the exception: it is removed outright and its source
// returns to STARTED. It returns the promoted replica (if any)
// and the set of replicas that were cascade-failed, so the caller can log
// and register them in the per-pass ignore set.
func (rn *RoutingNodes) failShard(h shardHandle, info UnassignedInfo) (promoted *ShardRouting, cascaded []ShardRouting, err error) {
	var sr = rn.arena[h]
	if sr == nil || sr.State == Unassigned {
		return nil, nil, errInvariant("failShard: shard must not already be UNASSIGNED")
	}

	var wasPrimary, wasStarted = sr.Primary, sr.State == Started
	var shardId = sr.ShardId

	switch {
	case sr.State == Relocating:
		if peer, ok := rn.findRelocationPeer(h); ok {
			rn.remove(peer)
		}
	case sr.RelocatingNodeID != "" && sr.State == Initializing:
		if peer, ok := rn.findRelocationPeer(h); ok {
			var src = rn.arena[peer]
			src.State = Started
			src.RelocatingNodeID = ""
			src.AllocationID.RelocationID = ""
			// The source still holds the data, so the target copy is dropped
			// rather than queued as an extra unassigned copy.
			rn.remove(h)
			allocShardsFailedTotal.Inc()
			return nil, nil, nil
		}
	}

	rn.unassignInPlace(h, info)
	allocShardsFailedTotal.Inc()

	if wasPrimary && wasStarted {
		for peer := range rn.shardCopies[shardId] {
			var p = rn.arena[peer]
			if p != nil && !p.Primary && p.State == Initializing {
				var cascadeInfo = UnassignedInfo{
					Reason:                ReasonPrimaryFailed,
					Message:               fmt.Sprintf("primary failed while replica initializing: %s", info.Message),
					UnassignedSinceNanos:  info.UnassignedSinceNanos,
					UnassignedSinceMillis: info.UnassignedSinceMillis,
					LastAllocationStatus:  NoAttempt,
				}
				rn.unassignInPlace(peer, cascadeInfo)
				cascaded = append(cascaded, *rn.arena[peer])
			}
		}
		if bh, ok := rn.promotionCandidate(shardId); ok {
			sr.Primary = false
			rn.arena[bh].Primary = true
			allocPrimaryPromotionsTotal.Inc()
			var p = *rn.arena[bh]
			promoted = &p
		}
	}
	return promoted, cascaded, nil
}

// unassignInPlace performs the mechanical UNASSIGNED transition shared by
// failShard and its replica cascade: detach from the current node, clear
// placement fields, and enqueue.
func (rn *RoutingNodes) unassignInPlace(h shardHandle, info UnassignedInfo) {
	var sr = rn.arena[h]
	if sr.CurrentNodeID != "" {
		delete(rn.nodeShards[sr.CurrentNodeID], h)
	}
	sr.State = Unassigned
	sr.CurrentNodeID = ""
	sr.RelocatingNodeID = ""
	sr.AllocationID = nil
	var infoCopy = info
	sr.UnassignedInfo = &infoCopy
	rn.unassigned = append(rn.unassigned, h)
}

// reinitShadowPrimary resets an UNASSIGNED shadow-replica primary back
// through initialization on the same node. Shadow replicas are not modeled
// as a distinct shard-copy kind in this package (spec.md §9 leaves their
// exact semantics undocumented and marks them optional), so this is a thin
// alias of initialize.
func (rn *RoutingNodes) reinitShadowPrimary(h shardHandle, node NodeID, expectedSize int64) (ShardRouting, error) {
	return rn.initialize(h, node, expectedSize)
}

// buildRoutingTable produces the immutable RoutingTable reflecting the
// current arena contents.
func (rn *RoutingNodes) buildRoutingTable(version int64) RoutingTable {
	var out = RoutingTable{Version: version, Indices: make(map[string]IndexRoutingTable)}
	for id, handles := range rn.shardCopies {
		if len(handles) == 0 {
			continue
		}
		var it, ok = out.Indices[id.Index.Name]
		if !ok {
			it = IndexRoutingTable{Index: id.Index, Shards: make(map[int]IndexShardRoutingTable)}
		}
		var copies = make([]ShardRouting, 0, len(handles))
		for h := range handles {
			copies = append(copies, *rn.arena[h])
		}
		sort.SliceStable(copies, func(i, j int) bool { return copies[i].Primary && !copies[j].Primary })
		it.Shards[id.Number] = IndexShardRoutingTable{ShardId: id, Shards: copies}
		out.Indices[id.Index.Name] = it
	}
	return out
}

// assertInvariants checks invariants 1-5 of spec.md §3 over the current
// arena. It is called after every reroute pass; a failure indicates a
// programming error in the allocation core, not a bad input.
func (rn *RoutingNodes) assertInvariants() error {
	var primaryCount = map[ShardId]int{}
	var allocIDs = map[ShardId]map[string]bool{}
	var primaryState = map[ShardId]ShardRoutingState{}

	for h, sr := range rn.arena {
		// The INITIALIZING target of a primary relocation inherits Primary
		// from its RELOCATING source; only the source counts as the primary.
		if sr.Primary && !(sr.State == Initializing && sr.RelocatingNodeID != "") {
			primaryCount[sr.ShardId]++
			primaryState[sr.ShardId] = sr.State
		}
		switch sr.State {
		case Unassigned:
			if sr.CurrentNodeID != "" || sr.RelocatingNodeID != "" || sr.AllocationID != nil {
				return errInvariant("shard %s UNASSIGNED but has placement fields set", sr.ShardId)
			}
		case Initializing, Started:
			if sr.CurrentNodeID == "" || sr.AllocationID == nil {
				return errInvariant("shard %s %s missing currentNodeId/allocationId", sr.ShardId, sr.State)
			}
		case Relocating:
			if sr.CurrentNodeID == "" || sr.RelocatingNodeID == "" || sr.CurrentNodeID == sr.RelocatingNodeID {
				return errInvariant("shard %s RELOCATING has invalid node pair", sr.ShardId)
			}
		}
		if sr.State != Unassigned && sr.AllocationID != nil {
			if allocIDs[sr.ShardId] == nil {
				allocIDs[sr.ShardId] = map[string]bool{}
			}
			if allocIDs[sr.ShardId][sr.AllocationID.ID] {
				return errInvariant("duplicate allocation id for shard %s", sr.ShardId)
			}
			allocIDs[sr.ShardId][sr.AllocationID.ID] = true
		}
		_ = h
	}
	for id, n := range primaryCount {
		if n != 1 {
			return errInvariant("shard %s has %d primaries, want 1", id, n)
		}
	}
	for _, sr := range rn.arena {
		if sr.Primary || sr.State != Initializing {
			continue
		}
		if ps := primaryState[sr.ShardId]; ps != Started && ps != Relocating {
			return errInvariant("replica of shard %s is INITIALIZING but primary is not STARTED", sr.ShardId)
		}
	}
	for node, handles := range rn.nodeShards {
		var seen = map[ShardId]bool{}
		for h := range handles {
			var sr = rn.arena[h]
			if seen[sr.ShardId] {
				return errInvariant("node %s has two copies of shard %s", node, sr.ShardId)
			}
			seen[sr.ShardId] = true
		}
	}
	return nil
}
