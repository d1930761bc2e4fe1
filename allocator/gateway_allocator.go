package allocator

import (
	"sort"

	lru "github.com/hashicorp/golang-lru"
)

// ShardStoreInfo is what an on-disk store lookup reports for one shard copy
// found on a node: whether the copy's data is at least as fresh as the
// primary's, used by the gateway allocator to prefer resurrecting the
// freshest stale copy over an arbitrary one after a full cluster restart.
type ShardStoreInfo struct {
	AllocationID string
	Legacy       bool
}

// ShardStoreOracle answers "what does node's on-disk store report for
// shardId" — an asynchronous, potentially slow operation in a real
// deployment (a network round trip to the node), modeled here as a
// synchronous interface so callers can implement it however fits their
// transport. FetchingShardData (spec.md's AllocationStatus) is reported
// when the oracle has not yet observed a fresh answer for a shard.
type ShardStoreOracle interface {
	StoreInfo(node NodeID, shardId ShardId) (ShardStoreInfo, bool)
}

// gatewayAllocator resolves placement for shards recovering after a
// cluster or node restart, when no live copy exists yet and the only
// evidence of a shard's prior existence is on-disk store data. It caches
// oracle answers for the lifetime of the process (across many reroute
// passes, not just one), since store lookups are comparatively expensive
// and rarely change between passes — grounded on the teacher's use of
// hashicorp/golang-lru to bound the memory a long-lived process spends on
// exactly this kind of "cache of external facts" (gazette-core's discovery
// caching follows the same shape, an LRU in front of a slow lookup).
type gatewayAllocator struct {
	oracle ShardStoreOracle
	cache  *lru.Cache
}

type storeInfoKey struct {
	node    NodeID
	shardId ShardId
}

func newGatewayAllocator(oracle ShardStoreOracle, cacheSize int) *gatewayAllocator {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	var c, _ = lru.New(cacheSize)
	return &gatewayAllocator{oracle: oracle, cache: c}
}

// storeInfo returns a cached ShardStoreInfo, consulting the oracle on a
// cache miss and caching the result (including a negative result, so a
// permanently-missing shard does not re-hit the oracle every pass).
func (g *gatewayAllocator) storeInfo(node NodeID, shardId ShardId) (ShardStoreInfo, bool) {
	var key = storeInfoKey{node, shardId}
	if v, ok := g.cache.Get(key); ok {
		var entry = v.(cachedStoreInfo)
		return entry.info, entry.found
	}
	var info, found = g.oracle.StoreInfo(node, shardId)
	g.cache.Add(key, cachedStoreInfo{info, found})
	return info, found
}

type cachedStoreInfo struct {
	info  ShardStoreInfo
	found bool
}

// invalidate drops every cached answer for shardId, called once a copy of
// the shard starts or fails, so a stale oracle answer never outlives the
// allocation it was consulted for.
func (g *gatewayAllocator) invalidate(shardId ShardId) {
	for _, k := range g.cache.Keys() {
		if key, ok := k.(storeInfoKey); ok && key.shardId == shardId {
			g.cache.Remove(key)
		}
	}
}

// allocateUnassignedPrimaries attempts to place UNASSIGNED primaries whose
// index has no active allocation ids recorded (i.e. never started since the
// cluster came up) by consulting the store oracle for the freshest
// available on-disk copy, reporting FetchingShardData for any shard the
// oracle has not yet answered for so the balancer does not treat it as a
// hard decider veto. It runs before the balancer's own
// allocateUnassigned so that gateway recovery always gets first pick of an
// otherwise-untouched primary.
func (g *gatewayAllocator) allocateUnassignedPrimaries(a *RoutingAllocation, explain bool) {
	for _, shard := range a.Nodes.UnassignedShards() {
		if !shard.Primary || a.IsIgnored(shard.ShardId) {
			continue
		}
		var im, ok = a.ClusterState.MetaData.indexSafe(shard.ShardId.Index)
		if !ok || len(im.ActiveAllocationIDs[shard.ShardId.Number]) > 0 {
			continue // already has active copies recorded; not a fresh-restart recovery case
		}

		var bestNode NodeID
		var bestInfo ShardStoreInfo
		var haveBest, anyPending bool

		var candidates []Node
		for _, n := range a.ClusterState.dataNodeSet() {
			candidates = append(candidates, n)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

		for _, n := range candidates {
			info, found := g.storeInfo(n.ID, shard.ShardId)
			if !found {
				anyPending = true
				continue
			}
			if dec := a.CanAllocate(shard, n); dec.Type == No {
				continue
			}
			var better = !haveBest ||
				(bestInfo.Legacy && !info.Legacy) ||
				(bestInfo.Legacy == info.Legacy && info.AllocationID > bestInfo.AllocationID)
			if better {
				bestNode, bestInfo, haveBest = n.ID, info, true
			}
		}

		if !haveBest {
			if explain && anyPending {
				a.RecordExplanation(RoutingExplanation{ShardId: shard.ShardId, Primary: true, AllocationStatus: FetchingShardData})
			}
			continue
		}
		if _, err := a.Nodes.initialize(shard.handle, bestNode, 0); err == nil {
			a.MarkChanged()
			g.invalidate(shard.ShardId)
		}
	}
}
