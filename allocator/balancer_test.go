package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newBalancerAllocation(cs ClusterState, ci ClusterInfo, settings Settings) *RoutingAllocation {
	return newRoutingAllocation(cs, []Decider{
		sameShardDecider{}, filterDecider{}, awarenessDecider{}, diskThresholdDecider{},
		throttlingDecider{}, replicaAfterPrimaryDecider{}, enableAllocationDecider{}, maxRetryDecider{},
	}, ci, settings, (&fixedClock{}).clock, false)
}

func TestBalancerAllocateUnassignedPlacesPrimariesBeforeReplicas(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 1)
	var a = newBalancerAllocation(cs, StaticClusterInfo{}, DefaultSettings())

	newBalancer(a, DefaultWeightFunction()).allocateUnassigned(false)

	// The primary places this pass; the replica must wait until the
	// primary is STARTED (replicaAfterPrimaryDecider), so it stays
	// UNASSIGNED and the queue is not yet empty.
	require.Equal(t, 1, a.Nodes.UnassignedLen())
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var copies = a.Nodes.ShardCopies(shardId)
	require.Len(t, copies, 2)
	for _, c := range copies {
		if c.Primary {
			require.Equal(t, Initializing, c.State)
		} else {
			require.Equal(t, Unassigned, c.State)
		}
	}
}

func TestBalancerAllocateUnassignedRecordsExplanationWhenNoNodeEligible(t *testing.T) {
	var cs = testClusterState(nil, "idx", 1, 0)
	var a = newBalancerAllocation(cs, StaticClusterInfo{}, DefaultSettings())
	a.chain.debug = true

	newBalancer(a, DefaultWeightFunction()).allocateUnassigned(true)

	require.Len(t, a.Explanations(), 1)
	require.Equal(t, DecidersNo, a.Explanations()[0].AllocationStatus)
}

func TestBalancerMoveIllegallyPlacedShardsRelocatesOnHighWatermark(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 0)
	var ci = StaticClusterInfo{Disk: map[NodeID]DiskUsage{
		"n1": {TotalBytes: 100, FreeBytes: 50},
		"n2": {TotalBytes: 100, FreeBytes: 50},
	}}
	var a = newBalancerAllocation(cs, ci, DefaultSettings())
	var shard = a.Nodes.UnassignedShards()[0]
	var placed, _ = a.Nodes.initialize(shard.handle, "n1", 0)
	a.Nodes.startShard(placed.handle)

	// Now drop n1 below the high watermark so CanRemain vetoes it.
	a.ClusterInfo = StaticClusterInfo{Disk: map[NodeID]DiskUsage{
		"n1": {TotalBytes: 100, FreeBytes: 2},
		"n2": {TotalBytes: 100, FreeBytes: 50},
	}}

	newBalancer(a, DefaultWeightFunction()).moveIllegallyPlacedShards()

	// The RELOCATING source and its INITIALIZING target on n2.
	var copies = a.Nodes.ShardCopies(shard.ShardId)
	require.Len(t, copies, 2)
	var source = copies[0]
	if copies[1].CurrentNodeID == "n1" {
		source = copies[1]
	}
	require.Equal(t, Relocating, source.State)
	require.Equal(t, NodeID("n2"), source.RelocatingNodeID)
}

func TestBalancerRebalanceMovesShardToLighterNode(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 4, 0)
	var a = newBalancerAllocation(cs, StaticClusterInfo{}, DefaultSettings())

	// Pile every shard onto n1 by hand, leaving n2 empty.
	for _, shard := range a.Nodes.UnassignedShards() {
		var placed, _ = a.Nodes.initialize(shard.handle, "n1", 0)
		a.Nodes.startShard(placed.handle)
	}
	require.Len(t, a.Nodes.ShardsOnNode("n1"), 4)
	require.Empty(t, a.Nodes.ShardsOnNode("n2"))

	newBalancer(a, DefaultWeightFunction()).rebalance()

	require.NotEmpty(t, a.Nodes.ShardsOnNode("n2"))
}

func TestBalanceFullPassEndToEnd(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 2, 0)
	var a = newBalancerAllocation(cs, StaticClusterInfo{}, DefaultSettings())

	newBalancer(a, DefaultWeightFunction()).Balance(false)

	require.Equal(t, 0, a.Nodes.UnassignedLen())
	require.NoError(t, a.Nodes.assertInvariants())
}
