package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newCommandAllocation(cs ClusterState) *RoutingAllocation {
	return newRoutingAllocation(cs, []Decider{
		sameShardDecider{}, filterDecider{}, awarenessDecider{}, diskThresholdDecider{},
		throttlingDecider{}, replicaAfterPrimaryDecider{}, enableAllocationDecider{}, maxRetryDecider{},
	}, StaticClusterInfo{}, DefaultSettings(), (&fixedClock{}).clock, false)
}

func startedShard(a *RoutingAllocation, id ShardId, primary bool, node NodeID) ShardRouting {
	for _, s := range a.Nodes.UnassignedShards() {
		if s.ShardId == id && s.Primary == primary {
			var placed, _ = a.Nodes.initialize(s.handle, node, 0)
			var started, _ = a.Nodes.startShard(placed.handle)
			return started
		}
	}
	panic("no matching unassigned shard")
}

func TestMoveAllocationCommandRelocates(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	startedShard(a, shardId, true, "n1")

	var cmd = MoveAllocationCommand{ShardId: shardId, FromNode: "n1", ToNode: "n2"}
	require.NoError(t, cmd.Execute(a))

	// The RELOCATING source on n1 and its INITIALIZING target on n2.
	var copies = a.Nodes.ShardCopies(shardId)
	require.Len(t, copies, 2)
	var source = copies[0]
	if copies[1].CurrentNodeID == "n1" {
		source = copies[1]
	}
	require.Equal(t, Relocating, source.State)
}

func TestMoveAllocationCommandRejectsUnknownSource(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}

	var cmd = MoveAllocationCommand{ShardId: shardId, FromNode: "n1", ToNode: "n2"}
	require.Error(t, cmd.Execute(a))
}

func TestCancelAllocationCommandRejectsPrimaryWithoutAllowFlag(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var shard = a.Nodes.UnassignedShards()[0]
	var placed, _ = a.Nodes.initialize(shard.handle, "n1", 0)
	_ = placed

	var cmd = CancelAllocationCommand{ShardId: shardId, Node: "n1", AllowPrimary: false}
	require.Error(t, cmd.Execute(a))
}

func TestCancelAllocationCommandCancelsInitializingWithAllowFlag(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var shard = a.Nodes.UnassignedShards()[0]
	a.Nodes.initialize(shard.handle, "n1", 0)

	var cmd = CancelAllocationCommand{ShardId: shardId, Node: "n1", AllowPrimary: true}
	require.NoError(t, cmd.Execute(a))
	require.Equal(t, 1, a.Nodes.UnassignedLen())
}

func TestCancelAllocationCommandCancelsRelocationBackToSource(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	startedShard(a, shardId, true, "n1")
	var moved = MoveAllocationCommand{ShardId: shardId, FromNode: "n1", ToNode: "n2"}
	require.NoError(t, moved.Execute(a))

	var cmd = CancelAllocationCommand{ShardId: shardId, Node: "n2", AllowPrimary: true}
	require.NoError(t, cmd.Execute(a))

	var copies = a.Nodes.ShardCopies(shardId)
	require.Len(t, copies, 1)
	require.Equal(t, Started, copies[0].State)
	require.Equal(t, NodeID("n1"), copies[0].CurrentNodeID)
}

func TestAllocateReplicaCommandPlacesReplica(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 1)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	startedShard(a, shardId, true, "n1")

	var cmd = AllocateReplicaCommand{ShardId: shardId, Node: "n2"}
	require.NoError(t, cmd.Execute(a))

	var copies = a.Nodes.ShardCopies(shardId)
	require.Len(t, copies, 2)
}

func TestAllocateReplicaCommandRejectsUnknownNode(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 1)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	startedShard(a, shardId, true, "n1")

	var cmd = AllocateReplicaCommand{ShardId: shardId, Node: "ghost"}
	require.Error(t, cmd.Execute(a))
}

func TestAllocateStalePrimaryCommandRequiresAcceptDataLoss(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}

	var cmd = AllocateStalePrimaryCommand{ShardId: shardId, Node: "n1", AcceptDataLoss: false}
	require.Error(t, cmd.Execute(a))
}

func TestAllocateStalePrimaryCommandForceAllocates(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}

	var cmd = AllocateStalePrimaryCommand{ShardId: shardId, Node: "n1", AcceptDataLoss: true}
	require.NoError(t, cmd.Execute(a))
	require.Equal(t, 0, a.Nodes.UnassignedLen())
}

func TestAllocateEmptyPrimaryCommandForceAllocates(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var a = newCommandAllocation(cs)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}

	var cmd = AllocateEmptyPrimaryCommand{ShardId: shardId, Node: "n1", AcceptDataLoss: true}
	require.NoError(t, cmd.Execute(a))
	require.Equal(t, 0, a.Nodes.UnassignedLen())
}
