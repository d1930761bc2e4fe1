package allocator

import (
	"testing"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/stretchr/testify/require"
)

// ServiceSuite exercises AllocationService end to end, in the check.v1 style
// used for the larger scenario-driven tests, alongside the single-assertion
// testify tests elsewhere in this package.
type ServiceSuite struct{}

var _ = gc.Suite(&ServiceSuite{})

func Test(t *testing.T) { gc.TestingT(t) }

func (s *ServiceSuite) TestFreshSingleNodeClusterAssignsPrimary(c *gc.C) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var svc = testService(DefaultSettings())

	var result, err = svc.Reroute(cs, StaticClusterInfo{}, false, false)
	c.Assert(err, gc.IsNil)
	c.Check(result.Changed, gc.Equals, true)

	var group, ok = result.ClusterState.RoutingTable.ShardRoutingTable(ShardId{Index: testIndex("idx"), Number: 0})
	c.Assert(ok, gc.Equals, true)
	c.Check(group.Shards[0].State, gc.Equals, Initializing)
	c.Check(group.Shards[0].CurrentNodeID, gc.Equals, NodeID("n1"))
}

func (s *ServiceSuite) TestTwoNodeClusterSpreadsShardsForBalance(c *gc.C) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 4, 0)
	var svc = testService(DefaultSettings())

	// Assign all four primaries through the service's first pass, start
	// them, and check that the placement uses both nodes rather than
	// piling every shard onto one.
	var first, err = svc.Reroute(cs, StaticClusterInfo{}, false, false)
	c.Assert(err, gc.IsNil)

	var startedEntries []StartedShardEntry
	for _, id := range first.ClusterState.RoutingTable.AllShardIds() {
		var group, _ = first.ClusterState.RoutingTable.ShardRoutingTable(id)
		for _, sh := range group.Shards {
			startedEntries = append(startedEntries, StartedShardEntry{ShardId: id, Node: sh.CurrentNodeID, AllocationID: sh.AllocationID.ID})
		}
	}
	var started, err2 = svc.ApplyStartedShards(first.ClusterState, StaticClusterInfo{}, startedEntries)
	c.Assert(err2, gc.IsNil)

	var onN1, onN2 int
	for _, id := range started.ClusterState.RoutingTable.AllShardIds() {
		var group, _ = started.ClusterState.RoutingTable.ShardRoutingTable(id)
		for _, sh := range group.Shards {
			if sh.CurrentNodeID == "n1" {
				onN1++
			} else if sh.CurrentNodeID == "n2" {
				onN2++
			}
		}
	}
	c.Check(onN1 > 0 && onN2 > 0, gc.Equals, true)
}

func (s *ServiceSuite) TestPrimaryFailurePromotesReplica(c *gc.C) {
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 1)
	var svc = testService(DefaultSettings())

	// First pass only places the primary; the replica stays UNASSIGNED
	// until the primary is STARTED (replicaAfterPrimaryDecider).
	var placed, err = svc.Reroute(cs, StaticClusterInfo{}, false, false)
	c.Assert(err, gc.IsNil)

	var group, _ = placed.ClusterState.RoutingTable.ShardRoutingTable(shardId)
	var entries []StartedShardEntry
	for _, sh := range group.Shards {
		if sh.State != Initializing {
			continue
		}
		entries = append(entries, StartedShardEntry{ShardId: sh.ShardId, Node: sh.CurrentNodeID, AllocationID: sh.AllocationID.ID})
	}
	c.Assert(entries, gc.HasLen, 1)
	var primaryStarted, err2 = svc.ApplyStartedShards(placed.ClusterState, StaticClusterInfo{}, entries)
	c.Assert(err2, gc.IsNil)

	// The reroute run by ApplyStartedShards already placed the replica, since
	// its primary is STARTED; this plain pass leaves it INITIALIZING.
	var replicaPlaced, err3 = svc.Reroute(primaryStarted.ClusterState, StaticClusterInfo{}, false, false)
	c.Assert(err3, gc.IsNil)

	var replicaGroup, _ = replicaPlaced.ClusterState.RoutingTable.ShardRoutingTable(shardId)
	var replicaEntries []StartedShardEntry
	for _, sh := range replicaGroup.Shards {
		if sh.State != Initializing {
			continue
		}
		replicaEntries = append(replicaEntries, StartedShardEntry{ShardId: sh.ShardId, Node: sh.CurrentNodeID, AllocationID: sh.AllocationID.ID})
	}
	c.Assert(replicaEntries, gc.HasLen, 1)
	var started, err4 = svc.ApplyStartedShards(replicaPlaced.ClusterState, StaticClusterInfo{}, replicaEntries)
	c.Assert(err4, gc.IsNil)

	var beforeGroup, _ = started.ClusterState.RoutingTable.ShardRoutingTable(shardId)
	var primary, _ = beforeGroup.Primary()

	var failed, err5 = svc.ApplyFailedShards(started.ClusterState, StaticClusterInfo{}, []FailedShardEntry{
		{ShardId: primary.ShardId, Node: primary.CurrentNodeID, AllocationID: primary.AllocationID.ID, Message: "disk error"},
	})
	c.Assert(err5, gc.IsNil)

	var afterGroup, _ = failed.ClusterState.RoutingTable.ShardRoutingTable(shardId)
	var newPrimary, ok = afterGroup.Primary()
	c.Assert(ok, gc.Equals, true)
	c.Check(newPrimary.CurrentNodeID, gc.Equals, NodeID("n2"))
	c.Check(newPrimary.State, gc.Equals, Started)
}

func (s *ServiceSuite) TestDelayedNodeLeftHoldsReplicaBeforeReallocating(c *gc.C) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2"), testNode("n3")}, "idx", 1, 1)
	var im = cs.MetaData.Indices["idx"]
	im.Settings.DelayedNodeLeftTimeout = time.Minute
	cs.MetaData.Indices["idx"] = im

	var clock = &fixedClock{}
	var svc = NewAllocationService(emptyOracle{}, DefaultSettings(), DefaultWeightFunction(), clock.clock)

	var placed, err = svc.Reroute(cs, StaticClusterInfo{}, false, false)
	c.Assert(err, gc.IsNil)

	// Only the primary is placed yet; the replica is still UNASSIGNED.
	var group, _ = placed.ClusterState.RoutingTable.ShardRoutingTable(ShardId{Index: testIndex("idx"), Number: 0})
	var entries []StartedShardEntry
	for _, sh := range group.Shards {
		if sh.State != Initializing {
			continue
		}
		entries = append(entries, StartedShardEntry{ShardId: sh.ShardId, Node: sh.CurrentNodeID, AllocationID: sh.AllocationID.ID})
	}
	var started, err2 = svc.ApplyStartedShards(placed.ClusterState, StaticClusterInfo{}, entries)
	c.Assert(err2, gc.IsNil)

	// n2 leaves the cluster.
	var withoutN2 = started.ClusterState
	withoutN2.Nodes = []Node{testNode("n1"), testNode("n3")}

	var afterLeave, err3 = svc.Reroute(withoutN2, StaticClusterInfo{}, false, false)
	c.Assert(err3, gc.IsNil)

	var afterGroup, _ = afterLeave.ClusterState.RoutingTable.ShardRoutingTable(ShardId{Index: testIndex("idx"), Number: 0})
	for _, sh := range afterGroup.Shards {
		if !sh.Primary {
			c.Check(sh.State, gc.Equals, Unassigned)
			c.Assert(sh.UnassignedInfo, gc.NotNil)
			c.Check(sh.UnassignedInfo.Delayed, gc.Equals, true)
		}
	}

	// Advance the clock past the delay window; a second reroute should now
	// place the replica.
	clock.advance(2 * time.Minute)
	var afterDelay, err4 = svc.Reroute(afterLeave.ClusterState, StaticClusterInfo{}, false, false)
	c.Assert(err4, gc.IsNil)

	var finalGroup, _ = afterDelay.ClusterState.RoutingTable.ShardRoutingTable(ShardId{Index: testIndex("idx"), Number: 0})
	for _, sh := range finalGroup.Shards {
		if !sh.Primary {
			c.Check(sh.State, gc.Equals, Initializing)
		}
	}
}

func (s *ServiceSuite) TestDiskWatermarkBlocksAllocation(c *gc.C) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var ci = StaticClusterInfo{Disk: map[NodeID]DiskUsage{"n1": {TotalBytes: 100, FreeBytes: 1}}}
	var svc = testService(DefaultSettings())

	var result, err = svc.Reroute(cs, ci, false, false)
	c.Assert(err, gc.IsNil)
	c.Check(result.Changed, gc.Equals, false)
}

func (s *ServiceSuite) TestThrottlingLimitsConcurrentRecoveries(c *gc.C) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 4, 0)
	var settings = DefaultSettings()
	settings.ConcurrentRecoveriesPerNode = 1
	var svc = testService(settings)

	var result, err = svc.Reroute(cs, StaticClusterInfo{}, false, false)
	c.Assert(err, gc.IsNil)

	var initializing int
	for _, id := range result.ClusterState.RoutingTable.AllShardIds() {
		var group, _ = result.ClusterState.RoutingTable.ShardRoutingTable(id)
		for _, sh := range group.Shards {
			if sh.State == Initializing {
				initializing++
			}
		}
	}
	c.Check(initializing, gc.Equals, 1)
}

func TestRerouteWithCommandsAppliesCancel(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 1)
	var svc = testService(DefaultSettings())

	var placed, err = svc.Reroute(cs, StaticClusterInfo{}, false, false)
	require.NoError(t, err)

	var group, _ = placed.ClusterState.RoutingTable.ShardRoutingTable(ShardId{Index: testIndex("idx"), Number: 0})
	var primary, _ = group.Primary()

	var result, err2 = svc.RerouteWithCommands(placed.ClusterState, StaticClusterInfo{}, []AllocationCommand{
		CancelAllocationCommand{ShardId: primary.ShardId, Node: primary.CurrentNodeID, AllowPrimary: true},
	}, false)
	require.NoError(t, err2)
	require.True(t, result.Changed)
}
