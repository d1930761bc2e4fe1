package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mapOracle struct {
	info map[storeInfoKey]ShardStoreInfo
}

func (m mapOracle) StoreInfo(node NodeID, shardId ShardId) (ShardStoreInfo, bool) {
	v, ok := m.info[storeInfoKey{node, shardId}]
	return v, ok
}

func TestGatewayAllocatorCachesOracleAnswers(t *testing.T) {
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var calls int
	var oracle = countingOracle{fn: func(NodeID, ShardId) (ShardStoreInfo, bool) {
		calls++
		return ShardStoreInfo{AllocationID: "a1"}, true
	}}
	var g = newGatewayAllocator(oracle, 0)

	var info, ok = g.storeInfo("n1", shardId)
	require.True(t, ok)
	require.Equal(t, "a1", info.AllocationID)

	g.storeInfo("n1", shardId)
	require.Equal(t, 1, calls)
}

type countingOracle struct {
	fn func(NodeID, ShardId) (ShardStoreInfo, bool)
}

func (c countingOracle) StoreInfo(node NodeID, shardId ShardId) (ShardStoreInfo, bool) {
	return c.fn(node, shardId)
}

func TestGatewayAllocatorInvalidateDropsCachedEntries(t *testing.T) {
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var oracle = mapOracle{info: map[storeInfoKey]ShardStoreInfo{
		{"n1", shardId}: {AllocationID: "a1"},
	}}
	var g = newGatewayAllocator(oracle, 0)
	g.storeInfo("n1", shardId)
	g.invalidate(shardId)
	require.Equal(t, 0, g.cache.Len())
}

func TestGatewayAllocatorPlacesFreshestNonLegacyCopy(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1"), testNode("n2")}, "idx", 1, 0)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var oracle = mapOracle{info: map[storeInfoKey]ShardStoreInfo{
		{"n1", shardId}: {AllocationID: "a1", Legacy: true},
		{"n2", shardId}: {AllocationID: "a2", Legacy: false},
	}}
	var g = newGatewayAllocator(oracle, 0)
	var a = newRoutingAllocation(cs, []Decider{sameShardDecider{}}, StaticClusterInfo{}, DefaultSettings(), (&fixedClock{}).clock, false)

	g.allocateUnassignedPrimaries(a, false)

	var copies = a.Nodes.ShardCopies(shardId)
	require.Len(t, copies, 1)
	require.Equal(t, NodeID("n2"), copies[0].CurrentNodeID)
}

func TestGatewayAllocatorSkipsIndexWithActiveAllocationIDs(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var shardId = ShardId{Index: testIndex("idx"), Number: 0}
	var im = cs.MetaData.Indices["idx"]
	im.ActiveAllocationIDs[0] = []string{"already-active"}
	cs.MetaData.Indices["idx"] = im

	var oracle = mapOracle{info: map[storeInfoKey]ShardStoreInfo{
		{"n1", shardId}: {AllocationID: "a1"},
	}}
	var g = newGatewayAllocator(oracle, 0)
	var a = newRoutingAllocation(cs, []Decider{sameShardDecider{}}, StaticClusterInfo{}, DefaultSettings(), (&fixedClock{}).clock, false)

	g.allocateUnassignedPrimaries(a, false)

	require.Equal(t, 1, a.Nodes.UnassignedLen())
}

func TestGatewayAllocatorReportsFetchingShardDataInExplainMode(t *testing.T) {
	var cs = testClusterState([]Node{testNode("n1")}, "idx", 1, 0)
	var g = newGatewayAllocator(emptyOracle{}, 0)
	var a = newRoutingAllocation(cs, []Decider{sameShardDecider{}}, StaticClusterInfo{}, DefaultSettings(), (&fixedClock{}).clock, true)

	g.allocateUnassignedPrimaries(a, true)

	require.Equal(t, 1, a.Nodes.UnassignedLen())
	require.Len(t, a.Explanations(), 1)
	require.Equal(t, FetchingShardData, a.Explanations()[0].AllocationStatus)
}
