package allocator

import "time"

// fixedClock returns a Clock that always reports the same instant, so
// tests can reason about UnassignedInfo timestamps without depending on
// wall-clock time. advance lets a test simulate time passing between two
// passes (spec.md §8's delayed node-left scenario).
type fixedClock struct {
	nanos int64
}

func (c *fixedClock) clock() (int64, int64) { return c.nanos, c.nanos / int64(time.Millisecond) }

func (c *fixedClock) advance(d time.Duration) { c.nanos += int64(d) }

func testIndex(name string) Index { return Index{Name: name, UUID: name + "-uuid"} }

// testClusterState builds a ClusterState with numShards shards, each with
// one primary and numReplicas replicas, all UNASSIGNED, over the given
// nodes.
func testClusterState(nodes []Node, indexName string, numShards, numReplicas int) ClusterState {
	var index = testIndex(indexName)
	var im = IndexMetaData{
		Index:               index,
		Settings:            IndexSettings{NumberOfShards: numShards, NumberOfReplicas: numReplicas},
		ActiveAllocationIDs: map[int][]string{},
		PrimaryTerms:        map[int]int64{},
	}
	var irt = IndexRoutingTable{Index: index, Shards: map[int]IndexShardRoutingTable{}}

	for n := 0; n < numShards; n++ {
		var shardId = ShardId{Index: index, Number: n}
		im.PrimaryTerms[n] = 1
		var copies = []ShardRouting{{ShardId: shardId, Primary: true, State: Unassigned}}
		for r := 0; r < numReplicas; r++ {
			copies = append(copies, ShardRouting{ShardId: shardId, Primary: false, State: Unassigned})
		}
		irt.Shards[n] = IndexShardRoutingTable{ShardId: shardId, Shards: copies}
	}

	return ClusterState{
		ClusterName:  "test",
		Version:      1,
		Nodes:        nodes,
		MetaData:     MetaData{Indices: map[string]IndexMetaData{indexName: im}},
		RoutingTable: RoutingTable{Version: 1, Indices: map[string]IndexRoutingTable{indexName: irt}},
	}
}

func testNode(id string) Node {
	return Node{ID: NodeID(id), Roles: NodeRoles{Data: true}}
}

func testService(settings Settings) *AllocationService {
	return NewAllocationService(emptyOracle{}, settings, DefaultWeightFunction(), (&fixedClock{}).clock)
}

type emptyOracle struct{}

func (emptyOracle) StoreInfo(NodeID, ShardId) (ShardStoreInfo, bool) { return ShardStoreInfo{}, false }
