package allocator

import (
	"fmt"
	"sort"
)

// NodeID uniquely identifies a node within a ClusterState.
type NodeID string

// Index identifies an index by its stable name and a UUID minted at
// creation, so that a deleted-and-recreated index of the same name never
// aliases the old one's routing or metadata.
type Index struct {
	Name string
	UUID string
}

func (i Index) String() string { return i.Name + "/" + i.UUID }

// ShardId identifies one shard number within an Index. Every replica of a
// shard (the primary and each of its copies) shares the same ShardId; they
// are distinguished by ShardRouting.Primary and by residing on distinct
// nodes (invariant 4 of the data model).
type ShardId struct {
	Index  Index
	Number int
}

func (s ShardId) String() string { return fmt.Sprintf("[%s][%d]", s.Index, s.Number) }

// Less orders ShardIds first by index name, then UUID, then shard number.
// RoutingNodes, RoutingTable.AllShardIds and the balancer's unassigned
// queue rely on this order to walk shards deterministically.
func (s ShardId) Less(o ShardId) bool {
	if s.Index.Name != o.Index.Name {
		return s.Index.Name < o.Index.Name
	}
	if s.Index.UUID != o.Index.UUID {
		return s.Index.UUID < o.Index.UUID
	}
	return s.Number < o.Number
}

// sortShardIds sorts a slice of ShardId in place using ShardId.Less.
func sortShardIds(ids []ShardId) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

