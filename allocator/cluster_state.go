package allocator

import "time"

// NodeRoles records what a node is provisioned to do. Only Data nodes are
// eligible shard-allocation targets; Master/Ingest are carried through for
// completeness and awareness/filter matching against node attributes.
type NodeRoles struct {
	Data   bool
	Master bool
	Ingest bool
}

// Node is a live member of the cluster, as reported by discovery.
type Node struct {
	ID         NodeID
	Roles      NodeRoles
	Zone       string
	Attributes map[string]string
}

// IndexSettings holds the per-index tunables named in spec.md §6.
type IndexSettings struct {
	NumberOfShards         int
	NumberOfReplicas       int
	DelayedNodeLeftTimeout time.Duration

	// Filter settings, keyed by node attribute name (e.g. "zone", "rack_id").
	IncludeFilters map[string]string
	ExcludeFilters map[string]string
	RequireFilters map[string]string
}

// IndexMetaData is the persisted state for one index that is not itself
// part of the routing table, but is reconciled from it: which allocation
// IDs are currently considered active/in-sync per shard, and each shard's
// primary term.
type IndexMetaData struct {
	Index               Index
	Settings            IndexSettings
	ActiveAllocationIDs map[int][]string // shard number -> allocation ids
	PrimaryTerms        map[int]int64    // shard number -> term
}

func (m IndexMetaData) clone() IndexMetaData {
	var out = m
	out.ActiveAllocationIDs = make(map[int][]string, len(m.ActiveAllocationIDs))
	for k, v := range m.ActiveAllocationIDs {
		out.ActiveAllocationIDs[k] = append([]string(nil), v...)
	}
	out.PrimaryTerms = make(map[int]int64, len(m.PrimaryTerms))
	for k, v := range m.PrimaryTerms {
		out.PrimaryTerms[k] = v
	}
	return out
}

// MetaData is the immutable, per-index metadata of a ClusterState.
type MetaData struct {
	Indices map[string]IndexMetaData // keyed by Index.Name
}

func (m MetaData) indexSafe(idx Index) (IndexMetaData, bool) {
	var im, ok = m.Indices[idx.Name]
	return im, ok
}

// IndexShardRoutingTable is the set of ShardRouting copies (primary plus
// replicas) for one ShardId.
type IndexShardRoutingTable struct {
	ShardId ShardId
	Shards  []ShardRouting
}

// Primary returns the primary ShardRouting of this shard group, or false if
// none is present (which is always a programming error post-commit). During
// a primary relocation the RELOCATING source is returned, never its
// INITIALIZING target.
func (t IndexShardRoutingTable) Primary() (ShardRouting, bool) {
	for _, s := range t.Shards {
		if s.Primary && !(s.State == Initializing && s.RelocatingNodeID != "") {
			return s, true
		}
	}
	return ShardRouting{}, false
}

// ActiveShards returns the STARTED and RELOCATING-source copies of this
// shard group (i.e. copies whose data is authoritative).
func (t IndexShardRoutingTable) ActiveShards() []ShardRouting {
	var out []ShardRouting
	for _, s := range t.Shards {
		if s.State == Started || s.State == Relocating {
			out = append(out, s)
		}
	}
	return out
}

// IndexRoutingTable is the routing table of one index.
type IndexRoutingTable struct {
	Index  Index
	Shards map[int]IndexShardRoutingTable // shard number -> group
}

// RoutingTable is the immutable, top-level routing table of a ClusterState.
type RoutingTable struct {
	Version int64
	Indices map[string]IndexRoutingTable // keyed by Index.Name
}

// ShardRoutingTable returns the IndexShardRoutingTable for shardId, or false
// if the index or shard number is not present.
func (t RoutingTable) ShardRoutingTable(id ShardId) (IndexShardRoutingTable, bool) {
	var it, ok = t.Indices[id.Index.Name]
	if !ok {
		return IndexShardRoutingTable{}, false
	}
	var st, ok2 = it.Shards[id.Number]
	return st, ok2
}

// AllShardIds returns every ShardId of the routing table, sorted.
func (t RoutingTable) AllShardIds() []ShardId {
	var out []ShardId
	for _, it := range t.Indices {
		for n := range it.Shards {
			out = append(out, ShardId{Index: it.Index, Number: n})
		}
	}
	sortShardIds(out)
	return out
}

// ClusterState is the immutable input and output value of the allocation
// core: a consistent snapshot of nodes, index metadata and routing.
type ClusterState struct {
	ClusterName  string
	Version      int64
	Nodes        []Node
	MetaData     MetaData
	RoutingTable RoutingTable
}

// dataNodeSet returns the set of node ids with the Data role, which are the
// only eligible allocation targets and the set consulted by
// deassociateDeadNodes.
func (c ClusterState) dataNodeSet() map[NodeID]Node {
	var out = make(map[NodeID]Node, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Roles.Data {
			out[n.ID] = n
		}
	}
	return out
}
