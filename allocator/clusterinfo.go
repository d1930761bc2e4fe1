package allocator

// DiskUsage is the disk-space oracle's view of one node, consulted by the
// disk-threshold decider (spec.md §4.2).
type DiskUsage struct {
	TotalBytes int64
	FreeBytes  int64
}

// UsedRatio returns the fraction of disk in use, in [0, 1]. A node reported
// with TotalBytes == 0 is treated as fully used, erring towards caution
// rather than dividing by zero.
func (d DiskUsage) UsedRatio() float64 {
	if d.TotalBytes <= 0 {
		return 1
	}
	return 1 - float64(d.FreeBytes)/float64(d.TotalBytes)
}

// ClusterInfo is the read-only oracle of external facts the allocation core
// needs but does not itself own: per-node disk usage and per-shard size
// estimates. Callers (typically fed by a monitoring sidecar) supply an
// implementation; production code never constructs a RoutingAllocation
// without one. A nil ClusterInfo cannot be queried, but a zero
// StaticClusterInfo (nil maps) can: it reports nothing known.
type ClusterInfo interface {
	DiskUsage(node NodeID) (DiskUsage, bool)
	ShardSize(id ShardId, primary bool) (int64, bool)
}

// StaticClusterInfo is a ClusterInfo backed by plain maps, grounded on the
// teacher's style of passing immutable snapshots into transaction contexts
// rather than querying a live service mid-pass. It is the typical caller
// implementation and is also used directly by tests.
type StaticClusterInfo struct {
	Disk   map[NodeID]DiskUsage
	Shards map[ShardId]int64
}

func (s StaticClusterInfo) DiskUsage(node NodeID) (DiskUsage, bool) {
	d, ok := s.Disk[node]
	return d, ok
}

func (s StaticClusterInfo) ShardSize(id ShardId, primary bool) (int64, bool) {
	sz, ok := s.Shards[id]
	return sz, ok
}
