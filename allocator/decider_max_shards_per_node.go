package allocator

// maxShardsPerNodeDecider caps the total number of shard copies (any index,
// any state) a single node may hold, mirroring Elasticsearch's
// cluster.max_shards_per_node. Settings.MaxShardsPerNode <= 0 means
// unlimited.
type maxShardsPerNodeDecider struct{ allowAll }

func (maxShardsPerNodeDecider) Name() string { return "max_shards_per_node" }

func (d maxShardsPerNodeDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	if a.Settings.MaxShardsPerNode <= 0 {
		return yes("max_shards_per_node", "no shard cap configured")
	}
	if len(a.Nodes.ShardsOnNode(node.ID)) >= a.Settings.MaxShardsPerNode {
		return no("max_shards_per_node", "node already holds its maximum number of shards")
	}
	return yes("max_shards_per_node", "node has room for another shard")
}
