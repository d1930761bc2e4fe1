package allocator

// filterDecider enforces an index's include/exclude/require node-attribute
// filters (spec.md §6, grounded on the include/require/exclude settings
// surfaced by index.routing.allocation.* in Elasticsearch). A node must
// match every require filter, must match at least one value per include
// key, and must match no exclude filter.
type filterDecider struct{ allowAll }

func (filterDecider) Name() string { return "filter" }

func (d filterDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return d.evaluate(shard, node, a)
}

func (d filterDecider) CanRemain(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return d.evaluate(shard, node, a)
}

func (filterDecider) evaluate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	var im, ok = a.ClusterState.MetaData.indexSafe(shard.ShardId.Index)
	if !ok {
		return yes("filter", "no index settings")
	}
	for attr, want := range im.Settings.RequireFilters {
		if node.Attributes[attr] != want {
			return no("filter", "node "+string(node.ID)+" does not satisfy require["+attr+"="+want+"]")
		}
	}
	for attr, exclude := range im.Settings.ExcludeFilters {
		if node.Attributes[attr] == exclude {
			return no("filter", "node "+string(node.ID)+" matches exclude["+attr+"="+exclude+"]")
		}
	}
	for attr, include := range im.Settings.IncludeFilters {
		if node.Attributes[attr] != include {
			return no("filter", "node "+string(node.ID)+" does not satisfy include["+attr+"="+include+"]")
		}
	}
	return yes("filter", "satisfies all filters")
}
