package allocator

import "math"

// awarenessDecider spreads the copies of a shard evenly across the values
// of one or more node attributes (typically "zone"), so that losing every
// node in one zone never costs more than a fair share of a shard's copies.
// Grounded on Elasticsearch's AwarenessAllocationDecider; the counting rule
// is the same: no attribute value may hold more than
// ceil(totalCopies / numDistinctValues) copies of a given shard.
type awarenessDecider struct{ allowAll }

func (awarenessDecider) Name() string { return "awareness" }

func (d awarenessDecider) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	for _, attr := range a.Settings.AwarenessAttributes {
		if dec := d.checkAttribute(attr, shard, node, a); dec.Type != Yes {
			return dec
		}
	}
	return yes("awareness", "no attribute imbalance")
}

func (awarenessDecider) checkAttribute(attr string, shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	var nodeValue = node.Attributes[attr]
	if nodeValue == "" {
		return yes("awareness", "node has no value for "+attr)
	}

	var values = map[string]bool{}
	for _, n := range a.ClusterState.dataNodeSet() {
		if v := n.Attributes[attr]; v != "" {
			values[v] = true
		}
	}
	if len(values) == 0 {
		return yes("awareness", "no nodes carry "+attr)
	}

	var total = 1
	if im, ok := a.ClusterState.MetaData.indexSafe(shard.ShardId.Index); ok {
		total = im.Settings.NumberOfReplicas + 1
	}
	var perValue = int(math.Ceil(float64(total) / float64(len(values))))

	var countInValue int
	for _, cp := range a.Nodes.ShardCopies(shard.ShardId) {
		if cp.State == Unassigned || cp.IsSameAllocation(shard) {
			continue
		}
		if n, ok := a.dataNode(cp.CurrentNodeID); ok && n.Attributes[attr] == nodeValue {
			countInValue++
		}
	}
	if countInValue >= perValue {
		return throttle("awareness", attr+"="+nodeValue+" already holds its fair share of "+shard.ShardId.String())
	}
	return yes("awareness", "within fair share for "+attr)
}
