package allocator

// reconcileMetaData derives an updated MetaData from a committed routing
// change, following spec.md §4.7 exactly:
//
//   - Active allocation IDs are recomputed from the STARTED copies of each
//     shard. An empty result is never written over a non-empty stored set,
//     so a shard that transiently has no active copy does not lose the
//     record of what was last known active.
//   - A shard's primary term is bumped unless the new primary is
//     unassigned, is the same incarnation as the old primary, or is the
//     completed relocation target of the old primary (a primary relocation
//     leaves the term unchanged).
//
// Indices absent from newRT are left untouched: a routing table only ever
// covers live indices, and a reconcile pass never deletes metadata.
func reconcileMetaData(old MetaData, oldRT, newRT RoutingTable) MetaData {
	var out = MetaData{Indices: make(map[string]IndexMetaData, len(old.Indices))}
	var changedAny bool

	for name, im := range old.Indices {
		var next = im
		var indexChanged bool
		var newIndex, hasNewIndex = newRT.Indices[name]
		var oldIndex, hasOldIndex = oldRT.Indices[name]

		for shardNum := range im.PrimaryTerms {
			var activeIDs []string
			if hasNewIndex {
				if group, ok := newIndex.Shards[shardNum]; ok {
					for _, s := range group.Shards {
						if s.State == Started {
							activeIDs = append(activeIDs, s.AllocationID.ID)
						}
					}
				}
			}
			if len(activeIDs) > 0 {
				if !next.hasSameActiveIDs(shardNum, activeIDs) {
					next = next.withActiveIDs(shardNum, activeIDs)
					indexChanged = true
				}
			}

			var newPrimary, hasNewPrimary = shardPrimary(newIndex, hasNewIndex, shardNum)
			var oldPrimary, hasOldPrimary = shardPrimary(oldIndex, hasOldIndex, shardNum)

			if !hasNewPrimary {
				continue // missing primary entries mid-pass are fine; only a committed result must have one
			}
			if newPrimary.State == Unassigned {
				continue
			}
			if hasOldPrimary && newPrimary.IsSameAllocation(oldPrimary) {
				continue
			}
			if hasOldPrimary && oldPrimary.State == Relocating && oldPrimary.AllocationID != nil &&
				newPrimary.AllocationID != nil && oldPrimary.AllocationID.RelocationID == newPrimary.AllocationID.ID {
				continue // primary relocation completed; term is unchanged
			}
			next = next.withBumpedTerm(shardNum)
			indexChanged = true
		}

		if indexChanged {
			changedAny = true
		}
		out.Indices[name] = next
	}

	if !changedAny {
		return old
	}
	return out
}

func shardPrimary(irt IndexRoutingTable, hasIndex bool, shardNum int) (ShardRouting, bool) {
	if !hasIndex {
		return ShardRouting{}, false
	}
	var group, ok = irt.Shards[shardNum]
	if !ok {
		return ShardRouting{}, false
	}
	return group.Primary()
}

func (m IndexMetaData) hasSameActiveIDs(shardNum int, ids []string) bool {
	var existing = m.ActiveAllocationIDs[shardNum]
	if len(existing) != len(ids) {
		return false
	}
	var set = make(map[string]bool, len(existing))
	for _, id := range existing {
		set[id] = true
	}
	for _, id := range ids {
		if !set[id] {
			return false
		}
	}
	return true
}

func (m IndexMetaData) withActiveIDs(shardNum int, ids []string) IndexMetaData {
	var out = m.clone()
	out.ActiveAllocationIDs[shardNum] = ids
	return out
}

func (m IndexMetaData) withBumpedTerm(shardNum int) IndexMetaData {
	var out = m.clone()
	out.PrimaryTerms[shardNum] = m.PrimaryTerms[shardNum] + 1
	return out
}
