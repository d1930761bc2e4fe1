package allocator

// ClusterHealthStatus summarizes the worst shard-level condition present in
// a RoutingTable, in the conventional Elasticsearch ordering: a single red
// primary outweighs any number of yellow replicas.
type ClusterHealthStatus int

const (
	Green ClusterHealthStatus = iota
	Yellow
	Red
)

func (s ClusterHealthStatus) String() string {
	switch s {
	case Green:
		return "GREEN"
	case Yellow:
		return "YELLOW"
	case Red:
		return "RED"
	default:
		return "UNKNOWN"
	}
}

// ClusterHealth is a point-in-time rollup of shard assignment state. It is
// computed for the input and output routing tables of each committed pass
// and its status is logged when it changes (spec.md §4 supplemented
// feature: gated health-transition logging); no exported API returns it.
type ClusterHealth struct {
	Status ClusterHealthStatus

	ActiveShards            int
	RelocatingShards        int
	InitializingShards      int
	UnassignedShards        int
	ActivePrimaryShards     int
	UnassignedPrimaryShards int
}

// computeClusterHealth walks every shard group of rt and derives the
// aggregate ClusterHealth. A RED status requires at least one UNASSIGNED or
// INITIALIZING primary; YELLOW requires at least one non-primary copy that
// is not STARTED/RELOCATING, with every primary otherwise active.
func computeClusterHealth(rt RoutingTable) ClusterHealth {
	var h ClusterHealth
	var anyUnassignedOrInitPrimary, anyNonActiveReplica bool

	for _, it := range rt.Indices {
		for _, group := range it.Shards {
			for _, s := range group.Shards {
				switch s.State {
				case Started:
					h.ActiveShards++
				case Relocating:
					h.ActiveShards++
					h.RelocatingShards++
				case Initializing:
					h.InitializingShards++
				case Unassigned:
					h.UnassignedShards++
				}

				if s.Primary {
					switch s.State {
					case Started, Relocating:
						h.ActivePrimaryShards++
					case Unassigned, Initializing:
						h.UnassignedPrimaryShards++
						anyUnassignedOrInitPrimary = true
					}
				} else if s.State != Started && s.State != Relocating {
					anyNonActiveReplica = true
				}
			}
		}
	}

	switch {
	case anyUnassignedOrInitPrimary:
		h.Status = Red
	case anyNonActiveReplica:
		h.Status = Yellow
	default:
		h.Status = Green
	}
	return h
}
