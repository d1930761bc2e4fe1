package allocator

import "github.com/google/uuid"

// ShardRoutingState is the lifecycle state of a single shard copy.
type ShardRoutingState int

const (
	Unassigned ShardRoutingState = iota
	Initializing
	Started
	Relocating
)

func (s ShardRoutingState) String() string {
	switch s {
	case Unassigned:
		return "UNASSIGNED"
	case Initializing:
		return "INITIALIZING"
	case Started:
		return "STARTED"
	case Relocating:
		return "RELOCATING"
	default:
		return "UNKNOWN"
	}
}

// UnassignedReason explains why a shard copy is UNASSIGNED.
type UnassignedReason int

const (
	ReasonIndexCreated UnassignedReason = iota
	ReasonClusterRecovered
	ReasonAllocationFailed
	ReasonNodeLeft
	ReasonRerouteCancelled
	ReasonReinitialized
	ReasonReplicaAdded
	ReasonPrimaryFailed
)

func (r UnassignedReason) String() string {
	switch r {
	case ReasonIndexCreated:
		return "INDEX_CREATED"
	case ReasonClusterRecovered:
		return "CLUSTER_RECOVERED"
	case ReasonAllocationFailed:
		return "ALLOCATION_FAILED"
	case ReasonNodeLeft:
		return "NODE_LEFT"
	case ReasonRerouteCancelled:
		return "REROUTE_CANCELLED"
	case ReasonReinitialized:
		return "REINITIALIZED"
	case ReasonReplicaAdded:
		return "REPLICA_ADDED"
	case ReasonPrimaryFailed:
		return "PRIMARY_FAILED"
	default:
		return "UNKNOWN"
	}
}

// AllocationStatus records why the balancer left a shard unassigned, for
// operator-facing explanations. It is distinct from UnassignedReason, which
// records why the shard *became* unassigned in the first place.
type AllocationStatus int

const (
	NoAttempt AllocationStatus = iota
	DecidersNo
	DecidersThrottled
	FetchingShardData
)

func (s AllocationStatus) String() string {
	switch s {
	case NoAttempt:
		return "NO_ATTEMPT"
	case DecidersNo:
		return "DECIDERS_NO"
	case DecidersThrottled:
		return "THROTTLED"
	case FetchingShardData:
		return "FETCHING_SHARD_DATA"
	default:
		return "UNKNOWN"
	}
}

// UnassignedInfo is carried by a shard copy while it is UNASSIGNED, or while
// INITIALIZING after having previously failed.
type UnassignedInfo struct {
	Reason               UnassignedReason
	Message              string
	Cause                error
	NumFailedAllocations int
	UnassignedSinceNanos int64
	UnassignedSinceMillis int64
	Delayed              bool
	LastAllocationStatus AllocationStatus
}

// AllocationId identifies a distinct incarnation of a shard copy. A
// relocating copy's AllocationId additionally carries the id of its target
// half, so that on completion of the handoff the target can be promoted
// atomically without minting a new id (invariant 5 of the data model).
type AllocationId struct {
	ID           string
	RelocationID string
}

func newAllocationId() AllocationId {
	return AllocationId{ID: uuid.NewString()}
}

// ShardRouting is the elementary unit of the routing table: one copy
// (primary or replica) of one shard, and its current placement.
type ShardRouting struct {
	ShardId             ShardId
	Primary             bool
	State               ShardRoutingState
	CurrentNodeID       NodeID // zero value iff UNASSIGNED
	RelocatingNodeID    NodeID // set iff State == Relocating, or this is the INITIALIZING target half of a relocation
	AllocationID        *AllocationId
	UnassignedInfo      *UnassignedInfo
	ExpectedShardSize   int64

	// handle identifies this ShardRouting within the RoutingNodes arena that
	// produced it. It is meaningless once the ShardRouting has been copied
	// into an immutable RoutingTable and is not part of the value's identity.
	handle shardHandle
}

// IsSameAllocation returns true iff both routings represent the same shard
// incarnation (same shard, same allocation id).
func (s ShardRouting) IsSameAllocation(o ShardRouting) bool {
	if s.AllocationID == nil || o.AllocationID == nil {
		return false
	}
	return s.ShardId == o.ShardId && s.AllocationID.ID == o.AllocationID.ID
}

// IsTargetRelocationOf returns true iff s is the INITIALIZING target half of
// o's relocation (o must be RELOCATING).
func (s ShardRouting) IsTargetRelocationOf(o ShardRouting) bool {
	if o.State != Relocating || o.AllocationID == nil || s.AllocationID == nil {
		return false
	}
	return s.ShardId == o.ShardId && s.AllocationID.ID == o.AllocationID.RelocationID
}

func (s ShardRouting) String() string {
	var role = "replica"
	if s.Primary {
		role = "primary"
	}
	return s.ShardId.String() + " " + role + " " + s.State.String()
}
