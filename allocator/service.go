package allocator

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// rerouteRandSource drives the unassigned-queue shuffle of plain reroute
// passes. A single package-level source is safe because
// AllocationService callers are required to serialize their calls
// (spec.md §5); it is not used by command-mode reroute, which must stay
// deterministic.
var rerouteRandSource = rand.New(rand.NewSource(time.Now().UnixNano()))

func rerouteRand() *rand.Rand { return rerouteRandSource }

// maxLoggedShardIDs bounds how many shard identifiers a single log line
// enumerates before falling back to "and N more", ported from
// AllocationService.java's firstListElementsToCommaDelimitedString so a
// cluster-wide event never produces an unbounded log line.
const maxLoggedShardIDs = 10

func summarizeShardIDs(ids []ShardId) string {
	if len(ids) == 0 {
		return "[]"
	}
	var n = len(ids)
	if n > maxLoggedShardIDs {
		n = maxLoggedShardIDs
	}
	var parts = make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = ids[i].String()
	}
	var out = strings.Join(parts, ", ")
	if len(ids) > maxLoggedShardIDs {
		out += ", ... (" + strconv.Itoa(len(ids)-maxLoggedShardIDs) + " more)"
	}
	return out
}

// Result is the outcome of one AllocationService entry point: either the
// original ClusterState (Changed == false) or a fully validated
// replacement, plus any explanations accumulated if the call ran in
// explain mode.
type Result struct {
	Changed      bool
	ClusterState ClusterState
	Explanations []RoutingExplanation
}

// StartedShardEntry reports that a specific shard incarnation has finished
// recovering and is ready to serve traffic.
type StartedShardEntry struct {
	ShardId      ShardId
	Node         NodeID
	AllocationID string
	Message      string
}

// FailedShardEntry reports that a specific shard incarnation can no longer
// serve traffic (recovery failed, the node reported corruption, etc).
type FailedShardEntry struct {
	ShardId      ShardId
	Node         NodeID
	AllocationID string
	Message      string
	Cause        error
	MarkAsStale  bool
}

// AllocationService is the transactional reducer over cluster state: the
// single entry point that applies event batches, runs placement through
// the decider stack and the balancer, reconciles per-index metadata, and
// returns either the unchanged state or a validated replacement.
// Construct one per process; it holds no state itself besides the
// gateway allocator's cache, so it may be shared across concurrent
// read-only callers so long as ApplyStartedShards/ApplyFailedShards/Reroute
// calls themselves are serialized by the caller (spec.md §5).
type AllocationService struct {
	deciders []Decider
	gateway  *gatewayAllocator
	weight   WeightFunction
	settings Settings
	clock    Clock
}

// NewAllocationService builds the standard decider stack in the fixed
// evaluation order spec.md §4.2 documents (same-shard and filters first, as
// they are absolute; awareness, disk/shard-count and throttling next, as
// they shape placement quality; replica-after-primary, enable-allocation
// and max-retry last, as they are the most situational).
func NewAllocationService(oracle ShardStoreOracle, settings Settings, weight WeightFunction, clock Clock) *AllocationService {
	return &AllocationService{
		deciders: []Decider{
			sameShardDecider{},
			filterDecider{},
			awarenessDecider{},
			diskThresholdDecider{},
			maxShardsPerNodeDecider{},
			throttlingDecider{},
			replicaAfterPrimaryDecider{},
			enableAllocationDecider{},
			maxRetryDecider{},
		},
		gateway:  newGatewayAllocator(oracle, 4096),
		weight:   weight,
		settings: settings,
		clock:    clock,
	}
}

func (s *AllocationService) newAllocation(cs ClusterState, ci ClusterInfo, debug bool) *RoutingAllocation {
	return newRoutingAllocation(cs, s.deciders, ci, s.settings, s.clock, debug)
}

// ApplyStartedShards moves every reported shard incarnation from
// INITIALIZING to STARTED (completing a relocation handshake if the
// incarnation is a relocation target), reconciles metadata, and — per the
// gateway-recovery open question resolved in favor of always rerouting —
// runs a full reroute pass immediately afterward so that newly freed
// recovery slots are put to use in the same call rather than waiting for
// the next unrelated event.
func (s *AllocationService) ApplyStartedShards(cs ClusterState, ci ClusterInfo, started []StartedShardEntry) (Result, error) {
	if len(started) == 0 {
		return Result{Changed: false, ClusterState: cs}, nil
	}
	var a = s.newAllocation(cs, ci, false)
	var startedIDs []ShardId

	for _, entry := range started {
		var h, ok = s.findByAllocation(a, entry.ShardId, entry.AllocationID)
		if !ok {
			log.WithFields(log.Fields{"shard": entry.ShardId, "node": entry.Node}).
				Debug("ignoring startedShard for unknown or already-applied allocation")
			continue
		}
		if _, err := a.Nodes.startShard(h); err != nil {
			return Result{}, wrapf(err, "applyStartedShards: %s", entry.ShardId)
		}
		s.gateway.invalidate(entry.ShardId)
		a.MarkChanged()
		startedIDs = append(startedIDs, entry.ShardId)
	}

	if len(startedIDs) > 0 {
		log.WithFields(log.Fields{"count": len(startedIDs), "shards": summarizeShardIDs(startedIDs)}).
			Info("applied started shards")
	}
	return s.reroute(a)
}

func (s *AllocationService) findByAllocation(a *RoutingAllocation, id ShardId, allocationID string) (shardHandle, bool) {
	for _, sr := range a.Nodes.ShardCopies(id) {
		if sr.AllocationID != nil && sr.AllocationID.ID == allocationID {
			return sr.handle, true
		}
	}
	return 0, false
}

// ApplyFailedShards fails every reported shard incarnation (cascading to
// INITIALIZING replicas and promoting a STARTED replica when a STARTED
// primary is among them), then runs a full reroute pass to replace what was
// lost.
func (s *AllocationService) ApplyFailedShards(cs ClusterState, ci ClusterInfo, failed []FailedShardEntry) (Result, error) {
	if len(failed) == 0 {
		return Result{Changed: false, ClusterState: cs}, nil
	}
	var a = s.newAllocation(cs, ci, false)
	var failedIDs []ShardId

	for _, entry := range failed {
		if err := s.applyFailedShard(a, entry); err != nil {
			return Result{}, err
		}
		failedIDs = append(failedIDs, entry.ShardId)
	}

	log.WithFields(log.Fields{"count": len(failedIDs), "shards": summarizeShardIDs(failedIDs)}).
		Warn("applied failed shards")
	return s.reroute(a)
}

// applyFailedShard fails a single reported incarnation, building the
// UnassignedInfo carried forward onto the resulting UNASSIGNED copy: the
// failure count is incremented from whatever the copy already carried (a
// shard failing for the third time in a row is not indistinguishable from
// one failing for the first).
func (s *AllocationService) applyFailedShard(a *RoutingAllocation, entry FailedShardEntry) error {
	var h, ok = s.findByAllocation(a, entry.ShardId, entry.AllocationID)
	if !ok {
		log.WithFields(log.Fields{"shard": entry.ShardId, "node": entry.Node}).
			Debug("ignoring failedShard for unknown or already-applied allocation")
		return nil
	}
	var sr, _ = a.Nodes.Get(h)
	var numFailed = 1
	if sr.UnassignedInfo != nil {
		numFailed = sr.UnassignedInfo.NumFailedAllocations + 1
	}

	var info = UnassignedInfo{
		Reason:               ReasonAllocationFailed,
		Message:              entry.Message,
		Cause:                entry.Cause,
		NumFailedAllocations: numFailed,
		UnassignedSinceNanos: a.NanoTime(),
		UnassignedSinceMillis: a.MilliTime(),
		LastAllocationStatus: NoAttempt,
	}
	var promoted, cascaded, err = a.Nodes.failShard(h, info)
	if err != nil {
		return wrapf(err, "applyFailedShard: %s", entry.ShardId)
	}
	s.gateway.invalidate(entry.ShardId)
	a.MarkChanged()

	if promoted != nil {
		log.WithFields(log.Fields{"shard": promoted.ShardId, "node": promoted.CurrentNodeID}).
			Info("promoted replica to primary after primary failure")
	}
	for _, c := range cascaded {
		log.WithFields(log.Fields{"shard": c.ShardId, "node": c.CurrentNodeID}).
			Info("cancelled initializing replica after primary failure")
	}
	return nil
}

// deassociateDeadNodes removes every node from the working RoutingNodes
// that is no longer present in the live node list, first failing every
// shard still assigned to it (spec.md §4.4, ordering mirrors
// AllocationService.java's deassociateDeadNodes: shards must be failed
// *before* the node is removed).
func (s *AllocationService) deassociateDeadNodes(a *RoutingAllocation) {
	var live = a.ClusterState.dataNodeSet()
	var dead []NodeID
	for _, id := range a.Nodes.NodeIDs() {
		if _, ok := live[id]; !ok {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		for _, sr := range a.Nodes.ShardsOnNode(id) {
			var delay, delayedInfo = s.delayInfo(a, sr)
			var info = UnassignedInfo{
				Reason:               ReasonNodeLeft,
				Message:              "node " + string(id) + " left the cluster",
				NumFailedAllocations: 0,
				UnassignedSinceNanos: a.NanoTime(),
				UnassignedSinceMillis: a.MilliTime(),
				Delayed:              delay,
				LastAllocationStatus: NoAttempt,
			}
			if delay {
				info = delayedInfo
			}
			if _, _, err := a.Nodes.failShard(sr.handle, info); err == nil {
				a.MarkChanged()
			}
		}
		a.Nodes.RemoveNode(id)
	}
	if len(dead) > 0 {
		log.WithFields(log.Fields{"nodes": dead}).Info("deassociated dead nodes")
	}
}

// delayInfo computes whether a replica losing its node should be delayed
// before reallocation, per the owning index's DelayedNodeLeftTimeout
// (spec.md §6). Primaries are never delayed: a missing primary always
// needs immediate promotion or reallocation.
func (s *AllocationService) delayInfo(a *RoutingAllocation, sr ShardRouting) (bool, UnassignedInfo) {
	if sr.Primary {
		return false, UnassignedInfo{}
	}
	var timeout = s.settings.DefaultDelayedNodeLeftTimeout
	if im, ok := a.ClusterState.MetaData.indexSafe(sr.ShardId.Index); ok && im.Settings.DelayedNodeLeftTimeout > 0 {
		timeout = im.Settings.DelayedNodeLeftTimeout
	}
	if timeout <= 0 {
		return false, UnassignedInfo{}
	}
	return true, UnassignedInfo{
		Reason:                ReasonNodeLeft,
		Message:               "node left, delaying reallocation for " + timeout.String(),
		UnassignedSinceNanos:  a.NanoTime(),
		UnassignedSinceMillis: a.MilliTime(),
		Delayed:               true,
		LastAllocationStatus:  NoAttempt,
	}
}

// removeDelayMarkers clears the Delayed flag on any unassigned replica
// whose delay window has elapsed, making it immediately eligible for
// reallocation by the balancer later in the same pass.
func (s *AllocationService) removeDelayMarkers(a *RoutingAllocation) {
	for i, sr := range a.Nodes.UnassignedShards() {
		if sr.UnassignedInfo == nil || !sr.UnassignedInfo.Delayed {
			continue
		}
		var timeout = s.settings.DefaultDelayedNodeLeftTimeout
		if im, ok := a.ClusterState.MetaData.indexSafe(sr.ShardId.Index); ok && im.Settings.DelayedNodeLeftTimeout > 0 {
			timeout = im.Settings.DelayedNodeLeftTimeout
		}
		var elapsed = time.Duration(a.NanoTime()-sr.UnassignedInfo.UnassignedSinceNanos) * time.Nanosecond
		if elapsed < timeout {
			continue
		}
		var info = *sr.UnassignedInfo
		info.Delayed = false
		a.Nodes.UpdateUnassignedInfo(i, info)
	}
}

// nextDelayNanos returns the smallest remaining delay among still-delayed
// unassigned shards, or -1 if none are delayed, so a caller running a
// periodic reroute loop knows how soon to check back in without busy
// polling.
func (s *AllocationService) nextDelayNanos(a *RoutingAllocation) int64 {
	var best int64 = -1
	for _, sr := range a.Nodes.UnassignedShards() {
		if sr.UnassignedInfo == nil || !sr.UnassignedInfo.Delayed {
			continue
		}
		var timeout = s.settings.DefaultDelayedNodeLeftTimeout
		if im, ok := a.ClusterState.MetaData.indexSafe(sr.ShardId.Index); ok && im.Settings.DelayedNodeLeftTimeout > 0 {
			timeout = im.Settings.DelayedNodeLeftTimeout
		}
		var remaining = int64(timeout) - (a.NanoTime() - sr.UnassignedInfo.UnassignedSinceNanos)
		if remaining < 0 {
			remaining = 0
		}
		if best == -1 || remaining < best {
			best = remaining
		}
	}
	return best
}

// Reroute runs a plain, non-command reroute pass: apply no new events,
// just re-derive placement from the current state. retryFailed clears the
// max-retry decider's veto for this call only. Callers typically invoke
// this periodically, or in response to a cluster-settings change.
func (s *AllocationService) Reroute(cs ClusterState, ci ClusterInfo, retryFailed, explain bool) (Result, error) {
	var a = s.newAllocation(cs, ci, explain)
	a.SetRetryFailed(retryFailed)
	a.Nodes.ShuffleUnassigned(rerouteRand())
	return s.reroute(a)
}

// RerouteWithCommands executes an ordered batch of operator commands, then
// runs the full reroute pass. Unlike the plain entry point, the unassigned
// queue is left in its natural (insertion) order: command execution must be
// deterministic and reproducible, not shuffled.
func (s *AllocationService) RerouteWithCommands(cs ClusterState, ci ClusterInfo, commands []AllocationCommand, explain bool) (Result, error) {
	var a = s.newAllocation(cs, ci, true)
	a.SetIgnoreDisable(true)
	for _, cmd := range commands {
		if err := cmd.Execute(a); err != nil {
			return Result{}, err
		}
	}
	return s.reroute(a)
}

// reroute is the private step-by-step core shared by every public entry
// point, in the fixed order AllocationService.java's private reroute(...)
// helper follows: dead nodes are deassociated first (so their shards are
// already back in the unassigned pool), then expired delay markers are
// cleared, then gateway recovery gets first attempt at fresh primaries,
// then the balancer places, moves and rebalances everything else.
func (s *AllocationService) reroute(a *RoutingAllocation) (Result, error) {
	allocRerouteTotal.Inc()
	var start = time.Now()
	defer func() { allocRerouteDurationSeconds.Observe(time.Since(start).Seconds()) }()
	var explain = a.Debug()

	s.deassociateDeadNodes(a)
	s.removeDelayMarkers(a)
	s.gateway.allocateUnassignedPrimaries(a, explain)
	newBalancer(a, s.weight).Balance(explain)

	if err := a.Nodes.assertInvariants(); err != nil {
		return Result{}, err
	}
	return s.buildResultAndLogHealthChange(a), nil
}

// buildResultAndLogHealthChange commits the working RoutingNodes into a new
// ClusterState if anything changed, reconciling metadata and logging a
// cluster health transition only when the status actually differs from the
// input state's (spec.md's gated health-transition logging, supplemented
// from the original's ClusterStateHealth-diff logging in reroute callers).
func (s *AllocationService) buildResultAndLogHealthChange(a *RoutingAllocation) Result {
	allocNumNodes.Set(float64(len(a.Nodes.NodeIDs())))
	allocNumUnassigned.Set(float64(a.Nodes.UnassignedLen()))

	if !a.Changed() {
		return Result{Changed: false, ClusterState: a.ClusterState, Explanations: a.Explanations()}
	}

	var newRT = a.Nodes.buildRoutingTable(a.ClusterState.RoutingTable.Version)
	var newMeta = reconcileMetaData(a.ClusterState.MetaData, a.ClusterState.RoutingTable, newRT)
	var newCS = ClusterState{
		ClusterName:  a.ClusterState.ClusterName,
		Version:      a.ClusterState.Version,
		Nodes:        a.ClusterState.Nodes,
		MetaData:     newMeta,
		RoutingTable: newRT,
	}

	var oldHealth = computeClusterHealth(a.ClusterState.RoutingTable)
	var newHealth = computeClusterHealth(newRT)
	if newHealth.Status != oldHealth.Status {
		log.WithFields(log.Fields{
			"from": oldHealth.Status.String(),
			"to":   newHealth.Status.String(),
		}).Info("cluster health changed")
	}
	allocNumShards.Set(float64(len(newRT.AllShardIds())))

	return Result{Changed: true, ClusterState: newCS, Explanations: a.Explanations()}
}
