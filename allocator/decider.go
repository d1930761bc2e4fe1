package allocator

import "strings"

// DecisionType is the three-valued outcome of a single Decider check.
type DecisionType int

const (
	// Yes means the decider has no objection.
	Yes DecisionType = iota
	// Throttled means the operation should be deferred, not rejected; a
	// later pass may re-attempt it once the throttling condition clears.
	Throttled
	// No means the operation is forbidden outright.
	No
)

func (d DecisionType) String() string {
	switch d {
	case Yes:
		return "YES"
	case Throttled:
		return "THROTTLED"
	case No:
		return "NO"
	default:
		return "UNKNOWN"
	}
}

// Decision is one Decider's verdict, carrying a human-readable explanation
// for operator-facing /explain output.
type Decision struct {
	Type    DecisionType
	Decider string
	Reason  string
}

func yes(decider, reason string) Decision    { return Decision{Yes, decider, reason} }
func no(decider, reason string) Decision     { return Decision{No, decider, reason} }
func throttle(decider, reason string) Decision { return Decision{Throttled, decider, reason} }

// Decider is a pure, stateless constraint check consulted by the balancer
// and by command execution before any shard placement is committed. Each
// method must be side-effect free: deciders observe a RoutingAllocation,
// they never mutate it.
type Decider interface {
	Name() string

	// CanAllocate decides whether shard may be newly placed (from
	// UNASSIGNED, or as a relocation target) on node.
	CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision

	// CanRemain decides whether shard, already on node, is still legal
	// there. A NO here causes the balancer to move the shard elsewhere.
	CanRemain(shard ShardRouting, node Node, a *RoutingAllocation) Decision

	// CanRebalance decides whether a STARTED shard is eligible to be
	// moved purely for balance, independent of any particular target.
	CanRebalance(shard ShardRouting, a *RoutingAllocation) Decision

	// CanForceAllocatePrimary decides whether an unassigned primary may
	// be force-allocated to node even though normal allocation denied it
	// (used by the allocate_stale_primary / allocate_empty_primary
	// commands, never by the automatic balancer).
	CanForceAllocatePrimary(shard ShardRouting, node Node, a *RoutingAllocation) Decision
}

// deciderChain aggregates a fixed, ordered list of Deciders with ES's
// classic short-circuiting rule: the first NO wins outright; otherwise the
// worst of THROTTLED/YES wins. In debug mode every decider runs regardless,
// so the caller gets a full explanation rather than just the first veto.
type deciderChain struct {
	deciders []Decider
	debug    bool
}

func newDeciderChain(deciders []Decider, debug bool) *deciderChain {
	return &deciderChain{deciders: deciders, debug: debug}
}

// aggregate runs fn against every decider in order, applying the
// NO > THROTTLED > YES precedence. In non-debug mode it returns as soon as a
// NO is seen; otherwise all votes (and their reasons, joined for
// diagnostics) are collected into the returned Decision's Reason.
func (c *deciderChain) aggregate(fn func(Decider) Decision) Decision {
	var verdict = Yes
	var winningReason = "no objections"
	var allReasons []string

	for _, d := range c.deciders {
		var dec = fn(d)
		allReasons = append(allReasons, d.Name()+": "+dec.Type.String()+" ("+dec.Reason+")")

		switch {
		case dec.Type == No:
			verdict = No
			winningReason = dec.Reason
			if !c.debug {
				return Decision{No, d.Name(), winningReason}
			}
		case dec.Type == Throttled && verdict != No:
			verdict = Throttled
			winningReason = dec.Reason
		}
	}
	if c.debug {
		return Decision{verdict, "chain", strings.Join(allReasons, "; ")}
	}
	return Decision{verdict, "chain", winningReason}
}

func (c *deciderChain) CanAllocate(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return c.aggregate(func(d Decider) Decision { return d.CanAllocate(shard, node, a) })
}

func (c *deciderChain) CanRemain(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return c.aggregate(func(d Decider) Decision { return d.CanRemain(shard, node, a) })
}

func (c *deciderChain) CanRebalance(shard ShardRouting, a *RoutingAllocation) Decision {
	return c.aggregate(func(d Decider) Decision { return d.CanRebalance(shard, a) })
}

func (c *deciderChain) CanForceAllocatePrimary(shard ShardRouting, node Node, a *RoutingAllocation) Decision {
	return c.aggregate(func(d Decider) Decision { return d.CanForceAllocatePrimary(shard, node, a) })
}
