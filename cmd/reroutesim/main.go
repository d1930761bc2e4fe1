// Command reroutesim loads a small YAML description of a cluster (nodes,
// indices, settings) and prints the routing table that a fresh reroute
// pass over the allocator package would produce, along with per-shard
// placement explanations. It exists to let an operator dry-run a topology
// or a settings change offline, the same way gazctl lets an operator
// preview a journal or shard edit before applying it.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	flags "github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"go.heliograph.dev/allocation/allocator"
)

// emptyStoreOracle reports every shard as having no known on-disk copy,
// appropriate for simulating a cluster with no prior recovery history.
type emptyStoreOracle struct{}

func (emptyStoreOracle) StoreInfo(allocator.NodeID, allocator.ShardId) (allocator.ShardStoreInfo, bool) {
	return allocator.ShardStoreInfo{}, false
}

// simulateCmd is the "simulate" subcommand: load a scenario, run one
// reroute pass, print the result.
type simulateCmd struct {
	ScenarioPath string `short:"f" long:"file" description:"path to a YAML scenario file" required:"true"`
	Explain      bool   `long:"explain" description:"print per-shard placement explanations"`
	RetryFailed  bool   `long:"retry-failed" description:"clear the max-retry veto for this pass"`
}

func (c *simulateCmd) Execute(args []string) error {
	var s, err = loadScenario(c.ScenarioPath)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}

	var svc = allocator.NewAllocationService(
		emptyStoreOracle{},
		s.buildSettings(),
		allocator.DefaultWeightFunction(),
		fixedClock,
	)

	var cs = s.buildClusterState()
	var ci = s.buildClusterInfo()

	var result, rerouteErr = svc.Reroute(cs, ci, c.RetryFailed, c.Explain)
	if rerouteErr != nil {
		return fmt.Errorf("reroute: %w", rerouteErr)
	}

	printRoutingTable(result.ClusterState)
	if c.Explain {
		printExplanations(result.Explanations)
	}
	return nil
}

func fixedClock() (int64, int64) { return 0, 0 }

func printRoutingTable(cs allocator.ClusterState) {
	var table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"INDEX", "SHARD", "ROLE", "STATE", "NODE", "SIZE"})

	for _, id := range cs.RoutingTable.AllShardIds() {
		var group, _ = cs.RoutingTable.ShardRoutingTable(id)
		for _, s := range group.Shards {
			var role = "replica"
			if s.Primary {
				role = "primary"
			}
			var node = "-"
			if s.CurrentNodeID != "" {
				node = string(s.CurrentNodeID)
			}
			table.Append([]string{
				id.Index.Name,
				fmt.Sprintf("%d", id.Number),
				role,
				s.State.String(),
				node,
				humanize.Bytes(uint64(s.ExpectedShardSize)),
			})
		}
	}
	table.Render()

	var health = fmt.Sprintf("cluster: %s  version: %d", cs.ClusterName, cs.Version)
	fmt.Fprintln(os.Stdout, health)
}

func printExplanations(explanations []allocator.RoutingExplanation) {
	if len(explanations) == 0 {
		return
	}
	var table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"SHARD", "PRIMARY", "STATUS"})
	for _, e := range explanations {
		table.Append([]string{e.ShardId.String(), fmt.Sprintf("%v", e.Primary), e.AllocationStatus.String()})
	}
	table.Render()
}

func main() {
	var parser = flags.NewParser(nil, flags.Default)
	parser.LongDescription = `reroutesim dry-runs the shard allocation core against a YAML cluster description.

	Write a scenario file describing nodes, indices and settings, then run
	'reroutesim simulate -f scenario.yaml' to see the routing table a fresh
	reroute pass would produce.`

	if _, err := parser.AddCommand("simulate", "Dry-run a reroute pass over a scenario file", "", &simulateCmd{}); err != nil {
		log.WithError(err).Fatal("could not add simulate subcommand")
	}

	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
