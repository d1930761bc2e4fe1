package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"go.heliograph.dev/allocation/allocator"
)

// scenario is the on-disk description of a cluster to reroute: a small,
// human-editable stand-in for the cluster-state snapshots this tool would
// receive from a real master in production. Grounded on the teacher's
// gazctl journals/shards "edit" commands, which round-trip a YAML tree
// through yaml.v2 rather than hand-rolling a flag per field.
type scenario struct {
	ClusterName string          `yaml:"cluster_name"`
	Nodes       []scenarioNode  `yaml:"nodes"`
	Indices     []scenarioIndex `yaml:"indices"`
	Settings    scenarioSettings `yaml:"settings"`
}

type scenarioNode struct {
	ID         string            `yaml:"id"`
	Zone       string            `yaml:"zone"`
	Data       bool              `yaml:"data"`
	Attributes map[string]string `yaml:"attributes"`
	DiskUsedPct float64          `yaml:"disk_used_pct"`
}

type scenarioIndex struct {
	Name             string `yaml:"name"`
	UUID             string `yaml:"uuid"`
	NumberOfShards   int    `yaml:"number_of_shards"`
	NumberOfReplicas int    `yaml:"number_of_replicas"`
	DelaySeconds     int    `yaml:"delayed_node_left_timeout_seconds"`
}

type scenarioSettings struct {
	EnableAllocation string  `yaml:"enable_allocation"`
	DiskWatermarkLow  float64 `yaml:"disk_watermark_low"`
	DiskWatermarkHigh float64 `yaml:"disk_watermark_high"`
	DiskWatermarkFloodStage float64 `yaml:"disk_watermark_flood_stage"`
	MaxShardsPerNode  int     `yaml:"max_shards_per_node"`
	MaxRetries        int     `yaml:"max_retries"`
	AwarenessAttributes []string `yaml:"awareness_attributes"`
}

func loadScenario(path string) (*scenario, error) {
	var b, err = os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s scenario
	if err := yaml.UnmarshalStrict(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// buildClusterState renders the scenario into an allocator.ClusterState
// with every shard freshly UNASSIGNED, and a matching allocator.Settings /
// allocator.ClusterInfo derived from the same file.
func (s *scenario) buildClusterState() allocator.ClusterState {
	var nodes []allocator.Node
	for _, n := range s.Nodes {
		var attrs = map[string]string{}
		for k, v := range n.Attributes {
			attrs[k] = v
		}
		if n.Zone != "" {
			attrs["zone"] = n.Zone
		}
		nodes = append(nodes, allocator.Node{
			ID:         allocator.NodeID(n.ID),
			Roles:      allocator.NodeRoles{Data: n.Data},
			Zone:       n.Zone,
			Attributes: attrs,
		})
	}

	var meta = allocator.MetaData{Indices: map[string]allocator.IndexMetaData{}}
	var routing = allocator.RoutingTable{Version: 1, Indices: map[string]allocator.IndexRoutingTable{}}

	for _, idx := range s.Indices {
		var index = allocator.Index{Name: idx.Name, UUID: idx.UUID}
		var im = allocator.IndexMetaData{
			Index: index,
			Settings: allocator.IndexSettings{
				NumberOfShards:         idx.NumberOfShards,
				NumberOfReplicas:       idx.NumberOfReplicas,
				DelayedNodeLeftTimeout: time.Duration(idx.DelaySeconds) * time.Second,
			},
			ActiveAllocationIDs: map[int][]string{},
			PrimaryTerms:        map[int]int64{},
		}
		var irt = allocator.IndexRoutingTable{Index: index, Shards: map[int]allocator.IndexShardRoutingTable{}}

		for n := 0; n < idx.NumberOfShards; n++ {
			var shardId = allocator.ShardId{Index: index, Number: n}
			im.PrimaryTerms[n] = 1

			var copies = []allocator.ShardRouting{{ShardId: shardId, Primary: true, State: allocator.Unassigned}}
			for r := 0; r < idx.NumberOfReplicas; r++ {
				copies = append(copies, allocator.ShardRouting{ShardId: shardId, Primary: false, State: allocator.Unassigned})
			}
			irt.Shards[n] = allocator.IndexShardRoutingTable{ShardId: shardId, Shards: copies}
		}

		meta.Indices[idx.Name] = im
		routing.Indices[idx.Name] = irt
	}

	return allocator.ClusterState{
		ClusterName:  s.ClusterName,
		Version:      1,
		Nodes:        nodes,
		MetaData:     meta,
		RoutingTable: routing,
	}
}

func (s *scenario) buildSettings() allocator.Settings {
	var out = allocator.DefaultSettings()
	switch s.Settings.EnableAllocation {
	case "primaries":
		out.EnableAllocationMode = allocator.EnablePrimaries
	case "none":
		out.EnableAllocationMode = allocator.EnableNone
	}
	if s.Settings.DiskWatermarkLow > 0 {
		out.DiskWatermarkLow = s.Settings.DiskWatermarkLow
	}
	if s.Settings.DiskWatermarkHigh > 0 {
		out.DiskWatermarkHigh = s.Settings.DiskWatermarkHigh
	}
	if s.Settings.DiskWatermarkFloodStage > 0 {
		out.DiskWatermarkFloodStage = s.Settings.DiskWatermarkFloodStage
	}
	if s.Settings.MaxShardsPerNode > 0 {
		out.MaxShardsPerNode = s.Settings.MaxShardsPerNode
	}
	if s.Settings.MaxRetries > 0 {
		out.MaxRetries = s.Settings.MaxRetries
	}
	out.AwarenessAttributes = s.Settings.AwarenessAttributes
	return out
}

func (s *scenario) buildClusterInfo() allocator.ClusterInfo {
	var disk = map[allocator.NodeID]allocator.DiskUsage{}
	for _, n := range s.Nodes {
		if n.DiskUsedPct > 0 {
			const total = int64(1 << 40)
			disk[allocator.NodeID(n.ID)] = allocator.DiskUsage{
				TotalBytes: total,
				FreeBytes:  total - int64(float64(total)*n.DiskUsedPct/100),
			}
		}
	}
	return allocator.StaticClusterInfo{Disk: disk}
}
