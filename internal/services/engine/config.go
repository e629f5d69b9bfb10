package engine

import (
	"fmt"
)

// Passthrough modes control how external input reaches the output.
const (
	PassthroughOff          = "off"           // input ignored
	PassthroughViewOnly     = "view_only"     // input visible to clients, not merged
	PassthroughFadersOutput = "faders_output" // input merged with operator faders
	PassthroughOutputOnly   = "output_only"   // input replaces operator faders
)

// Merge modes for faders_output passthrough.
const (
	MergeHTP = "htp" // highest value wins
	MergeLTP = "ltp" // latest writer wins
)

// Group propagation modes.
const (
	GroupScales  = "master_scales"
	GroupSets    = "master_sets"
	GroupLatches = "master_latches"
)

// Virtual member targets.
const (
	TargetGlobalMaster   = "global_master"
	TargetUniverseMaster = "universe_master"
	TargetGroup          = "group"
)

// Mapping destination kinds.
const (
	DstChannel        = "channel"
	DstGlobalMaster   = "global_master"
	DstUniverseMaster = "universe_master"
)

// UniverseConfig is the engine's view of one configured universe.
type UniverseConfig struct {
	ID              int
	Label           string
	PassthroughMode string
	MergeMode       string
}

// MemberConfig is one group member: a concrete channel or a virtual
// target (global master, a universe master, or another group's master).
type MemberConfig struct {
	UniverseID    int
	Channel       int
	VirtualTarget string
	TargetGroupID int
}

// GroupConfig is the engine's view of one group.
type GroupConfig struct {
	ID             int
	Name           string
	Mode           string
	GridID         int
	Enabled        bool
	MasterUniverse *int // nil with nil channel = synthetic master
	MasterChannel  *int
	MasterValue    byte
	Members        []MemberConfig
}

// MappingRuleConfig routes one source channel to a destination.
type MappingRuleConfig struct {
	SrcUniverse int
	SrcChannel  int
	DstKind     string
	DstUniverse int
	DstChannel  int
}

// MappingConfig is the active remap table, or disabled when nil rules.
type MappingConfig struct {
	Enabled          bool
	UnmappedBehavior string // passthrough, ignore
	Rules            []MappingRuleConfig
}

// Snapshot is the immutable configuration the engine runs against. The
// HTTP layer builds a new one off-tick and swaps it in atomically.
type Snapshot struct {
	Universes []UniverseConfig
	Groups    []GroupConfig
	Mapping   *MappingConfig
}

// Validate rejects configuration the runtime must never see: duplicate
// universe ids, group member cycles, and out-of-range mapping rules.
func (s *Snapshot) Validate() error {
	seen := make(map[int]bool, len(s.Universes))
	for _, u := range s.Universes {
		if seen[u.ID] {
			return fmt.Errorf("duplicate universe id %d", u.ID)
		}
		seen[u.ID] = true
	}

	if err := validateGroupGraph(s.Groups); err != nil {
		return err
	}

	if s.Mapping != nil {
		for _, rule := range s.Mapping.Rules {
			if rule.SrcChannel < 1 || rule.SrcChannel > 512 {
				return fmt.Errorf("mapping rule source channel %d out of range", rule.SrcChannel)
			}
			if rule.DstKind == DstChannel && (rule.DstChannel < 1 || rule.DstChannel > 512) {
				return fmt.Errorf("mapping rule destination channel %d out of range", rule.DstChannel)
			}
		}
	}
	return nil
}

// validateGroupGraph runs a DFS over group-to-group member edges and
// rejects cycles. Runtime propagation assumes a DAG and never recurses
// into a visited group twice.
func validateGroupGraph(groups []GroupConfig) error {
	adjacency := make(map[int][]int, len(groups))
	for _, g := range groups {
		for _, m := range g.Members {
			if m.VirtualTarget == TargetGroup {
				adjacency[g.ID] = append(adjacency[g.ID], m.TargetGroupID)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[int]int, len(groups))

	var visit func(id int) error
	visit = func(id int) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("group member cycle involving group %d", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, next := range adjacency[id] {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, g := range groups {
		if err := visit(g.ID); err != nil {
			return err
		}
	}
	return nil
}
