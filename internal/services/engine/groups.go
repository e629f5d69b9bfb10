package engine

// groupState tracks the runtime side of one group: its current master
// value and whether the master moved since the previous tick.
type groupState struct {
	cfg        GroupConfig
	master     byte
	lastMaster byte
	effective  byte
	changed    bool
}

// groupRuntime owns all group states and resolves propagation per tick.
// Config load rejects member cycles, so groups can be walked in a fixed
// topological order with driver groups before the groups they target.
type groupRuntime struct {
	groups  map[int]*groupState
	ordered []int // topological: drivers first
}

func newGroupRuntime(configs []GroupConfig) *groupRuntime {
	rt := &groupRuntime{groups: make(map[int]*groupState, len(configs))}
	for _, cfg := range configs {
		rt.groups[cfg.ID] = &groupState{
			cfg:        cfg,
			master:     cfg.MasterValue,
			lastMaster: cfg.MasterValue,
		}
	}
	rt.ordered = topoOrder(configs)
	return rt
}

// topoOrder sorts group ids so every driver precedes its targets. The
// input graph is a DAG; validation rejected cycles at load.
func topoOrder(configs []GroupConfig) []int {
	adjacency := make(map[int][]int, len(configs))
	for _, cfg := range configs {
		for _, m := range cfg.Members {
			if m.VirtualTarget == TargetGroup {
				adjacency[cfg.ID] = append(adjacency[cfg.ID], m.TargetGroupID)
			}
		}
	}

	visited := make(map[int]bool, len(configs))
	var order []int
	var visit func(id int)
	visit = func(id int) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, next := range adjacency[id] {
			visit(next)
		}
		order = append(order, id)
	}
	for _, cfg := range configs {
		visit(cfg.ID)
	}
	// Post-order puts targets first; reverse for drivers-first.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// setMaster records a direct master write (from a client or scene).
func (rt *groupRuntime) setMaster(groupID int, value byte) bool {
	g, ok := rt.groups[groupID]
	if !ok {
		return false
	}
	g.master = value
	return true
}

// masterValue returns a group's current master, or 0.
func (rt *groupRuntime) masterValue(groupID int) byte {
	if g, ok := rt.groups[groupID]; ok {
		return g.master
	}
	return 0
}

// refreshMasters pulls channel-located masters from the operator layer
// and marks which groups moved since the previous tick.
func (rt *groupRuntime) refreshMasters(universes map[int]*universeState) {
	for _, g := range rt.groups {
		if g.cfg.MasterUniverse != nil && g.cfg.MasterChannel != nil {
			if u, ok := universes[*g.cfg.MasterUniverse]; ok {
				ch := *g.cfg.MasterChannel
				if ch >= 1 && ch <= 512 {
					g.master = u.operator[ch-1]
				}
			}
		}
		g.changed = g.master != g.lastMaster
		g.effective = g.master
	}
}

// groupEffects is what group propagation feeds back into the pipeline.
type groupEffects struct {
	// Per-tick channel overrides keyed by universe then channel, HTP
	// merged across groups.
	overrides map[int]map[int]groupValue
	// Latched writes applied to the operator layer after the tick.
	latches []latchWrite
	// Per-tick virtual master overrides, HTP across groups.
	globalMaster   *byte
	universeMaster map[int]byte
	// Write-through master values from latching groups.
	globalMasterLatch   *byte
	universeMasterLatch map[int]byte
}

type groupValue struct {
	value   byte
	groupID int
}

type latchWrite struct {
	universe int
	channel  int
	value    byte
	groupID  int
}

// resolve computes this tick's member effects for every enabled group.
// Group-to-group edges run first in topological order, so a chained
// master sees its driver's contribution within the same tick.
func (rt *groupRuntime) resolve(universes map[int]*universeState) groupEffects {
	effects := groupEffects{
		overrides:           make(map[int]map[int]groupValue),
		universeMaster:      make(map[int]byte),
		universeMasterLatch: make(map[int]byte),
	}

	for _, id := range rt.ordered {
		g := rt.groups[id]
		if !g.cfg.Enabled {
			continue
		}
		for _, m := range g.cfg.Members {
			if m.VirtualTarget != TargetGroup {
				continue
			}
			target, ok := rt.groups[m.TargetGroupID]
			if !ok || !target.cfg.Enabled {
				continue
			}
			switch g.cfg.Mode {
			case GroupSets:
				target.effective = g.effective
				target.changed = target.changed || g.changed
			case GroupLatches:
				if g.changed {
					target.master = g.effective
					target.effective = g.effective
					target.changed = true
				}
			default: // master_scales
				target.effective = byte(uint16(target.effective) * uint16(g.effective) / 255)
				target.changed = target.changed || g.changed
			}
		}
	}

	for _, id := range rt.ordered {
		g := rt.groups[id]
		if !g.cfg.Enabled {
			continue
		}
		for _, m := range g.cfg.Members {
			switch m.VirtualTarget {
			case TargetGlobalMaster:
				if g.cfg.Mode == GroupLatches {
					if g.changed {
						v := g.effective
						effects.globalMasterLatch = &v
					}
				} else if effects.globalMaster == nil || g.effective > *effects.globalMaster {
					v := g.effective
					effects.globalMaster = &v
				}
			case TargetUniverseMaster:
				if g.cfg.Mode == GroupLatches {
					if g.changed {
						effects.universeMasterLatch[m.UniverseID] = g.effective
					}
				} else if cur, ok := effects.universeMaster[m.UniverseID]; !ok || g.effective > cur {
					effects.universeMaster[m.UniverseID] = g.effective
				}
			case TargetGroup:
				// Handled in the edge pass above.
			default:
				rt.applyMember(&effects, g, universes, m)
			}
		}
	}

	rt.latchMasters()
	return effects
}

// applyMember computes one concrete channel member's contribution.
// Scaling runs in 16-bit before clamping back to a byte.
func (rt *groupRuntime) applyMember(effects *groupEffects, g *groupState, universes map[int]*universeState, m MemberConfig) {
	u, ok := universes[m.UniverseID]
	if !ok || m.Channel < 1 || m.Channel > 512 {
		return
	}

	var value byte
	switch g.cfg.Mode {
	case GroupSets:
		value = g.effective
	case GroupLatches:
		if !g.changed {
			return
		}
		effects.latches = append(effects.latches, latchWrite{
			universe: m.UniverseID,
			channel:  m.Channel,
			value:    g.effective,
			groupID:  g.cfg.ID,
		})
		return
	default: // master_scales
		operator := u.operator[m.Channel-1]
		value = byte(uint16(operator) * uint16(g.effective) / 255)
	}

	perUniverse := effects.overrides[m.UniverseID]
	if perUniverse == nil {
		perUniverse = make(map[int]groupValue)
		effects.overrides[m.UniverseID] = perUniverse
	}
	if existing, ok := perUniverse[m.Channel]; !ok || value > existing.value {
		perUniverse[m.Channel] = groupValue{value: value, groupID: g.cfg.ID}
	}
}

// latchMasters closes the tick: every master's current value becomes
// the reference for next tick's change detection.
func (rt *groupRuntime) latchMasters() {
	for _, g := range rt.groups {
		g.lastMaster = g.master
	}
}
