// Package engine owns the authoritative DMX channel state and runs the
// processing pipeline tick. All mutations flow through a single command
// queue drained at tick boundaries; the engine goroutine is the only
// writer of the channel arrays, which gives strict linearizability
// without locks on the hot arrays. Readers get copies of snapshots
// published after each tick.
package engine

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/dmxx/dmxx-go/internal/metrics"
	"github.com/dmxx/dmxx-go/internal/protocol"
)

const (
	// DefaultFrameRateHz is the nominal DMX512 refresh rate.
	DefaultFrameRateHz = 44
	// MinFrameRateHz is the configurable floor.
	MinFrameRateHz = 20

	// diffBatchThreshold is the per-universe change count above which a
	// full values snapshot replaces individual channel_change events.
	diffBatchThreshold = 32

	commandQueueSize = 1024
)

// Publisher receives engine-produced events for fan-out to clients.
type Publisher func(event protocol.Event)

// OutputFunc transmits one universe's post-pipeline frame.
type OutputFunc func(universeID int, sequence byte, values [512]byte)

// Config holds engine configuration.
type Config struct {
	FrameRateHz int
}

// Engine is the universe state store plus the pipeline tick.
type Engine struct {
	mu sync.RWMutex

	// Owned by the engine goroutine after Start.
	universes map[int]*universeState
	groups    *groupRuntime
	config    *Snapshot

	globalMaster byte
	blackout     bool
	inputBypass  bool

	highlight struct {
		active   bool
		dimLevel byte
		channels map[[2]int]bool
	}

	// Published after each tick; guarded by mu.
	snapshots             map[int]UniverseSnapshot
	publishedGlobalMaster byte
	publishedBlackout     bool
	publishedInputBypass  bool
	publishedHighlight    protocol.HighlightData
	publishedGroupMasters map[int]byte
	publishedGroupGrids   map[int]int

	commands chan command
	clients  *clientInterner

	publish Publisher
	output  OutputFunc

	frameRateHz int
	writeSeq    uint64

	stopChan chan struct{}
	doneChan chan struct{}
	running  bool
}

type command struct {
	name  string
	apply func(e *Engine)
}

// NewEngine creates an engine from a validated configuration snapshot.
func NewEngine(cfg Config, snap *Snapshot) (*Engine, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	rate := cfg.FrameRateHz
	if rate < MinFrameRateHz {
		rate = DefaultFrameRateHz
	}
	e := &Engine{
		universes:           make(map[int]*universeState),
		groups:              newGroupRuntime(snap.Groups),
		config:              snap,
		globalMaster:        255,
		snapshots:           make(map[int]UniverseSnapshot),
		publishedGroupGrids: groupGrids(snap.Groups),
		commands:            make(chan command, commandQueueSize),
		clients:             newClientInterner(),
		frameRateHz:         rate,
		stopChan:            make(chan struct{}),
		doneChan:            make(chan struct{}),
	}
	e.highlight.channels = make(map[[2]int]bool)
	for _, u := range snap.Universes {
		e.universes[u.ID] = newUniverseState(u)
	}
	return e, nil
}

// SetPublisher wires the hub broadcast callback. Must be called before
// Start.
func (e *Engine) SetPublisher(p Publisher) { e.publish = p }

// SetOutput wires the frame transmitter. Must be called before Start.
func (e *Engine) SetOutput(o OutputFunc) { e.output = o }

// Start launches the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	metrics.FrameRate.Set(float64(e.frameRateHz))
	log.Printf("🎛️  Engine started: %d universes, %d groups, %dHz tick",
		len(e.universes), len(e.groups.groups), e.frameRateHz)
	go e.tickLoop()
}

// Stop terminates the tick loop and waits for it to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopChan)
	<-e.doneChan
	log.Printf("🎛️  Engine stopped")
}

// enqueue submits a command without blocking. On overflow the command
// is dropped and counted; back-pressuring producers would stall input
// receivers and client read loops.
func (e *Engine) enqueue(name string, apply func(e *Engine)) {
	select {
	case e.commands <- command{name: name, apply: apply}:
	default:
		metrics.InputPacketsDropped.WithLabelValues("engine", "queue_full").Inc()
		log.Printf("⚠️  Engine command queue full, dropping %s", name)
	}
}

// --- Command API (all enqueue for the next tick) ---

// SetChannel writes one operator-layer value.
func (e *Engine) SetChannel(universeID, channel int, value byte, src Source) {
	if channel < 1 || channel > 512 {
		return
	}
	e.enqueue(protocol.CmdSetChannel, func(e *Engine) {
		if u, ok := e.universes[universeID]; ok {
			e.writeSeq++
			u.operator[channel-1] = value
			u.operatorSrc[channel-1] = src
			u.operatorSeq[channel-1] = e.writeSeq
		}
	})
}

// SetChannels writes a batch of operator-layer values.
func (e *Engine) SetChannels(universeID int, values map[int]byte, src Source) {
	e.enqueue(protocol.CmdSetChannels, func(e *Engine) {
		u, ok := e.universes[universeID]
		if !ok {
			return
		}
		e.writeSeq++
		for channel, value := range values {
			if channel < 1 || channel > 512 {
				continue
			}
			u.operator[channel-1] = value
			u.operatorSrc[channel-1] = src
			u.operatorSeq[channel-1] = e.writeSeq
		}
	})
}

// SetGlobalMaster sets the global grandmaster.
func (e *Engine) SetGlobalMaster(value byte, src Source) {
	e.enqueue(protocol.CmdSetGlobalGrandmaster, func(e *Engine) {
		e.globalMaster = value
		e.emitGrandmaster(nil, int(value), src)
	})
}

// SetUniverseMaster sets one universe's grandmaster.
func (e *Engine) SetUniverseMaster(universeID int, value byte, src Source) {
	e.enqueue(protocol.CmdSetUniverseGrandmaster, func(e *Engine) {
		if u, ok := e.universes[universeID]; ok {
			u.master = value
			id := universeID
			e.emitGrandmaster(&id, int(value), src)
		}
	})
}

// SetGroupMaster sets a group's master value directly.
func (e *Engine) SetGroupMaster(groupID int, value byte, src Source) {
	e.enqueue(protocol.CmdSetGroupValue, func(e *Engine) {
		if e.groups.setMaster(groupID, value) {
			e.emit(protocol.Event{Type: protocol.EventGroupValueChanged, Data: protocol.GroupValueData{
				GroupID: groupID,
				Value:   int(value),
				Source:  e.SourceString(src),
			}})
		}
	})
}

// Park locks a channel to a value until unparked.
func (e *Engine) Park(universeID, channel int, value byte) {
	if channel < 1 || channel > 512 {
		return
	}
	e.enqueue(protocol.CmdPark, func(e *Engine) {
		if u, ok := e.universes[universeID]; ok {
			u.parks[channel] = value
			e.emitParkUpdate()
		}
	})
}

// Unpark releases a parked channel.
func (e *Engine) Unpark(universeID, channel int) {
	e.enqueue(protocol.CmdUnpark, func(e *Engine) {
		if u, ok := e.universes[universeID]; ok {
			delete(u.parks, channel)
			e.emitParkUpdate()
		}
	})
}

// SetHighlight replaces the highlight state. channels are (universe,
// channel) pairs kept at their computed value; everything else clamps
// to dimLevel while active.
func (e *Engine) SetHighlight(active bool, dimLevel byte, channels [][2]int) {
	e.enqueue(protocol.CmdHighlightStart, func(e *Engine) {
		e.highlight.active = active
		e.highlight.dimLevel = dimLevel
		e.highlight.channels = make(map[[2]int]bool, len(channels))
		for _, ch := range channels {
			e.highlight.channels[ch] = true
		}
		e.emit(protocol.Event{Type: protocol.EventHighlightUpdate, Data: protocol.HighlightData{
			Active:   active,
			DimLevel: int(dimLevel),
			Channels: channels,
		}})
	})
}

// SetBlackout toggles blackout. Parked channels keep their value.
func (e *Engine) SetBlackout(active bool) {
	e.enqueue("set_blackout", func(e *Engine) {
		e.blackout = active
		e.emit(protocol.Event{Type: protocol.EventBlackout, Data: protocol.BoolData{Active: active}})
	})
}

// SetInputBypass toggles zeroing of the input-merged layer.
func (e *Engine) SetInputBypass(active bool) {
	e.enqueue(protocol.CmdSetInputBypass, func(e *Engine) {
		e.inputBypass = active
		e.emit(protocol.Event{Type: protocol.EventInputBypassChanged, Data: protocol.BoolData{Active: active}})
	})
}

// ApplyInput routes a received frame through the active mapping table
// into the input layer. Called from receiver goroutines.
func (e *Engine) ApplyInput(frame InputFrame) {
	e.enqueue("input_frame", func(e *Engine) {
		writes := ApplyMapping(frame, e.config.Mapping)
		e.writeSeq++
		for _, w := range writes {
			switch w.Kind {
			case DstGlobalMaster:
				e.globalMaster = w.Value
			case DstUniverseMaster:
				if u, ok := e.universes[w.Universe]; ok {
					u.master = w.Value
				}
			default:
				if u, ok := e.universes[w.Universe]; ok && w.Channel >= 1 && w.Channel <= 512 {
					u.input[w.Channel-1] = w.Value
					u.inputSeq[w.Channel-1] = e.writeSeq
				}
			}
		}
	})
}

// UpdateConfig swaps in a new configuration snapshot. Invalid snapshots
// are rejected and the previous one stays active.
func (e *Engine) UpdateConfig(snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("config rejected: %w", err)
	}
	e.enqueue("update_config", func(e *Engine) {
		e.config = snap
		e.groups = newGroupRuntime(snap.Groups)
		e.mu.Lock()
		e.publishedGroupGrids = groupGrids(snap.Groups)
		e.mu.Unlock()
		seen := make(map[int]bool, len(snap.Universes))
		for _, cfg := range snap.Universes {
			seen[cfg.ID] = true
			if u, ok := e.universes[cfg.ID]; ok {
				u.cfg = cfg
			} else {
				e.universes[cfg.ID] = newUniverseState(cfg)
			}
		}
		for id := range e.universes {
			if !seen[id] {
				delete(e.universes, id)
			}
		}
	})
	return nil
}

// LoadParks seeds parked channels from persistence at startup.
func (e *Engine) LoadParks(parks []protocol.ParkEntry) {
	e.enqueue("load_parks", func(e *Engine) {
		for _, p := range parks {
			if u, ok := e.universes[p.UniverseID]; ok && p.Channel >= 1 && p.Channel <= 512 {
				u.parks[p.Channel] = byte(p.Value)
			}
		}
	})
}

// --- Read API (safe from any goroutine) ---

// Snapshot returns the last published state of one universe.
func (e *Engine) Snapshot(universeID int) (UniverseSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap, ok := e.snapshots[universeID]
	return snap, ok
}

// Snapshots returns the last published state of every universe.
func (e *Engine) Snapshots() map[int]UniverseSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[int]UniverseSnapshot, len(e.snapshots))
	for id, snap := range e.snapshots {
		out[id] = snap
	}
	return out
}

// GlobalMaster returns the last published global grandmaster.
func (e *Engine) GlobalMaster() byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.publishedGlobalMaster
}

// Blackout reports whether blackout was active after the last tick.
func (e *Engine) Blackout() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.publishedBlackout
}

// InputBypass reports whether input bypass was active after the last tick.
func (e *Engine) InputBypass() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.publishedInputBypass
}

// HighlightState returns the highlight state after the last tick.
func (e *Engine) HighlightState() protocol.HighlightData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.publishedHighlight
}

// GroupMaster returns a group's master value after the last tick.
func (e *Engine) GroupMaster(groupID int) byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.publishedGroupMasters[groupID]
}

// GroupGrid returns the grid a configured group belongs to. Permission
// checks use it to gate group master writes per grid.
func (e *Engine) GroupGrid(groupID int) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	gridID, ok := e.publishedGroupGrids[groupID]
	return gridID, ok
}

func groupGrids(groups []GroupConfig) map[int]int {
	grids := make(map[int]int, len(groups))
	for _, g := range groups {
		grids[g.ID] = g.GridID
	}
	return grids
}

// --- Tick loop ---

func (e *Engine) tickLoop() {
	defer close(e.doneChan)

	interval := time.Second / time.Duration(e.frameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			e.tick()
			if elapsed := time.Since(start); elapsed > interval {
				metrics.TickOverruns.Inc()
				log.Printf("⚠️  Engine tick overrun: %v (budget %v)", elapsed, interval)
			}
		}
	}
}

// tick drains the command queue, recomputes every universe through the
// pipeline, transmits frames, and publishes diffs.
func (e *Engine) tick() {
	e.drainCommands()

	e.groups.refreshMasters(e.universes)
	effects := e.groups.resolve(e.universes)

	// Latching groups write through to the operator layer so members
	// stay put when the master stops moving.
	for _, latch := range effects.latches {
		if u, ok := e.universes[latch.universe]; ok {
			e.writeSeq++
			u.operator[latch.channel-1] = latch.value
			u.operatorSrc[latch.channel-1] = GroupSource(latch.groupID)
			u.operatorSeq[latch.channel-1] = e.writeSeq
		}
	}
	if effects.globalMasterLatch != nil {
		e.globalMaster = *effects.globalMasterLatch
	}
	for id, v := range effects.universeMasterLatch {
		if u, ok := e.universes[id]; ok {
			u.master = v
		}
	}

	globalMaster := e.globalMaster
	if effects.globalMaster != nil {
		globalMaster = *effects.globalMaster
	}

	var events []protocol.Event
	for id, u := range e.universes {
		universeMaster := u.master
		if v, ok := effects.universeMaster[id]; ok {
			universeMaster = v
		}
		events = append(events, e.computeUniverse(u, effects.overrides[id], universeMaster, globalMaster)...)
	}

	e.publishTick(globalMaster, events)
}

func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			metrics.CommandsTotal.WithLabelValues(cmd.name).Inc()
			cmd.apply(e)
		default:
			return
		}
	}
}

// computeUniverse runs the full pipeline for one universe and returns
// the diff events against what clients last saw.
func (e *Engine) computeUniverse(u *universeState, overrides map[int]groupValue, universeMaster, globalMaster byte) []protocol.Event {
	var working [512]byte
	var sources [512]Source
	working = u.operator
	sources = u.operatorSrc

	u.mergeInput(&working, &sources, e.inputBypass)

	for channel, gv := range overrides {
		working[channel-1] = gv.value
		sources[channel-1] = GroupSource(gv.groupID)
	}

	if e.highlight.active {
		for c := 0; c < 512; c++ {
			if !e.highlight.channels[[2]int{u.cfg.ID, c + 1}] {
				working[c] = e.highlight.dimLevel
			}
		}
	}

	for c := 0; c < 512; c++ {
		channel := c + 1
		if parked, ok := u.parks[channel]; ok {
			// Park overrides everything including blackout, and
			// bypasses grandmaster scaling.
			working[c] = parked
			sources[c] = Source{Kind: SourcePark}
			continue
		}
		if e.blackout {
			working[c] = 0
			continue
		}
		scaled := float64(working[c]) * float64(universeMaster) / 255 * float64(globalMaster) / 255
		working[c] = byte(math.Round(scaled))
	}

	u.output = working
	u.outputSrc = sources

	if e.output != nil {
		e.output(u.cfg.ID, u.nextSequence(), working)
	}

	return e.diffUniverse(u)
}

// diffUniverse batches change events: individual channel_change below
// the threshold, a whole-universe values snapshot at or above it.
func (e *Engine) diffUniverse(u *universeState) []protocol.Event {
	var changed []int
	for c := 0; c < 512; c++ {
		if u.output[c] != u.lastBroadcast[c] {
			changed = append(changed, c)
		}
	}
	if u.broadcastOnce && len(changed) == 0 {
		return nil
	}

	var events []protocol.Event
	if u.broadcastOnce && len(changed) < diffBatchThreshold {
		for _, c := range changed {
			events = append(events, protocol.Event{Type: protocol.EventChannelChange, Data: protocol.ChannelChangeData{
				UniverseID: u.cfg.ID,
				Channel:    c + 1,
				Value:      int(u.output[c]),
				Source:     e.SourceString(u.outputSrc[c]),
			}})
		}
	} else {
		values := make([]int, 512)
		for c := 0; c < 512; c++ {
			values[c] = int(u.output[c])
		}
		events = append(events, protocol.Event{Type: protocol.EventValues, Data: protocol.ValuesData{
			UniverseID: u.cfg.ID,
			Values:     values,
		}})
	}
	u.lastBroadcast = u.output
	u.broadcastOnce = true
	return events
}

// publishTick swaps reader-visible snapshots and fans out this tick's
// events in production order.
func (e *Engine) publishTick(globalMaster byte, events []protocol.Event) {
	e.mu.Lock()
	for id, u := range e.universes {
		e.snapshots[id] = u.snapshot()
	}
	e.publishedGlobalMaster = globalMaster
	e.publishedBlackout = e.blackout
	e.publishedInputBypass = e.inputBypass
	highlightChannels := make([][2]int, 0, len(e.highlight.channels))
	for ch := range e.highlight.channels {
		highlightChannels = append(highlightChannels, ch)
	}
	e.publishedHighlight = protocol.HighlightData{
		Active:   e.highlight.active,
		DimLevel: int(e.highlight.dimLevel),
		Channels: highlightChannels,
	}
	masters := make(map[int]byte, len(e.groups.groups))
	for id, g := range e.groups.groups {
		masters[id] = g.master
	}
	e.publishedGroupMasters = masters
	e.mu.Unlock()

	if e.publish != nil {
		for _, ev := range events {
			e.publish(ev)
		}
	}
}

// --- Deferred event emitters (run on the engine goroutine) ---

func (e *Engine) emit(event protocol.Event) {
	if e.publish != nil {
		e.publish(event)
	}
}

func (e *Engine) emitGrandmaster(universeID *int, value int, src Source) {
	data := protocol.GrandmasterData{Value: value, Source: e.SourceString(src)}
	if universeID == nil {
		v := value
		data.Global = &v
	} else {
		data.UniverseID = universeID
	}
	e.emit(protocol.Event{Type: protocol.EventGrandmasterChanged, Data: data})
}

func (e *Engine) emitParkUpdate() {
	var entries []protocol.ParkEntry
	for id, u := range e.universes {
		for channel, value := range u.parks {
			entries = append(entries, protocol.ParkEntry{
				UniverseID: id,
				Channel:    channel,
				Value:      int(value),
			})
		}
	}
	e.emit(protocol.Event{Type: protocol.EventParkUpdate, Data: protocol.ParkData{Parked: entries}})
}
