package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/database/repositories"
	"github.com/dmxx/dmxx-go/internal/protocol"
	"github.com/dmxx/dmxx-go/internal/services/engine"
)

// Transition types.
const (
	TransitionInstant   = "instant"
	TransitionFade      = "fade"
	TransitionCrossfade = "crossfade"
)

// updateRate is the default transition sample interval, 40Hz wall-clock.
const updateRate = 25 * time.Millisecond

// channelFade is one channel's interpolation within a transition.
type channelFade struct {
	universe    int
	channel     int
	startValue  float64
	endValue    float64
	lastWritten byte
	prevWritten byte
	released    bool // operator took the channel back (fade only)
}

// groupFade interpolates a group master.
type groupFade struct {
	groupID     int
	startValue  float64
	endValue    float64
	lastWritten byte
}

// transition is one running recall.
type transition struct {
	sceneID   int
	frozen    bool // crossfade: operator edits do not release channels
	channels  []channelFade
	groups    []groupFade
	universes map[int]bool
	startTime time.Time
	duration  time.Duration
	stopChan  chan struct{}
	done      chan struct{}
}

// Service is the scene engine: capture, recall, and transition pacing.
type Service struct {
	mu sync.Mutex

	eng       *engine.Engine
	sceneRepo *repositories.SceneRepository
	publish   engine.Publisher
	interval  time.Duration

	running       map[int]*transition // keyed by universe id
	activeSceneID *int
}

// NewService creates the scene engine.
func NewService(eng *engine.Engine, sceneRepo *repositories.SceneRepository) *Service {
	return &Service{
		eng:       eng,
		sceneRepo: sceneRepo,
		interval:  updateRate,
		running:   make(map[int]*transition),
	}
}

// SetPublisher wires the hub broadcast callback.
func (s *Service) SetPublisher(p engine.Publisher) { s.publish = p }

// SetTransitionRate overrides the default 40Hz sampling rate. Must be
// called before any recall.
func (s *Service) SetTransitionRate(hz int) {
	if hz > 0 {
		s.interval = time.Second / time.Duration(hz)
	}
}

// ActiveScene returns the currently active scene id, or nil.
func (s *Service) ActiveScene() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeSceneID == nil {
		return nil
	}
	id := *s.activeSceneID
	return &id
}

// Capture snapshots the operator layer of the selected universes and
// the selected group masters into a scene record. Capturing the
// operator layer (pre-grandmaster) makes save-then-recall a no-op.
func (s *Service) Capture(ctx context.Context, scene *models.Scene, universeIDs, groupIDs []int) error {
	snapshots := s.eng.Snapshots()

	var values []models.SceneValue
	for _, id := range universeIDs {
		snap, ok := snapshots[id]
		if !ok {
			return fmt.Errorf("universe %d not found", id)
		}
		for c := 0; c < 512; c++ {
			if snap.Operator[c] != 0 {
				values = append(values, models.SceneValue{
					UniverseID: id,
					Channel:    c + 1,
					Value:      int(snap.Operator[c]),
				})
			}
		}
	}

	var groupValues []models.SceneGroupValue
	for _, id := range groupIDs {
		groupValues = append(groupValues, models.SceneGroupValue{
			GroupID:     id,
			MasterValue: int(s.eng.GroupMaster(id)),
		})
	}

	scene.GlobalMaster = nil
	if scene.IncludesGlobalMaster {
		gm := int(s.eng.GlobalMaster())
		scene.GlobalMaster = &gm
	}
	scene.UniverseMastersJSON = ""
	if scene.IncludesUniverseMasters {
		masters := make(map[int]int, len(universeIDs))
		for _, id := range universeIDs {
			if snap, ok := snapshots[id]; ok {
				masters[id] = int(snap.Master)
			}
		}
		data, err := json.Marshal(masters)
		if err != nil {
			return err
		}
		scene.UniverseMastersJSON = string(data)
	}

	if scene.ID == 0 {
		scene.Values = values
		scene.GroupValues = groupValues
		return s.sceneRepo.Create(ctx, scene)
	}
	for i := range values {
		values[i].SceneID = scene.ID
	}
	for i := range groupValues {
		groupValues[i].SceneID = scene.ID
	}
	if err := s.sceneRepo.Update(ctx, scene); err != nil {
		return err
	}
	return s.sceneRepo.ReplaceValues(ctx, scene.ID, values, groupValues)
}

// Recall loads a scene and starts its transition. transitionOverride
// and durationOverride replace the scene's stored policy when set.
func (s *Service) Recall(ctx context.Context, sceneID int, transitionOverride string, durationOverride *int) error {
	scene, err := s.sceneRepo.FindByID(ctx, sceneID)
	if err != nil {
		return err
	}
	if scene == nil {
		return fmt.Errorf("scene %d not found", sceneID)
	}

	transitionType := scene.TransitionType
	if transitionOverride != "" {
		transitionType = transitionOverride
	}
	durationMs := scene.DurationMs
	if durationOverride != nil {
		durationMs = *durationOverride
	}

	affected := make(map[int]bool)
	for _, v := range scene.Values {
		if v.Channel < 1 || v.Channel > 512 {
			return fmt.Errorf("scene %d has out-of-range channel %d", sceneID, v.Channel)
		}
		affected[v.UniverseID] = true
	}

	s.mu.Lock()
	// One transition per universe: cancel anything the new recall
	// touches. The replaced transition freezes at its last frame.
	for id := range affected {
		if prior, ok := s.running[id]; ok {
			s.cancelLocked(prior)
		}
	}
	s.activeSceneID = &scene.ID
	s.mu.Unlock()

	s.emit(protocol.Event{Type: protocol.EventActiveSceneChanged, Data: protocol.ActiveSceneData{SceneID: &scene.ID}})

	s.applyMasters(scene)

	if transitionType == TransitionInstant || durationMs <= 0 {
		s.applyInstant(scene)
		return nil
	}

	s.startTransition(scene, transitionType, time.Duration(durationMs)*time.Millisecond)
	return nil
}

// Release clears the active scene without touching channel state.
func (s *Service) Release() {
	s.mu.Lock()
	s.activeSceneID = nil
	s.mu.Unlock()
	s.emit(protocol.Event{Type: protocol.EventActiveSceneChanged, Data: protocol.ActiveSceneData{SceneID: nil}})
}

// Stop cancels every running transition.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[*transition]bool)
	for _, tr := range s.running {
		if !seen[tr] {
			seen[tr] = true
			s.cancelLocked(tr)
		}
	}
}

// applyMasters restores captured master levels. Masters snap to their
// stored value at recall start; only channel and group values follow
// the transition curve.
func (s *Service) applyMasters(scene *models.Scene) {
	src := engine.SceneSource(scene.ID)
	if scene.IncludesGlobalMaster && scene.GlobalMaster != nil {
		s.eng.SetGlobalMaster(clampMaster(*scene.GlobalMaster), src)
	}
	if scene.IncludesUniverseMasters && scene.UniverseMastersJSON != "" {
		var masters map[int]int
		if err := json.Unmarshal([]byte(scene.UniverseMastersJSON), &masters); err != nil {
			log.Printf("⚠️  Scene %d: bad universe masters payload: %v", scene.ID, err)
			return
		}
		for universeID, value := range masters {
			s.eng.SetUniverseMaster(universeID, clampMaster(value), src)
		}
	}
}

func clampMaster(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func (s *Service) applyInstant(scene *models.Scene) {
	src := engine.SceneSource(scene.ID)
	byUniverse := make(map[int]map[int]byte)
	for _, v := range scene.Values {
		if byUniverse[v.UniverseID] == nil {
			byUniverse[v.UniverseID] = make(map[int]byte)
		}
		byUniverse[v.UniverseID][v.Channel] = byte(v.Value)
	}
	for universeID, values := range byUniverse {
		s.eng.SetChannels(universeID, values, src)
	}
	for _, gv := range scene.GroupValues {
		s.eng.SetGroupMaster(gv.GroupID, byte(gv.MasterValue), src)
	}
}

func (s *Service) startTransition(scene *models.Scene, transitionType string, duration time.Duration) {
	snapshots := s.eng.Snapshots()

	tr := &transition{
		sceneID:   scene.ID,
		frozen:    transitionType == TransitionCrossfade,
		universes: make(map[int]bool),
		startTime: time.Now(),
		duration:  duration,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	for _, v := range scene.Values {
		snap, ok := snapshots[v.UniverseID]
		if !ok {
			continue
		}
		start := snap.Operator[v.Channel-1]
		tr.channels = append(tr.channels, channelFade{
			universe:    v.UniverseID,
			channel:     v.Channel,
			startValue:  float64(start),
			endValue:    float64(v.Value),
			lastWritten: start,
			prevWritten: start,
		})
		tr.universes[v.UniverseID] = true
	}
	for _, gv := range scene.GroupValues {
		start := s.eng.GroupMaster(gv.GroupID)
		tr.groups = append(tr.groups, groupFade{
			groupID:     gv.GroupID,
			startValue:  float64(start),
			endValue:    float64(gv.MasterValue),
			lastWritten: start,
		})
	}

	s.mu.Lock()
	for id := range tr.universes {
		s.running[id] = tr
	}
	s.mu.Unlock()

	log.Printf("🎬 Scene %d: %s transition over %v (%d channels, %d groups)",
		scene.ID, transitionType, duration, len(tr.channels), len(tr.groups))
	go s.runTransition(tr)
}

// runTransition samples the interpolation at 40Hz wall-clock until the
// duration elapses or the transition is canceled.
func (s *Service) runTransition(tr *transition) {
	defer close(tr.done)
	defer s.finishTransition(tr)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	src := engine.SceneSource(tr.sceneID)
	for {
		select {
		case <-tr.stopChan:
			// Canceled: freeze at the last interpolated frame.
			return
		case <-ticker.C:
			elapsed := time.Since(tr.startTime)
			progress := float64(elapsed) / float64(tr.duration)
			final := progress >= 1
			if final {
				progress = 1
			}
			s.sample(tr, progress, src)
			if final {
				return
			}
		}
	}
}

// sample writes one interpolation step into the engine queue.
func (s *Service) sample(tr *transition, progress float64, src engine.Source) {
	snapshots := s.eng.Snapshots()

	byUniverse := make(map[int]map[int]byte)
	for i := range tr.channels {
		ch := &tr.channels[i]
		if ch.released {
			continue
		}
		if !tr.frozen {
			// A plain fade yields to operator edits: if someone else
			// moved the channel since our last writes, drop it. The
			// previous write is also accepted because the engine may
			// not have ticked since our last sample.
			if snap, ok := snapshots[ch.universe]; ok {
				observed := snap.Operator[ch.channel-1]
				if observed != ch.lastWritten && observed != ch.prevWritten {
					ch.released = true
					continue
				}
			}
		}
		value := byte(math.Round(Interpolate(ch.startValue, ch.endValue, progress, EasingLinear)))
		ch.prevWritten = ch.lastWritten
		ch.lastWritten = value
		if byUniverse[ch.universe] == nil {
			byUniverse[ch.universe] = make(map[int]byte)
		}
		byUniverse[ch.universe][ch.channel] = value
	}
	for universeID, values := range byUniverse {
		s.eng.SetChannels(universeID, values, src)
	}

	for i := range tr.groups {
		g := &tr.groups[i]
		value := byte(math.Round(Interpolate(g.startValue, g.endValue, progress, EasingLinear)))
		if value != g.lastWritten {
			g.lastWritten = value
			s.eng.SetGroupMaster(g.groupID, value, src)
		}
	}
}

// cancelLocked signals a transition to stop. Caller holds s.mu.
func (s *Service) cancelLocked(tr *transition) {
	select {
	case <-tr.stopChan:
	default:
		close(tr.stopChan)
	}
	for id, running := range s.running {
		if running == tr {
			delete(s.running, id)
		}
	}
}

func (s *Service) finishTransition(tr *transition) {
	s.mu.Lock()
	for id, running := range s.running {
		if running == tr {
			delete(s.running, id)
		}
	}
	s.mu.Unlock()
}

func (s *Service) emit(event protocol.Event) {
	if s.publish != nil {
		s.publish(event)
	}
}
