package engine

// universeState holds every per-universe array the pipeline reads and
// writes. Only the engine goroutine touches it; readers get copies via
// snapshots published under the engine mutex.
type universeState struct {
	cfg UniverseConfig

	// operator is the fader layer: the last value each operator (or
	// scene recall, or latched group) set per channel.
	operator    [512]byte
	operatorSrc [512]Source
	operatorSeq [512]uint64

	// input is the merged post-mapping contribution from external
	// protocols.
	input    [512]byte
	inputSeq [512]uint64

	// output is the last value emitted after the full pipeline.
	output    [512]byte
	outputSrc [512]Source

	// lastBroadcast tracks what clients have seen, for diffing.
	lastBroadcast [512]byte
	broadcastOnce bool

	master byte // universe grandmaster, 255 = full

	parks map[int]byte // channel -> parked value

	sequence byte // wire sequence for output frames
}

func newUniverseState(cfg UniverseConfig) *universeState {
	u := &universeState{
		cfg:    cfg,
		master: 255,
		parks:  make(map[int]byte),
	}
	return u
}

// nextSequence returns the next 1..255 cyclic wire sequence number.
func (u *universeState) nextSequence() byte {
	u.sequence++
	if u.sequence == 0 {
		u.sequence = 1
	}
	return u.sequence
}

// mergeInput folds the input layer into the working buffer according to
// the universe's passthrough and merge configuration. seq values order
// operator writes against input writes for LTP.
func (u *universeState) mergeInput(working *[512]byte, sources *[512]Source, bypass bool) {
	if bypass {
		return
	}
	switch u.cfg.PassthroughMode {
	case PassthroughOutputOnly:
		for c := 0; c < 512; c++ {
			working[c] = u.input[c]
			sources[c] = Source{Kind: SourceInput}
		}
	case PassthroughFadersOutput:
		if u.cfg.MergeMode == MergeLTP {
			for c := 0; c < 512; c++ {
				if u.inputSeq[c] > u.operatorSeq[c] {
					working[c] = u.input[c]
					sources[c] = Source{Kind: SourceInput}
				}
			}
		} else {
			for c := 0; c < 512; c++ {
				if u.input[c] > working[c] {
					working[c] = u.input[c]
					sources[c] = Source{Kind: SourceInput}
				}
			}
		}
	}
	// off and view_only leave the output untouched.
}

// UniverseSnapshot is a read-only copy of a universe's state.
type UniverseSnapshot struct {
	ID       int
	Label    string
	Values   [512]byte
	Sources  [512]Source
	Operator [512]byte
	Input    [512]byte
	Master   byte
	Parks    map[int]byte
}

func (u *universeState) snapshot() UniverseSnapshot {
	snap := UniverseSnapshot{
		ID:       u.cfg.ID,
		Label:    u.cfg.Label,
		Values:   u.output,
		Sources:  u.outputSrc,
		Operator: u.operator,
		Input:    u.input,
		Master:   u.master,
		Parks:    make(map[int]byte, len(u.parks)),
	}
	for c, v := range u.parks {
		snap.Parks[c] = v
	}
	return snap
}
