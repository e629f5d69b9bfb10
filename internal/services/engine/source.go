package engine

import (
	"fmt"
	"sync"
)

// SourceKind identifies what wrote a channel value.
type SourceKind uint8

const (
	SourceUnknown SourceKind = iota
	SourceInput
	SourceUser
	SourceScene
	SourcePark
	SourceGroup
)

// Source attributes a channel value to its writer. Ref is a scene or
// group id, or an interned client id for user sources. Attribution is
// advisory; it never changes numeric output.
type Source struct {
	Kind SourceKind
	Ref  uint32
}

// clientInterner maps ephemeral client id strings to small integers so
// source tags stay a fixed-size struct.
type clientInterner struct {
	mu    sync.RWMutex
	byID  map[string]uint32
	byRef []string
}

func newClientInterner() *clientInterner {
	return &clientInterner{byID: make(map[string]uint32)}
}

func (ci *clientInterner) intern(clientID string) uint32 {
	ci.mu.RLock()
	ref, ok := ci.byID[clientID]
	ci.mu.RUnlock()
	if ok {
		return ref
	}
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ref, ok := ci.byID[clientID]; ok {
		return ref
	}
	ref = uint32(len(ci.byRef))
	ci.byRef = append(ci.byRef, clientID)
	ci.byID[clientID] = ref
	return ref
}

func (ci *clientInterner) lookup(ref uint32) string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	if int(ref) < len(ci.byRef) {
		return ci.byRef[ref]
	}
	return ""
}

// UserSource returns a tag for an operator client, interning its id.
func (e *Engine) UserSource(clientID string) Source {
	return Source{Kind: SourceUser, Ref: e.clients.intern(clientID)}
}

// SceneSource returns a tag for a scene recall.
func SceneSource(sceneID int) Source {
	return Source{Kind: SourceScene, Ref: uint32(sceneID)}
}

// GroupSource returns a tag for a group propagation.
func GroupSource(groupID int) Source {
	return Source{Kind: SourceGroup, Ref: uint32(groupID)}
}

// SourceString renders a tag for the client protocol.
func (e *Engine) SourceString(s Source) string {
	switch s.Kind {
	case SourceInput:
		return "input"
	case SourceUser:
		if id := e.clients.lookup(s.Ref); id != "" {
			return "user:" + id
		}
		return "unknown"
	case SourceScene:
		return fmt.Sprintf("scene:%d", s.Ref)
	case SourcePark:
		return "park"
	case SourceGroup:
		return fmt.Sprintf("group:%d", s.Ref)
	default:
		return "unknown"
	}
}
