// Package hub is the live message hub: it upgrades client connections,
// runs the auth handshake, dispatches operator commands to the engine,
// and fans state events out to every authenticated client. Fan-out is
// non-blocking per client; slow consumers are disconnected when their
// bounded queue overflows.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"

	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/database/repositories"
	"github.com/dmxx/dmxx-go/internal/metrics"
	"github.com/dmxx/dmxx-go/internal/protocol"
	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/internal/services/scene"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the client registry and the broadcast fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients []*Client // copy-on-write for lock-free fan-out

	eng      *engine.Engine
	scenes   *scene.Service
	authSvc  *auth.Service
	parkRepo *repositories.ParkRepository

	writeDeadline time.Duration
}

// New creates the hub.
func New(eng *engine.Engine, scenes *scene.Service, authSvc *auth.Service, parkRepo *repositories.ParkRepository) *Hub {
	return &Hub{
		eng:           eng,
		scenes:        scenes,
		authSvc:       authSvc,
		parkRepo:      parkRepo,
		writeDeadline: defaultWriteDeadline,
	}
}

// SetWriteDeadline overrides the per-write client deadline. Must be
// called before any client connects.
func (h *Hub) SetWriteDeadline(d time.Duration) {
	if d > 0 {
		h.writeDeadline = d
	}
}

// Publish fans an event out to every authenticated client. It is the
// engine's and scene engine's broadcast callback; per-universe event
// order is preserved because each client's queue is FIFO.
func (h *Hub) Publish(event protocol.Event) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️  Event marshal failed: %v", err)
		return
	}

	h.mu.RLock()
	clients := h.clients
	h.mu.RUnlock()

	for _, c := range clients {
		if c.Identity() == nil {
			continue
		}
		if !c.queue(message) {
			go c.drop("send queue overflow")
		}
	}
}

// ServeWS upgrades an HTTP request into a client session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:   cuid.New(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
		ip:   auth.ClientIP(r),
	}

	// IP-matched profiles authenticate without an explicit auth
	// command; token clients handshake with their first message.
	if identity, err := h.authSvc.Authenticate(r.Context(), r.URL.Query().Get("token"), client.ip); err == nil && identity != nil {
		client.identity.Store(identity)
	}

	h.register(client)
	go client.writePump()
	go client.readPump()

	if client.Identity() != nil {
		h.sendConnected(client)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := make([]*Client, len(h.clients), len(h.clients)+1)
	copy(clients, h.clients)
	h.clients = append(clients, c)
	metrics.ConnectedClients.Set(float64(len(h.clients)))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := make([]*Client, 0, len(h.clients))
	for _, existing := range h.clients {
		if existing != c {
			clients = append(clients, existing)
		}
	}
	if len(clients) == len(h.clients) {
		return
	}
	h.clients = clients
	close(c.done)
	metrics.ConnectedClients.Set(float64(len(h.clients)))
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendConnected delivers the post-handshake connected event with the
// client id and an initial snapshot.
func (h *Hub) sendConnected(c *Client) {
	snapshot := map[string]interface{}{
		"universes":       h.universeValues(false),
		"input_universes": h.universeValues(true),
		"global_master":   int(h.eng.GlobalMaster()),
		"blackout":        h.eng.Blackout(),
		"input_bypass":    h.eng.InputBypass(),
		"highlight":       h.eng.HighlightState(),
	}
	if h.scenes != nil {
		snapshot["active_scene"] = h.scenes.ActiveScene()
	}
	h.sendTo(c, protocol.Event{Type: protocol.EventConnected, Data: protocol.ConnectedData{
		ClientID: c.ID,
		Profile:  c.Identity().ProfileName,
		Snapshot: snapshot,
	}})
}

func (h *Hub) universeValues(input bool) map[int][]int {
	out := make(map[int][]int)
	for id, snap := range h.eng.Snapshots() {
		values := make([]int, 512)
		for c := 0; c < 512; c++ {
			if input {
				values[c] = int(snap.Input[c])
			} else {
				values[c] = int(snap.Values[c])
			}
		}
		out[id] = values
	}
	return out
}

func (h *Hub) sendTo(c *Client, event protocol.Event) {
	message, err := json.Marshal(event)
	if err != nil {
		return
	}
	if !c.queue(message) {
		go c.drop("send queue overflow")
	}
}

func (h *Hub) sendError(c *Client, command, message string) {
	h.sendTo(c, protocol.Event{Type: protocol.EventError, Data: protocol.ErrorData{
		Message: message,
		Command: command,
	}})
}

// dispatch routes one client command after permission checks. Errors
// are structured events; a denied command never disconnects.
func (h *Hub) dispatch(c *Client, message []byte) {
	var cmd protocol.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		h.sendError(c, "", "malformed command")
		return
	}

	identity := c.Identity()
	if identity == nil {
		if cmd.Type != protocol.CmdAuth {
			h.sendError(c, cmd.Type, "not authenticated")
			return
		}
		h.handleAuth(c, cmd)
		return
	}

	switch cmd.Type {
	case protocol.CmdAuth:
		h.handleAuth(c, cmd)

	case protocol.CmdSetChannel:
		h.eng.SetChannel(cmd.UniverseID, cmd.Channel, clampByte(cmd.Value), h.eng.UserSource(c.ID))

	case protocol.CmdSetChannels:
		values, err := parseValues(cmd.Values)
		if err != nil {
			h.sendError(c, cmd.Type, err.Error())
			return
		}
		h.eng.SetChannels(cmd.UniverseID, values, h.eng.UserSource(c.ID))

	case protocol.CmdSetGlobalGrandmaster:
		h.eng.SetGlobalMaster(clampByte(cmd.Value), h.eng.UserSource(c.ID))

	case protocol.CmdSetUniverseGrandmaster:
		h.eng.SetUniverseMaster(cmd.UniverseID, clampByte(cmd.Value), h.eng.UserSource(c.ID))

	case protocol.CmdSetGroupValue:
		gridID, ok := h.eng.GroupGrid(cmd.GroupID)
		if !ok {
			h.sendError(c, cmd.Type, "unknown group")
			return
		}
		if !identity.CanAccessGrid(gridID) {
			h.sendError(c, cmd.Type, "grid access denied")
			return
		}
		h.eng.SetGroupMaster(cmd.GroupID, clampByte(cmd.Value), h.eng.UserSource(c.ID))

	case protocol.CmdSetActiveScene:
		// Informational: authoritative recall goes through HTTP. The
		// hub just rebroadcasts the client's selection.
		if cmd.SceneID != nil && !identity.CanAccessScene(*cmd.SceneID) {
			h.sendError(c, cmd.Type, "scene access denied")
			return
		}
		h.Publish(protocol.Event{Type: protocol.EventActiveSceneChanged, Data: protocol.ActiveSceneData{SceneID: cmd.SceneID}})

	case protocol.CmdGetValues:
		h.sendValues(c, cmd.UniverseID, false)

	case protocol.CmdGetInputValues:
		h.sendValues(c, cmd.UniverseID, true)

	case protocol.CmdGetAllUniverses:
		h.sendTo(c, protocol.Event{Type: protocol.EventAllValues, Data: h.universeValues(false)})

	case protocol.CmdGetAllInputValues:
		h.sendTo(c, protocol.Event{Type: protocol.EventAllInputValues, Data: h.universeValues(true)})

	case protocol.CmdPark:
		if !identity.CanPark {
			h.sendError(c, cmd.Type, "park permission denied")
			return
		}
		h.eng.Park(cmd.UniverseID, cmd.Channel, clampByte(cmd.Value))
		h.persistPark(cmd.UniverseID, cmd.Channel, cmd.Value)

	case protocol.CmdUnpark:
		if !identity.CanPark {
			h.sendError(c, cmd.Type, "park permission denied")
			return
		}
		h.eng.Unpark(cmd.UniverseID, cmd.Channel)
		h.persistUnpark(cmd.UniverseID, cmd.Channel)

	case protocol.CmdHighlightStart:
		if !identity.CanHighlight {
			h.sendError(c, cmd.Type, "highlight permission denied")
			return
		}
		channels := make([][2]int, 0, len(cmd.Channels)/2)
		for i := 0; i+1 < len(cmd.Channels); i += 2 {
			channels = append(channels, [2]int{cmd.Channels[i], cmd.Channels[i+1]})
		}
		h.eng.SetHighlight(true, clampByte(cmd.DimLevel), channels)

	case protocol.CmdHighlightStop:
		if !identity.CanHighlight {
			h.sendError(c, cmd.Type, "highlight permission denied")
			return
		}
		h.eng.SetHighlight(false, 0, nil)

	case protocol.CmdSetInputBypass:
		if !identity.CanBypass {
			h.sendError(c, cmd.Type, "bypass permission denied")
			return
		}
		h.eng.SetInputBypass(cmd.Active)

	default:
		h.sendError(c, cmd.Type, "unknown command")
	}
}

func (h *Hub) handleAuth(c *Client, cmd protocol.Command) {
	identity, err := h.authSvc.Authenticate(context.Background(), cmd.Token, c.ip)
	if err != nil || identity == nil {
		h.sendError(c, cmd.Type, "authentication failed")
		return
	}
	c.identity.Store(identity)
	h.sendConnected(c)
}

func (h *Hub) sendValues(c *Client, universeID int, input bool) {
	snap, ok := h.eng.Snapshot(universeID)
	if !ok {
		h.sendError(c, protocol.CmdGetValues, "unknown universe")
		return
	}
	values := make([]int, 512)
	eventType := protocol.EventValues
	for i := 0; i < 512; i++ {
		if input {
			values[i] = int(snap.Input[i])
		} else {
			values[i] = int(snap.Values[i])
		}
	}
	if input {
		eventType = protocol.EventInputValues
	}
	h.sendTo(c, protocol.Event{Type: eventType, Data: protocol.ValuesData{
		UniverseID: universeID,
		Values:     values,
	}})
}

func (h *Hub) persistPark(universeID, channel, value int) {
	if h.parkRepo == nil {
		return
	}
	err := h.parkRepo.Park(context.Background(), &models.ParkedChannel{
		UniverseID: universeID,
		Channel:    channel,
		Value:      value,
	})
	if err != nil {
		log.Printf("⚠️  Failed to persist park: %v", err)
	}
}

func (h *Hub) persistUnpark(universeID, channel int) {
	if h.parkRepo == nil {
		return
	}
	if err := h.parkRepo.Unpark(context.Background(), universeID, channel); err != nil {
		log.Printf("⚠️  Failed to persist unpark: %v", err)
	}
}

// parseValues accepts either a channel->value object or a 512-length
// array, matching what different client versions send.
func parseValues(raw json.RawMessage) (map[int]byte, error) {
	if len(raw) == 0 {
		return nil, errEmptyValues
	}
	var asMap map[int]int
	if err := json.Unmarshal(raw, &asMap); err == nil {
		out := make(map[int]byte, len(asMap))
		for channel, value := range asMap {
			out[channel] = clampByte(value)
		}
		return out, nil
	}
	var asArray []int
	if err := json.Unmarshal(raw, &asArray); err == nil {
		out := make(map[int]byte, len(asArray))
		for i, value := range asArray {
			out[i+1] = clampByte(value)
		}
		return out, nil
	}
	return nil, errBadValues
}

var (
	errEmptyValues = jsonError("empty values payload")
	errBadValues   = jsonError("values must be an object or array")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
