package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/protocol"
	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/internal/services/testutil"
)

type hubFixture struct {
	hub     *Hub
	eng     *engine.Engine
	authSvc *auth.Service
	db      *testutil.TestDB
	server  *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	eng, err := engine.NewEngine(engine.Config{FrameRateHz: 44}, &engine.Snapshot{
		Universes: []engine.UniverseConfig{{ID: 1, Label: "Stage", PassthroughMode: engine.PassthroughOff}},
	})
	require.NoError(t, err)

	authSvc := auth.NewService("test-secret", "letmein", nil, db.ProfileRepo)
	h := New(eng, nil, authSvc, db.ParkRepo)
	eng.SetPublisher(h.Publish)
	eng.Start()
	t.Cleanup(eng.Stop)

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(server.Close)

	return &hubFixture{hub: h, eng: eng, authSvc: authSvc, db: db, server: server}
}

func (f *hubFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type rawEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) rawEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	var event rawEvent
	require.NoError(t, json.Unmarshal(message, &event))
	return event
}

// waitForEvent discards broadcasts until one of the wanted type arrives.
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) rawEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Type == eventType {
			return event
		}
	}
	t.Fatalf("no %s event before deadline", eventType)
	return rawEvent{}
}

func send(t *testing.T, conn *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func TestCommandsRejectedBeforeAuth(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")

	send(t, conn, protocol.Command{Type: protocol.CmdSetChannel, UniverseID: 1, Channel: 1, Value: 255})

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventError, event.Type)
	var errData protocol.ErrorData
	require.NoError(t, json.Unmarshal(event.Data, &errData))
	assert.Equal(t, "not authenticated", errData.Message)
}

func TestAuthCommandHandshake(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	send(t, conn, protocol.Command{Type: protocol.CmdAuth, Token: token})

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventConnected, event.Type)

	var connected protocol.ConnectedData
	require.NoError(t, json.Unmarshal(event.Data, &connected))
	assert.NotEmpty(t, connected.ClientID)
	assert.Equal(t, "Admin", connected.Profile)
	assert.Contains(t, connected.Snapshot, "universes")
	assert.Contains(t, connected.Snapshot, "global_master")
}

func TestAuthWithBadTokenFails(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "")

	send(t, conn, protocol.Command{Type: protocol.CmdAuth, Token: "not-a-token"})

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventError, event.Type)
}

func TestQueryTokenPreAuthenticates(t *testing.T) {
	f := newHubFixture(t)

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	conn := f.dial(t, token)

	event := readEvent(t, conn)
	assert.Equal(t, protocol.EventConnected, event.Type)
}

func TestSetChannelBroadcastsChange(t *testing.T) {
	f := newHubFixture(t)

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)

	send(t, conn, protocol.Command{Type: protocol.CmdSetChannel, UniverseID: 1, Channel: 10, Value: 200})

	event := waitForEvent(t, conn, protocol.EventChannelChange)
	var change protocol.ChannelChangeData
	require.NoError(t, json.Unmarshal(event.Data, &change))
	assert.Equal(t, 1, change.UniverseID)
	assert.Equal(t, 10, change.Channel)
	assert.Equal(t, 200, change.Value)
	assert.True(t, strings.HasPrefix(change.Source, "user:"), "source %q", change.Source)
}

func TestGetValuesReturnsSnapshot(t *testing.T) {
	f := newHubFixture(t)

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)

	send(t, conn, protocol.Command{Type: protocol.CmdGetValues, UniverseID: 1})

	event := waitForEvent(t, conn, protocol.EventValues)
	var values protocol.ValuesData
	require.NoError(t, json.Unmarshal(event.Data, &values))
	assert.Equal(t, 1, values.UniverseID)
	assert.Len(t, values.Values, 512)
}

func TestParkDeniedForRestrictedProfile(t *testing.T) {
	f := newHubFixture(t)

	password := "viewer-pass"
	profile := &models.Profile{
		Name:             testutil.UniqueName("viewer"),
		Password:         &password,
		AllowedPagesJSON: `["faders"]`,
	}
	require.NoError(t, f.db.ProfileRepo.Create(context.Background(), profile))

	token, err := f.authSvc.CreateToken(profile)
	require.NoError(t, err)
	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)

	send(t, conn, protocol.Command{Type: protocol.CmdPark, UniverseID: 1, Channel: 1, Value: 99})

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventError, event.Type)
	var errData protocol.ErrorData
	require.NoError(t, json.Unmarshal(event.Data, &errData))
	assert.Equal(t, "park permission denied", errData.Message)

	// A denied command never disconnects; the session keeps working.
	send(t, conn, protocol.Command{Type: protocol.CmdGetValues, UniverseID: 1})
	event = waitForEvent(t, conn, protocol.EventValues)
	assert.Equal(t, protocol.EventValues, event.Type)
}

func TestParkPersistsAndBroadcasts(t *testing.T) {
	f := newHubFixture(t)

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)

	send(t, conn, protocol.Command{Type: protocol.CmdPark, UniverseID: 1, Channel: 5, Value: 180})

	event := waitForEvent(t, conn, protocol.EventParkUpdate)
	var parks protocol.ParkData
	require.NoError(t, json.Unmarshal(event.Data, &parks))
	require.Len(t, parks.Parked, 1)
	assert.Equal(t, protocol.ParkEntry{UniverseID: 1, Channel: 5, Value: 180}, parks.Parked[0])

	require.Eventually(t, func() bool {
		rows, err := f.db.ParkRepo.FindAll(context.Background())
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownCommandReturnsError(t *testing.T) {
	f := newHubFixture(t)

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)

	send(t, conn, protocol.Command{Type: "definitely_not_a_command"})

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventError, event.Type)
	var errData protocol.ErrorData
	require.NoError(t, json.Unmarshal(event.Data, &errData))
	assert.Equal(t, "unknown command", errData.Message)
	assert.Equal(t, "definitely_not_a_command", errData.Command)
}

func TestClientCountTracksConnections(t *testing.T) {
	f := newHubFixture(t)

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)

	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

// Broadcast fan-out and disconnects race by design: Publish snapshots the
// client list outside the registry lock, so a client removed mid-fan-out
// must still be safe to queue into.
func TestPublishDuringDisconnect(t *testing.T) {
	f := newHubFixture(t)

	identity := &auth.Identity{ProfileName: "Admin", IsAdmin: true}
	clients := make([]*Client, 200)
	for i := range clients {
		c := &Client{
			ID:   cuid.New(),
			hub:  f.hub,
			send: make(chan []byte, sendQueueSize),
			done: make(chan struct{}),
		}
		c.identity.Store(identity)
		f.hub.register(c)
		clients[i] = c
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.hub.Publish(protocol.Event{Type: protocol.EventBlackout, Data: protocol.BoolData{Active: i%2 == 0}})
		}
	}()
	go func() {
		defer wg.Done()
		for _, c := range clients {
			f.hub.unregister(c)
		}
	}()
	wg.Wait()

	for _, c := range clients {
		select {
		case <-c.done:
		default:
			t.Fatalf("client %s never signaled done", c.ID)
		}
	}
	assert.Equal(t, 0, f.hub.ClientCount())
}

func TestGroupValueGatedByGridAccess(t *testing.T) {
	f := newHubFixture(t)

	require.NoError(t, f.eng.UpdateConfig(&engine.Snapshot{
		Universes: []engine.UniverseConfig{{ID: 1, Label: "Stage", PassthroughMode: engine.PassthroughOff}},
		Groups: []engine.GroupConfig{{
			ID:      3,
			Name:    "Front Wash",
			Mode:    engine.GroupScales,
			GridID:  7,
			Enabled: true,
			Members: []engine.MemberConfig{{UniverseID: 1, Channel: 1}},
		}},
	}))
	require.Eventually(t, func() bool {
		_, ok := f.eng.GroupGrid(3)
		return ok
	}, time.Second, 10*time.Millisecond)

	password := "board-op-pass"
	grids := `[2]`
	profile := &models.Profile{
		Name:             testutil.UniqueName("board-op"),
		Password:         &password,
		AllowedPagesJSON: `["groups"]`,
		AllowedGridsJSON: &grids,
	}
	require.NoError(t, f.db.ProfileRepo.Create(context.Background(), profile))

	token, err := f.authSvc.CreateToken(profile)
	require.NoError(t, err)
	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)

	send(t, conn, protocol.Command{Type: protocol.CmdSetGroupValue, GroupID: 3, Value: 200})

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventError, event.Type)
	var errData protocol.ErrorData
	require.NoError(t, json.Unmarshal(event.Data, &errData))
	assert.Equal(t, "grid access denied", errData.Message)

	// An admin on the same hub still drives the group.
	adminToken, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	adminConn := f.dial(t, adminToken)
	waitForEvent(t, adminConn, protocol.EventConnected)

	send(t, adminConn, protocol.Command{Type: protocol.CmdSetGroupValue, GroupID: 3, Value: 200})

	event = waitForEvent(t, adminConn, protocol.EventGroupValueChanged)
	var change protocol.GroupValueData
	require.NoError(t, json.Unmarshal(event.Data, &change))
	assert.Equal(t, 3, change.GroupID)
	assert.Equal(t, 200, change.Value)
}

func TestGroupValueUnknownGroupRejected(t *testing.T) {
	f := newHubFixture(t)

	token, err := f.authSvc.CreateToken(nil)
	require.NoError(t, err)
	conn := f.dial(t, token)
	waitForEvent(t, conn, protocol.EventConnected)

	send(t, conn, protocol.Command{Type: protocol.CmdSetGroupValue, GroupID: 999, Value: 100})

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventError, event.Type)
	var errData protocol.ErrorData
	require.NoError(t, json.Unmarshal(event.Data, &errData))
	assert.Equal(t, "unknown group", errData.Message)
}
