package input

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/pkg/artnet"
	"github.com/dmxx/dmxx-go/pkg/sacn"
)

func newInputEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.NewEngine(engine.Config{}, &engine.Snapshot{
		Universes: []engine.UniverseConfig{{
			ID:              1,
			PassthroughMode: engine.PassthroughFadersOutput,
			MergeMode:       engine.MergeHTP,
		}},
	})
	require.NoError(t, err)
	eng.Start()
	t.Cleanup(eng.Stop)
	return eng
}

func sendUDP(t *testing.T, target string, packet []byte) {
	t.Helper()
	conn, err := net.Dial("udp4", target)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(packet)
	require.NoError(t, err)
}

func TestArtNetReceiverPassthrough(t *testing.T) {
	eng := newInputEngine(t)

	cfg := Config{
		Protocol:     "artnet",
		UniverseID:   1,
		BindAddr:     "127.0.0.1",
		Port:         16454,
		WireUniverse: 0,
	}
	receiver, err := New(cfg, eng)
	require.NoError(t, err)
	require.NoError(t, receiver.Start())
	defer receiver.Stop()

	channels := make([]byte, 512)
	channels[0] = 200
	sendUDP(t, "127.0.0.1:16454", artnet.BuildDMXPacket(0, channels, 1))

	require.Eventually(t, func() bool {
		snap, ok := eng.Snapshot(1)
		return ok && snap.Values[0] == 200
	}, time.Second, 5*time.Millisecond)
}

func TestArtNetReceiverRejectsWrongUniverse(t *testing.T) {
	eng := newInputEngine(t)

	cfg := Config{
		Protocol:     "artnet",
		UniverseID:   1,
		BindAddr:     "127.0.0.1",
		Port:         16455,
		WireUniverse: 3,
	}
	receiver, err := New(cfg, eng)
	require.NoError(t, err)
	require.NoError(t, receiver.Start())
	defer receiver.Stop()

	channels := make([]byte, 512)
	channels[0] = 99
	sendUDP(t, "127.0.0.1:16455", artnet.BuildDMXPacket(0, channels, 1)) // wrong wire universe
	sendUDP(t, "127.0.0.1:16455", []byte("not artnet at all"))

	time.Sleep(150 * time.Millisecond)
	snap, ok := eng.Snapshot(1)
	require.True(t, ok)
	assert.Zero(t, snap.Input[0])
}

func TestSACNReceiverDropsStaleSequence(t *testing.T) {
	eng := newInputEngine(t)

	cfg := Config{
		Protocol:     "sacn",
		UniverseID:   1,
		BindAddr:     "127.0.0.1",
		Port:         15568,
		WireUniverse: 1,
	}
	receiver, err := New(cfg, eng)
	require.NoError(t, err)
	require.NoError(t, receiver.Start())
	defer receiver.Stop()

	var cid [16]byte
	channels := make([]byte, 512)

	channels[0] = 100
	sendUDP(t, "127.0.0.1:15568", sacn.BuildDataPacket(1, channels, cid, "test", 100, 10))
	require.Eventually(t, func() bool {
		snap, ok := eng.Snapshot(1)
		return ok && snap.Input[0] == 100
	}, time.Second, 5*time.Millisecond)

	// A stale sequence (5 < 10, inside the tolerance window) is dropped.
	channels[0] = 50
	sendUDP(t, "127.0.0.1:15568", sacn.BuildDataPacket(1, channels, cid, "test", 100, 5))
	time.Sleep(150 * time.Millisecond)
	snap, _ := eng.Snapshot(1)
	assert.Equal(t, byte(100), snap.Input[0])

	// A newer sequence is accepted.
	channels[0] = 60
	sendUDP(t, "127.0.0.1:15568", sacn.BuildDataPacket(1, channels, cid, "test", 100, 11))
	require.Eventually(t, func() bool {
		snap, ok := eng.Snapshot(1)
		return ok && snap.Input[0] == 60
	}, time.Second, 5*time.Millisecond)
}

func TestConfigWindow(t *testing.T) {
	cfg := Config{ChannelStart: 10, ChannelEnd: 12}
	cfg.normalize()

	full := make([]byte, 512)
	full[9], full[10], full[11] = 1, 2, 3
	start, values := cfg.window(full)
	assert.Equal(t, 10, start)
	assert.Equal(t, []byte{1, 2, 3}, values)

	// Defaults cover the whole universe.
	cfg = Config{}
	cfg.normalize()
	start, values = cfg.window(full)
	assert.Equal(t, 1, start)
	assert.Len(t, values, 512)

	// A window past the frame length yields nothing.
	cfg = Config{ChannelStart: 100, ChannelEnd: 120}
	cfg.normalize()
	_, values = cfg.window(full[:50])
	assert.Empty(t, values)
}

func TestConfigAllowed(t *testing.T) {
	cfg := Config{}
	assert.True(t, cfg.allowed("1.2.3.4"), "empty filter accepts everyone")

	cfg = Config{AllowedIPs: []string{"192.168.1.*", "10.0.0.0/8"}}
	assert.True(t, cfg.allowed("192.168.1.20"))
	assert.True(t, cfg.allowed("10.9.9.9"))
	assert.False(t, cfg.allowed("172.16.0.1"))
}

func TestNewRejectsUnknownProtocol(t *testing.T) {
	_, err := New(Config{Protocol: "osc"}, nil)
	assert.Error(t, err)
}
