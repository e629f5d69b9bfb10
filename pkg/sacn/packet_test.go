package sacn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulticastAddr(t *testing.T) {
	assert.Equal(t, "239.255.0.1", MulticastAddr(1))
	assert.Equal(t, "239.255.1.0", MulticastAddr(256))
	assert.Equal(t, "239.255.255.255", MulticastAddr(0xFFFF))
}

func TestBuildDataPacketLayout(t *testing.T) {
	var cid [16]byte
	for i := range cid {
		cid[i] = byte(i)
	}
	channels := make([]byte, 512)
	channels[0] = 255

	packet := BuildDataPacket(257, channels, cid, "test source", 100, 12)
	require.Len(t, packet, PacketSize)

	assert.Equal(t, byte(0x00), packet[0], "preamble size big-endian")
	assert.Equal(t, byte(0x10), packet[1])
	assert.Equal(t, acnIdentifier, packet[4:16])
	assert.Equal(t, cid[:], packet[22:38])
	assert.Equal(t, byte('t'), packet[44], "source name")
	assert.Equal(t, byte(100), packet[108], "priority")
	assert.Equal(t, byte(12), packet[111], "sequence")
	assert.Equal(t, byte(0x01), packet[113], "universe big-endian")
	assert.Equal(t, byte(0x01), packet[114])
	assert.Equal(t, byte(0), packet[125], "DMX start code")
	assert.Equal(t, byte(255), packet[126])
}

func TestParseDataPacketRoundTrip(t *testing.T) {
	var cid [16]byte
	channels := make([]byte, 512)
	channels[511] = 33

	frame, ok := ParseDataPacket(BuildDataPacket(42, channels, cid, "src", 150, 200))
	require.True(t, ok)
	assert.Equal(t, 42, frame.Universe)
	assert.Equal(t, byte(150), frame.Priority)
	assert.Equal(t, byte(200), frame.Sequence)
	assert.Equal(t, 512, frame.Length)
	assert.Equal(t, byte(33), frame.Channels[511])
}

func TestParseDataPacketRejectsMalformed(t *testing.T) {
	_, ok := ParseDataPacket(make([]byte, 10))
	assert.False(t, ok)

	var cid [16]byte
	packet := BuildDataPacket(1, make([]byte, 512), cid, "s", 100, 1)

	bad := append([]byte(nil), packet...)
	bad[4] = 'X' // corrupt ACN identifier
	_, ok = ParseDataPacket(bad)
	assert.False(t, ok)

	bad = append([]byte(nil), packet...)
	bad[125] = 0xCC // non-null start code (RDM etc.)
	_, ok = ParseDataPacket(bad)
	assert.False(t, ok)
}

func TestSequenceValid(t *testing.T) {
	assert.True(t, SequenceValid(10, 10), "equal accepted")
	assert.True(t, SequenceValid(10, 11), "newer accepted")
	assert.False(t, SequenceValid(10, 9), "stale rejected")
	assert.False(t, SequenceValid(10, 250), "just inside window rejected")

	// Wraparound: 255 -> 0 is one step forward.
	assert.True(t, SequenceValid(255, 0))
	assert.True(t, SequenceValid(250, 10))

	// Far behind (beyond the tolerance window) counts as a restart.
	assert.True(t, SequenceValid(10, 200))
}
