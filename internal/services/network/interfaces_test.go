package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastFor(t *testing.T) {
	broadcast := broadcastFor(net.ParseIP("192.168.1.50"), net.CIDRMask(24, 32))
	require.NotNil(t, broadcast)
	assert.Equal(t, "192.168.1.255", broadcast.String())

	broadcast = broadcastFor(net.ParseIP("10.4.0.9"), net.CIDRMask(8, 32))
	require.NotNil(t, broadcast)
	assert.Equal(t, "10.255.255.255", broadcast.String())

	assert.Nil(t, broadcastFor(net.ParseIP("fe80::1"), net.CIDRMask(64, 128)))
}

func TestInterfaceType(t *testing.T) {
	assert.Equal(t, "ethernet", interfaceType("eth0"))
	assert.Equal(t, "ethernet", interfaceType("enp3s0"))
	assert.Equal(t, "wifi", interfaceType("wlan0"))
	assert.Equal(t, "wifi", interfaceType("en0"))
	assert.Equal(t, "other", interfaceType("tun0"))
}

func TestInterfacesAlwaysIncludesFallbacks(t *testing.T) {
	options, err := Interfaces()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(options), 2)

	last := options[len(options)-1]
	assert.Equal(t, "global-broadcast", last.Name)
	assert.Equal(t, "255.255.255.255", last.Broadcast)
	assert.Equal(t, "localhost", options[len(options)-2].Name)
}
