package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingDisabledPassesThrough(t *testing.T) {
	frame := InputFrame{UniverseID: 1, ChannelStart: 1, Values: []byte{10, 20, 30}}

	writes := ApplyMapping(frame, nil)
	require.Len(t, writes, 3)
	assert.Equal(t, MappedWrite{Kind: DstChannel, Universe: 1, Channel: 1, Value: 10}, writes[0])
	assert.Equal(t, MappedWrite{Kind: DstChannel, Universe: 1, Channel: 3, Value: 30}, writes[2])

	disabled := &MappingConfig{Enabled: false, Rules: []MappingRuleConfig{
		{SrcUniverse: 1, SrcChannel: 1, DstKind: DstChannel, DstUniverse: 2, DstChannel: 5},
	}}
	writes = ApplyMapping(frame, disabled)
	require.Len(t, writes, 3)
	assert.Equal(t, 1, writes[0].Universe)
}

func TestMappingRemapsWithPassthrough(t *testing.T) {
	table := &MappingConfig{
		Enabled:          true,
		UnmappedBehavior: "passthrough",
		Rules: []MappingRuleConfig{
			{SrcUniverse: 1, SrcChannel: 1, DstKind: DstChannel, DstUniverse: 2, DstChannel: 5},
		},
	}
	frame := InputFrame{UniverseID: 1, ChannelStart: 1, Values: []byte{128, 64}}

	writes := ApplyMapping(frame, table)
	require.Len(t, writes, 2)
	assert.Equal(t, MappedWrite{Kind: DstChannel, Universe: 2, Channel: 5, Value: 128}, writes[0])
	// Unmapped channel 2 passes through at its own position.
	assert.Equal(t, MappedWrite{Kind: DstChannel, Universe: 1, Channel: 2, Value: 64}, writes[1])
}

func TestMappingIgnoreDropsUnmapped(t *testing.T) {
	table := &MappingConfig{
		Enabled:          true,
		UnmappedBehavior: "ignore",
		Rules: []MappingRuleConfig{
			{SrcUniverse: 1, SrcChannel: 1, DstKind: DstChannel, DstUniverse: 2, DstChannel: 5},
		},
	}
	frame := InputFrame{UniverseID: 1, ChannelStart: 1, Values: []byte{128, 64}}

	writes := ApplyMapping(frame, table)
	require.Len(t, writes, 1)
	assert.Equal(t, 5, writes[0].Channel)
}

func TestMappingFanOut(t *testing.T) {
	table := &MappingConfig{
		Enabled:          true,
		UnmappedBehavior: "ignore",
		Rules: []MappingRuleConfig{
			{SrcUniverse: 1, SrcChannel: 1, DstKind: DstChannel, DstUniverse: 2, DstChannel: 5},
			{SrcUniverse: 1, SrcChannel: 1, DstKind: DstChannel, DstUniverse: 3, DstChannel: 9},
			{SrcUniverse: 1, SrcChannel: 1, DstKind: DstUniverseMaster, DstUniverse: 4},
		},
	}
	frame := InputFrame{UniverseID: 1, ChannelStart: 1, Values: []byte{200}}

	writes := ApplyMapping(frame, table)
	require.Len(t, writes, 3)
	kinds := map[string]int{}
	for _, w := range writes {
		kinds[w.Kind]++
		assert.Equal(t, byte(200), w.Value)
	}
	assert.Equal(t, 2, kinds[DstChannel])
	assert.Equal(t, 1, kinds[DstUniverseMaster])
}

func TestMappingRespectsChannelWindow(t *testing.T) {
	// A receiver window starting at channel 10.
	frame := InputFrame{UniverseID: 1, ChannelStart: 10, Values: []byte{1, 2}}

	writes := ApplyMapping(frame, nil)
	require.Len(t, writes, 2)
	assert.Equal(t, 10, writes[0].Channel)
	assert.Equal(t, 11, writes[1].Channel)
}
