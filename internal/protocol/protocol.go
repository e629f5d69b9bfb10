// Package protocol defines the JSON message envelopes exchanged with
// operator clients over the live message channel, and the event types the
// server broadcasts. Every channel-affecting event carries a source
// attribution string so clients can reconcile optimistic local updates.
package protocol

import "encoding/json"

// Command types (client -> server).
const (
	CmdAuth                   = "auth"
	CmdSetChannel             = "set_channel"
	CmdSetChannels            = "set_channels"
	CmdSetActiveScene         = "set_active_scene"
	CmdSetGlobalGrandmaster   = "set_global_grandmaster"
	CmdSetUniverseGrandmaster = "set_universe_grandmaster"
	CmdSetGroupValue          = "set_group_value"
	CmdGetValues              = "get_values"
	CmdGetInputValues         = "get_input_values"
	CmdGetAllUniverses        = "get_all_universes"
	CmdGetAllInputValues      = "get_all_input_values"
	CmdPark                   = "park"
	CmdUnpark                 = "unpark"
	CmdHighlightStart         = "highlight_start"
	CmdHighlightStop          = "highlight_stop"
	CmdSetInputBypass         = "set_input_bypass"
)

// Event types (server -> client).
const (
	EventConnected          = "connected"
	EventError              = "error"
	EventChannelChange      = "channel_change"
	EventValues             = "values"
	EventAllValues          = "all_values"
	EventInputValues        = "input_values"
	EventAllInputValues     = "all_input_values"
	EventBlackout           = "blackout"
	EventActiveSceneChanged = "active_scene_changed"
	EventHighlightUpdate    = "highlight_update"
	EventParkUpdate         = "park_update"
	EventGrandmasterChanged = "grandmaster_changed"
	EventScenesChanged      = "scenes_changed"
	EventPatchesChanged     = "patches_changed"
	EventFixturesChanged    = "fixtures_changed"
	EventIOChanged          = "io_changed"
	EventMappingChanged     = "mapping_changed"
	EventGroupsChanged      = "groups_changed"
	EventGroupValueChanged  = "group_value_changed"
	EventInputBypassChanged = "input_bypass_changed"
)

// Command is the envelope for client -> server messages. Fields are a
// union over all command types; unused fields stay at their zero value.
type Command struct {
	Type       string          `json:"type"`
	Token      string          `json:"token,omitempty"`
	UniverseID int             `json:"universe_id,omitempty"`
	Channel    int             `json:"channel,omitempty"`
	Value      int             `json:"value,omitempty"`
	Values     json.RawMessage `json:"values,omitempty"`
	SceneID    *int            `json:"scene_id,omitempty"`
	GroupID    int             `json:"group_id,omitempty"`
	Channels   []int           `json:"channels,omitempty"`
	DimLevel   int             `json:"dim_level,omitempty"`
	Active     bool            `json:"active,omitempty"`
}

// Event is the envelope for server -> client messages.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ChannelChangeData is the payload of a channel_change event.
type ChannelChangeData struct {
	UniverseID int    `json:"universe_id"`
	Channel    int    `json:"channel"`
	Value      int    `json:"value"`
	Source     string `json:"source"`
}

// ValuesData is the payload of a values or input_values event.
type ValuesData struct {
	UniverseID int    `json:"universe_id"`
	Values     []int  `json:"values"`
	Source     string `json:"source,omitempty"`
}

// ConnectedData is sent once after a successful handshake.
type ConnectedData struct {
	ClientID string                 `json:"client_id"`
	Profile  string                 `json:"profile"`
	Snapshot map[string]interface{} `json:"initial_snapshot,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
}

// GrandmasterData reports master fader changes.
type GrandmasterData struct {
	Global     *int   `json:"global,omitempty"`
	UniverseID *int   `json:"universe_id,omitempty"`
	Value      int    `json:"value"`
	Source     string `json:"source,omitempty"`
}

// GroupValueData reports a group master value change.
type GroupValueData struct {
	GroupID int    `json:"group_id"`
	Value   int    `json:"value"`
	Source  string `json:"source,omitempty"`
}

// ActiveSceneData reports the currently active scene (nil when released).
type ActiveSceneData struct {
	SceneID *int `json:"scene_id"`
}

// HighlightData reports the highlight state.
type HighlightData struct {
	Active   bool       `json:"active"`
	DimLevel int        `json:"dim_level"`
	Channels [][2]int   `json:"channels"` // (universe_id, channel) pairs
}

// ParkData reports the full park table after a park or unpark.
type ParkData struct {
	Parked []ParkEntry `json:"parked"`
}

// ParkEntry is one parked channel.
type ParkEntry struct {
	UniverseID int `json:"universe_id"`
	Channel    int `json:"channel"`
	Value      int `json:"value"`
}

// BoolData is the payload of blackout and input_bypass_changed events.
type BoolData struct {
	Active bool `json:"active"`
}
