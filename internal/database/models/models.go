// Package models contains the database model definitions.
// These models map directly to the SQLite database tables.
package models

import (
	"time"
)

// Universe represents one 512-channel DMX address space.
// Table: universes
type Universe struct {
	ID               int       `gorm:"column:id;primaryKey"`
	Label            string    `gorm:"column:label"`
	PassthroughMode  string    `gorm:"column:passthrough_mode;default:off"` // off, view_only, faders_output, output_only
	MergeMode        string    `gorm:"column:merge_mode;default:htp"`       // htp, ltp
	MasterFaderColor string    `gorm:"column:master_fader_color"`
	InputType        string    `gorm:"column:input_type;default:none"` // none, artnet, sacn
	InputConfigJSON  string    `gorm:"column:input_config_json"`
	InputEnabled     bool      `gorm:"column:input_enabled;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Outputs []UniverseOutput `gorm:"foreignKey:UniverseID"`
}

func (Universe) TableName() string { return "universes" }

// UniverseOutput is one configured output of a universe. A universe may
// transmit to multiple destinations at once.
// Table: universe_outputs
type UniverseOutput struct {
	ID         int    `gorm:"column:id;primaryKey"`
	UniverseID int    `gorm:"column:universe_id;index"`
	Protocol   string `gorm:"column:protocol"` // artnet, sacn, mock
	ConfigJSON string `gorm:"column:config_json"`
	Enabled    bool   `gorm:"column:enabled;default:true"`
	Priority   int    `gorm:"column:priority;default:0"`
}

func (UniverseOutput) TableName() string { return "universe_outputs" }

// Fixture is a profile record describing channel count and per-offset roles.
// Table: fixtures
type Fixture struct {
	ID             int       `gorm:"column:id;primaryKey"`
	Name           string    `gorm:"column:name"`
	Manufacturer   string    `gorm:"column:manufacturer"`
	DefinitionJSON string    `gorm:"column:definition_json"` // per-offset channel roles
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Fixture) TableName() string { return "fixtures" }

// Patch binds a fixture to a starting channel within a universe. No two
// patches may overlap channel ranges in the same universe.
// Table: patches
type Patch struct {
	ID           int    `gorm:"column:id;primaryKey"`
	FixtureID    int    `gorm:"column:fixture_id;index"`
	UniverseID   int    `gorm:"column:universe_id;index"`
	StartChannel int    `gorm:"column:start_channel"`
	Label        string `gorm:"column:label"`
	GroupColor   string `gorm:"column:group_color"`

	Fixture *Fixture `gorm:"foreignKey:FixtureID"`
}

func (Patch) TableName() string { return "patches" }

// Scene is a captured snapshot of universe and group values with a
// transition policy.
// Table: scenes
type Scene struct {
	ID                      int       `gorm:"column:id;primaryKey"`
	Name                    string    `gorm:"column:name"`
	TransitionType          string    `gorm:"column:transition_type;default:instant"` // instant, fade, crossfade
	DurationMs              int       `gorm:"column:duration_ms;default:0"`
	IncludesGlobalMaster    bool      `gorm:"column:includes_global_master;default:false"`
	IncludesUniverseMasters bool      `gorm:"column:includes_universe_masters;default:false"`
	GlobalMaster            *int      `gorm:"column:global_master"`          // captured when IncludesGlobalMaster
	UniverseMastersJSON     string    `gorm:"column:universe_masters_json"`  // universe id -> master, when IncludesUniverseMasters
	CreatedAt               time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Values      []SceneValue      `gorm:"foreignKey:SceneID"`
	GroupValues []SceneGroupValue `gorm:"foreignKey:SceneID"`
}

func (Scene) TableName() string { return "scenes" }

// SceneValue is one captured channel value within a scene.
// Table: scene_values
type SceneValue struct {
	ID         int `gorm:"column:id;primaryKey"`
	SceneID    int `gorm:"column:scene_id;index"`
	UniverseID int `gorm:"column:universe_id"`
	Channel    int `gorm:"column:channel"`
	Value      int `gorm:"column:value"`
}

func (SceneValue) TableName() string { return "scene_values" }

// SceneGroupValue is one captured group master value within a scene.
// The group id is not a foreign key; the group may be deleted later.
// Table: scene_group_values
type SceneGroupValue struct {
	ID          int `gorm:"column:id;primaryKey"`
	SceneID     int `gorm:"column:scene_id;index"`
	GroupID     int `gorm:"column:group_id"`
	MasterValue int `gorm:"column:master_value"`
}

func (SceneGroupValue) TableName() string { return "scene_group_values" }

// Grid is a named container of groups with an ordering/color hint.
// Table: grids
type Grid struct {
	ID       int    `gorm:"column:id;primaryKey"`
	Name     string `gorm:"column:name"`
	Color    string `gorm:"column:color"`
	Position int    `gorm:"column:position;default:0"`

	Groups []Group `gorm:"foreignKey:GridID"`
}

func (Grid) TableName() string { return "grids" }

// Group is a named aggregation of channels driven by a master value.
// Table: groups
type Group struct {
	ID             int    `gorm:"column:id;primaryKey"`
	Name           string `gorm:"column:name"`
	Mode           string `gorm:"column:mode;default:master_scales"` // master_scales, master_sets, master_latches
	Enabled        bool   `gorm:"column:enabled;default:true"`
	Color          string `gorm:"column:color"`
	MasterUniverse *int   `gorm:"column:master_universe"` // nil = synthetic master
	MasterChannel  *int   `gorm:"column:master_channel"`
	MasterValue    int    `gorm:"column:master_value;default:0"`
	GridID         int    `gorm:"column:grid_id;index"`

	Members []GroupMember `gorm:"foreignKey:GroupID"`
}

func (Group) TableName() string { return "groups" }

// GroupMember is one member channel or virtual target of a group.
// Virtual members target the global master (VirtualTarget "global_master")
// or a universe master ("universe_master" with UniverseID set).
// Table: group_members
type GroupMember struct {
	ID            int    `gorm:"column:id;primaryKey"`
	GroupID       int    `gorm:"column:group_id;index"`
	UniverseID    int    `gorm:"column:universe_id"`
	Channel       int    `gorm:"column:channel"`
	VirtualTarget string `gorm:"column:virtual_target"` // "", global_master, universe_master, group
	TargetGroupID int    `gorm:"column:target_group_id"`
}

func (GroupMember) TableName() string { return "group_members" }

// MappingTable holds channel remap rules. At most one table is enabled
// at a time.
// Table: mapping_tables
type MappingTable struct {
	ID               int    `gorm:"column:id;primaryKey"`
	Name             string `gorm:"column:name"`
	Enabled          bool   `gorm:"column:enabled;default:false"`
	UnmappedBehavior string `gorm:"column:unmapped_behavior;default:passthrough"` // passthrough, ignore

	Rules []MappingRule `gorm:"foreignKey:TableID"`
}

func (MappingTable) TableName() string { return "mapping_tables" }

// MappingRule routes one source channel to a destination channel or a
// virtual target (global master or a universe master).
// Table: mapping_rules
type MappingRule struct {
	ID          int    `gorm:"column:id;primaryKey"`
	TableID     int    `gorm:"column:table_id;index"`
	SrcUniverse int    `gorm:"column:src_universe"`
	SrcChannel  int    `gorm:"column:src_channel"`
	DstKind     string `gorm:"column:dst_kind;default:channel"` // channel, global_master, universe_master
	DstUniverse int    `gorm:"column:dst_universe"`
	DstChannel  int    `gorm:"column:dst_channel"`
}

func (MappingRule) TableName() string { return "mapping_rules" }

// ParkedChannel locks a channel to a fixed value.
// Table: parked_channels
type ParkedChannel struct {
	ID         int `gorm:"column:id;primaryKey"`
	UniverseID int `gorm:"column:universe_id;index"`
	Channel    int `gorm:"column:channel"`
	Value      int `gorm:"column:value"`
}

func (ParkedChannel) TableName() string { return "parked_channels" }

// Profile is an access profile consumed by the auth gate. A nil/empty
// AllowedGridsJSON or AllowedScenesJSON means "all".
// Table: profiles
type Profile struct {
	ID                int     `gorm:"column:id;primaryKey"`
	Name              string  `gorm:"column:name;uniqueIndex"`
	Password          *string `gorm:"column:password"` // optional when IP-based
	IsAdmin           bool    `gorm:"column:is_admin;default:false"`
	IPAddressesJSON   string  `gorm:"column:ip_addresses_json"`
	AllowedPagesJSON  string  `gorm:"column:allowed_pages_json"`
	AllowedGridsJSON  *string `gorm:"column:allowed_grids_json"`
	AllowedScenesJSON *string `gorm:"column:allowed_scenes_json"`
	CanPark           bool    `gorm:"column:can_park"`
	CanHighlight      bool    `gorm:"column:can_highlight"`
	CanBypass         bool    `gorm:"column:can_bypass"`
}

func (Profile) TableName() string { return "profiles" }

// Setting is a key/value configuration record (e.g. the persisted sACN CID).
// Table: settings
type Setting struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (Setting) TableName() string { return "settings" }
