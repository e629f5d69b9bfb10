// Package input runs the DMX input receivers: one goroutine per
// configured universe input, parsing Art-Net or sACN datagrams into
// normalized frames for the engine. Receive errors are logged and
// counted but never fatal; a receiver stays alive until stopped.
package input

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/services/engine"
)

// Receiver is one running protocol listener.
type Receiver interface {
	Start() error
	Stop()
	Protocol() string
}

// Config describes one universe input. It is decoded from the
// universe's input_config_json column.
type Config struct {
	Protocol     string   `json:"-"`
	UniverseID   int      `json:"-"` // internal universe id
	BindAddr     string   `json:"bind_addr"`
	Port         int      `json:"port"`
	WireUniverse int      `json:"universe"` // protocol-level universe number
	ChannelStart int      `json:"channel_start"`
	ChannelEnd   int      `json:"channel_end"`
	AllowedIPs   []string `json:"allowed_ips"`
	SourceName   string   `json:"source_name"`
}

// normalize fills window defaults and clamps to 1..512.
func (c *Config) normalize() {
	if c.ChannelStart < 1 {
		c.ChannelStart = 1
	}
	if c.ChannelEnd < c.ChannelStart || c.ChannelEnd > 512 {
		c.ChannelEnd = 512
	}
}

// allowed checks a sender address against the configured IP filters.
// An empty filter list accepts everyone.
func (c *Config) allowed(ip string) bool {
	if len(c.AllowedIPs) == 0 {
		return true
	}
	for _, pattern := range c.AllowedIPs {
		if auth.IPMatches(ip, pattern) {
			return true
		}
	}
	return false
}

// window cuts a full frame down to the receiver's channel window.
func (c *Config) window(channels []byte) (start int, values []byte) {
	end := c.ChannelEnd
	if end > len(channels) {
		end = len(channels)
	}
	if c.ChannelStart > end {
		return c.ChannelStart, nil
	}
	return c.ChannelStart, channels[c.ChannelStart-1 : end]
}

// New builds a receiver for a config.
func New(cfg Config, eng *engine.Engine) (Receiver, error) {
	cfg.normalize()
	switch cfg.Protocol {
	case "artnet":
		return newArtNetReceiver(cfg, eng), nil
	case "sacn":
		return newSACNReceiver(cfg, eng), nil
	default:
		return nil, fmt.Errorf("unknown input protocol %q", cfg.Protocol)
	}
}

// Manager owns the receiver set and rebuilds it on IO config changes.
type Manager struct {
	mu        sync.Mutex
	eng       *engine.Engine
	receivers []Receiver
}

// NewManager creates an empty receiver manager.
func NewManager(eng *engine.Engine) *Manager {
	return &Manager{eng: eng}
}

// Reload replaces the running receivers with ones built from the given
// universes. Universes with input disabled or type none are skipped.
func (m *Manager) Reload(universes []models.Universe) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.receivers {
		r.Stop()
	}
	m.receivers = nil

	for _, u := range universes {
		if !u.InputEnabled || u.InputType == "" || u.InputType == "none" {
			continue
		}
		cfg := Config{Protocol: u.InputType, UniverseID: u.ID}
		if u.InputConfigJSON != "" {
			if err := json.Unmarshal([]byte(u.InputConfigJSON), &cfg); err != nil {
				log.Printf("⚠️  Universe %d: bad input config: %v", u.ID, err)
				continue
			}
		}
		receiver, err := New(cfg, m.eng)
		if err != nil {
			log.Printf("⚠️  Universe %d: %v", u.ID, err)
			continue
		}
		if err := receiver.Start(); err != nil {
			log.Printf("⚠️  Universe %d: input receiver failed to start: %v", u.ID, err)
			continue
		}
		m.receivers = append(m.receivers, receiver)
	}

	if len(m.receivers) > 0 {
		log.Printf("📥 Input receivers running: %d", len(m.receivers))
	}
}

// Stop shuts down every receiver.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.receivers {
		r.Stop()
	}
	m.receivers = nil
}
