// Package output transmits post-pipeline universe frames to their
// configured destinations. A universe may have several outputs at once
// (Art-Net broadcast plus an sACN multicast, say); send failures are
// counted and logged, never propagated back into the engine tick.
package output

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/metrics"
)

// Sender transmits one universe's frames over a single protocol.
type Sender interface {
	Send(sequence byte, values [512]byte) error
	Protocol() string
	Close() error
}

// Config describes one output destination, decoded from the output's
// config_json column.
type Config struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	WireUniverse int    `json:"universe"`
	Priority     int    `json:"priority"`
	SourceName   string `json:"source_name"`
}

// Dispatcher fans engine frames out to the senders of each universe.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[int][]Sender
	cid     [16]byte
}

// NewDispatcher creates a dispatcher. cid is the stable sACN component
// identifier persisted with the configuration.
func NewDispatcher(cid uuid.UUID) *Dispatcher {
	return &Dispatcher{
		senders: make(map[int][]Sender),
		cid:     cid,
	}
}

// Reload replaces all senders from the given universes' output records.
func (d *Dispatcher) Reload(universes []models.Universe) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, senders := range d.senders {
		for _, s := range senders {
			_ = s.Close()
		}
	}
	d.senders = make(map[int][]Sender)

	total := 0
	for _, u := range universes {
		for _, out := range u.Outputs {
			if !out.Enabled {
				continue
			}
			var cfg Config
			if out.ConfigJSON != "" {
				if err := json.Unmarshal([]byte(out.ConfigJSON), &cfg); err != nil {
					log.Printf("⚠️  Universe %d: bad output config: %v", u.ID, err)
					continue
				}
			}
			sender, err := d.newSender(out.Protocol, cfg)
			if err != nil {
				log.Printf("⚠️  Universe %d: %s output failed: %v", u.ID, out.Protocol, err)
				continue
			}
			d.senders[u.ID] = append(d.senders[u.ID], sender)
			total++
		}
	}
	if total > 0 {
		log.Printf("📤 Outputs configured: %d senders across %d universes", total, len(d.senders))
	}
}

func (d *Dispatcher) newSender(protocol string, cfg Config) (Sender, error) {
	switch protocol {
	case "artnet":
		return newArtNetSender(cfg)
	case "sacn":
		return newSACNSender(cfg, d.cid)
	case "mock":
		return NewMockSender(), nil
	default:
		return nil, errUnknownProtocol(protocol)
	}
}

// Dispatch is the engine's output hook. It must never block: all
// senders write UDP datagrams or in-memory buffers.
func (d *Dispatcher) Dispatch(universeID int, sequence byte, values [512]byte) {
	d.mu.RLock()
	senders := d.senders[universeID]
	d.mu.RUnlock()

	for _, s := range senders {
		if err := s.Send(sequence, values); err != nil {
			metrics.OutputErrorsTotal.WithLabelValues(s.Protocol()).Inc()
			log.Printf("⚠️  %s send failed for universe %d: %v", s.Protocol(), universeID, err)
			continue
		}
		metrics.OutputFramesTotal.WithLabelValues(s.Protocol()).Inc()
	}
}

// Senders returns the senders of one universe, for tests and status.
func (d *Dispatcher) Senders(universeID int) []Sender {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Sender(nil), d.senders[universeID]...)
}

// Close shuts every sender down.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, senders := range d.senders {
		for _, s := range senders {
			_ = s.Close()
		}
	}
	d.senders = make(map[int][]Sender)
}

type errUnknownProtocol string

func (e errUnknownProtocol) Error() string {
	return "unknown output protocol " + string(e)
}
