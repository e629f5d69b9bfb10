package input

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/dmxx/dmxx-go/internal/metrics"
	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/pkg/artnet"
)

// artnetReceiver listens for ArtDmx datagrams on UDP 6454 and feeds
// matching frames into the engine.
type artnetReceiver struct {
	mu      sync.Mutex
	cfg     Config
	eng     *engine.Engine
	conn    *net.UDPConn
	running bool
}

func newArtNetReceiver(cfg Config, eng *engine.Engine) *artnetReceiver {
	return &artnetReceiver{cfg: cfg, eng: eng}
}

func (r *artnetReceiver) Protocol() string { return "artnet" }

func (r *artnetReceiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	port := r.cfg.Port
	if port == 0 {
		port = artnet.DefaultPort
	}
	bind := r.cfg.BindAddr
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", bind, port))
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return err
	}
	r.conn = conn
	r.running = true

	log.Printf("📥 Art-Net input: universe %d listening on %s (wire universe %d)",
		r.cfg.UniverseID, conn.LocalAddr(), r.cfg.WireUniverse)
	go r.receiveLoop(conn)
	return nil
}

func (r *artnetReceiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	_ = r.conn.Close()
}

func (r *artnetReceiver) receiveLoop(conn *net.UDPConn) {
	buf := make([]byte, 1024)
	for {
		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			r.mu.Lock()
			running := r.running
			r.mu.Unlock()
			if !running {
				return
			}
			log.Printf("⚠️  Art-Net receive error: %v", err)
			continue
		}

		frame, ok := artnet.ParseDMXPacket(buf[:n])
		if !ok {
			metrics.InputPacketsDropped.WithLabelValues("artnet", "malformed").Inc()
			continue
		}
		if frame.Universe != r.cfg.WireUniverse {
			metrics.InputPacketsDropped.WithLabelValues("artnet", "universe_mismatch").Inc()
			continue
		}
		if !r.cfg.allowed(sender.IP.String()) {
			metrics.InputPacketsDropped.WithLabelValues("artnet", "ip_filtered").Inc()
			continue
		}

		metrics.InputPacketsTotal.WithLabelValues("artnet").Inc()
		start, values := r.cfg.window(frame.Channels[:frame.Length])
		if len(values) == 0 {
			continue
		}
		r.eng.ApplyInput(engine.InputFrame{
			UniverseID:   r.cfg.UniverseID,
			ChannelStart: start,
			Values:       values,
			SourceName:   sender.IP.String(),
		})
	}
}
