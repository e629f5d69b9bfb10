package input

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/dmxx/dmxx-go/internal/metrics"
	"github.com/dmxx/dmxx-go/internal/services/engine"
	"github.com/dmxx/dmxx-go/pkg/sacn"
)

// sacnReceiver joins the E1.31 multicast group for its wire universe
// and feeds in-sequence frames into the engine.
type sacnReceiver struct {
	mu      sync.Mutex
	cfg     Config
	eng     *engine.Engine
	conn    *net.UDPConn
	running bool

	lastSequence byte
	haveSequence bool
}

func newSACNReceiver(cfg Config, eng *engine.Engine) *sacnReceiver {
	return &sacnReceiver{cfg: cfg, eng: eng}
}

func (r *sacnReceiver) Protocol() string { return "sacn" }

func (r *sacnReceiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	port := r.cfg.Port
	if port == 0 {
		port = sacn.DefaultPort
	}

	var conn *net.UDPConn
	var err error
	if r.cfg.BindAddr != "" {
		// Explicit bind for tests and unicast setups.
		addr, rerr := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", r.cfg.BindAddr, port))
		if rerr != nil {
			return rerr
		}
		conn, err = net.ListenUDP("udp4", addr)
	} else {
		group := &net.UDPAddr{
			IP:   net.ParseIP(sacn.MulticastAddr(r.cfg.WireUniverse)),
			Port: port,
		}
		conn, err = net.ListenMulticastUDP("udp4", nil, group)
	}
	if err != nil {
		return err
	}
	r.conn = conn
	r.running = true

	log.Printf("📥 sACN input: universe %d listening on %s (wire universe %d)",
		r.cfg.UniverseID, conn.LocalAddr(), r.cfg.WireUniverse)
	go r.receiveLoop(conn)
	return nil
}

func (r *sacnReceiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	_ = r.conn.Close()
}

func (r *sacnReceiver) receiveLoop(conn *net.UDPConn) {
	buf := make([]byte, sacn.PacketSize+64)
	for {
		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			r.mu.Lock()
			running := r.running
			r.mu.Unlock()
			if !running {
				return
			}
			log.Printf("⚠️  sACN receive error: %v", err)
			continue
		}

		frame, ok := sacn.ParseDataPacket(buf[:n])
		if !ok {
			metrics.InputPacketsDropped.WithLabelValues("sacn", "malformed").Inc()
			continue
		}
		if frame.Universe != r.cfg.WireUniverse {
			metrics.InputPacketsDropped.WithLabelValues("sacn", "universe_mismatch").Inc()
			continue
		}
		if !r.cfg.allowed(sender.IP.String()) {
			metrics.InputPacketsDropped.WithLabelValues("sacn", "ip_filtered").Inc()
			continue
		}
		if r.haveSequence && !sacn.SequenceValid(r.lastSequence, frame.Sequence) {
			metrics.InputPacketsDropped.WithLabelValues("sacn", "out_of_sequence").Inc()
			continue
		}
		r.lastSequence = frame.Sequence
		r.haveSequence = true

		metrics.InputPacketsTotal.WithLabelValues("sacn").Inc()
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
