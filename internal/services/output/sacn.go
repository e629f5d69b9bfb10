package output

import (
	"fmt"
	"net"

	"github.com/dmxx/dmxx-go/pkg/sacn"
)

// sacnSender transmits E1.31 data packets, by default to the universe's
// multicast group on port 5568.
type sacnSender struct {
	conn         *net.UDPConn
	wireUniverse int
	cid          [16]byte
	sourceName   string
	priority     byte
}

func newSACNSender(cfg Config, cid [16]byte) (*sacnSender, error) {
	host := cfg.Host
	if host == "" {
		host = sacn.MulticastAddr(cfg.WireUniverse)
	}
	port := cfg.Port
	if port == 0 {
		port = sacn.DefaultPort
	}
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}

	priority := byte(sacn.DefaultPriority)
	if cfg.Priority > 0 && cfg.Priority <= 200 {
		priority = byte(cfg.Priority)
	}
	sourceName := cfg.SourceName
	if sourceName == "" {
		sourceName = "dmxx"
	}
	return &sacnSender{
		conn:         conn,
		wireUniverse: cfg.WireUniverse,
		cid:          cid,
		sourceName:   sourceName,
		priority:     priority,
	}, nil
}

func (s *sacnSender) Protocol() string { return "sacn" }

func (s *sacnSender) Send(sequence byte, values [512]byte) error {
	packet := sacn.BuildDataPacket(s.wireUniverse, values[:], s.cid, s.sourceName, s.priority, sequence)
	_, err := s.conn.Write(packet)
	return err
}

func (s *sacnSender) Close() error { return s.conn.Close() }
