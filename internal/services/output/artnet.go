package output

import (
	"fmt"
	"net"

	"github.com/dmxx/dmxx-go/pkg/artnet"
)

// artnetSender broadcasts ArtDmx packets to a host (default interface
// broadcast) on port 6454.
type artnetSender struct {
	conn         *net.UDPConn
	wireUniverse int
}

func newArtNetSender(cfg Config) (*artnetSender, error) {
	host := cfg.Host
	if host == "" {
		host = "255.255.255.255"
	}
	port := cfg.Port
	if port == 0 {
		port = artnet.DefaultPort
	}
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	return &artnetSender{conn: conn, wireUniverse: cfg.WireUniverse}, nil
}

func (s *artnetSender) Protocol() string { return "artnet" }

func (s *artnetSender) Send(sequence byte, values [512]byte) error {
	packet := artnet.BuildDMXPacket(s.wireUniverse, values[:], sequence)
	_, err := s.conn.Write(packet)
	return err
}

func (s *artnetSender) Close() error { return s.conn.Close() }
