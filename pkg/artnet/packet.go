// Package artnet provides Art-Net protocol packet building and parsing.
package artnet

import (
	"encoding/binary"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength uint16 = 512
	// HeaderSize is the size of the ArtDmx header preceding the data.
	HeaderSize = 18
	// PacketSize is the total size of an Art-Net DMX packet.
	PacketSize = HeaderSize + DMXDataLength
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// BuildDMXPacket creates an ArtDmx packet for the given wire universe.
// Universe is the 15-bit Art-Net port address (net/subnet/universe packing)
// as configured for the output. Channels should be exactly 512 bytes; shorter
// slices are zero padded. Sequence increments per packet (1-255 cyclic, 0
// disables sequencing) so receivers can detect out-of-order UDP delivery.
func BuildDMXPacket(universe int, channels []byte, sequence byte) []byte {
	packet := make([]byte, PacketSize)

	copy(packet[0:8], ArtNetID)                                    // ID (8 bytes): "Art-Net\0"
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)         // OpCode: 0x5000 for DMX
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)     // Protocol version: 14
	packet[12] = sequence                                          // Sequence
	packet[13] = 0                                                 // Physical input port
	binary.LittleEndian.PutUint16(packet[14:16], uint16(universe)) // SubUni + Net
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)       // Data length: 512

	if len(channels) >= 512 {
		copy(packet[18:530], channels[:512])
	} else {
		copy(packet[18:18+len(channels)], channels)
	}

	return packet
}

// DMXFrame holds the payload of a parsed ArtDmx packet.
type DMXFrame struct {
	Universe int
	Sequence byte
	Length   int
	Channels [DMXDataLength]byte
}

// ParseDMXPacket parses an ArtDmx packet. It returns false for anything that
// is not a well-formed Art-Net DMX datagram (wrong ID, wrong opcode, short
// header, truncated data).
func ParseDMXPacket(data []byte) (DMXFrame, bool) {
	if len(data) < HeaderSize {
		return DMXFrame{}, false
	}
	for i, b := range ArtNetID {
		if data[i] != b {
			return DMXFrame{}, false
		}
	}
	if binary.LittleEndian.Uint16(data[8:10]) != OpCodeDMX {
		return DMXFrame{}, false
	}

	length := int(binary.BigEndian.Uint16(data[16:18]))
	if length > int(DMXDataLength) {
		length = int(DMXDataLength)
	}
	if len(data) < HeaderSize+length {
		return DMXFrame{}, false
	}

	frame := DMXFrame{
		Universe: int(binary.LittleEndian.Uint16(data[14:16])),
		Sequence: data[12],
		Length:   length,
	}
	copy(frame.Channels[:], data[HeaderSize:HeaderSize+length])
	return frame, true
}
