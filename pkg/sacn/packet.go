// Package sacn provides sACN (E1.31) data packet building and parsing.
package sacn

import (
	"encoding/binary"
	"fmt"
)

const (
	// DefaultPort is the standard sACN UDP port.
	DefaultPort = 5568
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength = 512
	// PacketSize is the total size of a full E1.31 data packet
	// (root + framing + DMP layers, start code and 512 slots).
	PacketSize = 638
	// DefaultPriority is the default per-universe packet priority.
	DefaultPriority = 100

	rootVector    uint32 = 0x00000004 // VECTOR_ROOT_E131_DATA
	framingVector uint32 = 0x00000002 // VECTOR_E131_DATA_PACKET
	dmpVector     byte   = 0x02       // VECTOR_DMP_SET_PROPERTY

	// SequenceTolerance is the wraparound window for out-of-sequence
	// detection: a packet whose sequence number is behind the last seen
	// one by fewer than this many steps is dropped.
	SequenceTolerance = 20
)

// acnIdentifier is the fixed ACN packet identifier "ASC-E1.17".
var acnIdentifier = []byte{0x41, 0x53, 0x43, 0x2d, 0x45, 0x31, 0x2e, 0x31, 0x37, 0x00, 0x00, 0x00}

// MulticastAddr returns the E1.31 multicast group for a universe
// (239.255.<hi>.<lo> with the universe number in big-endian).
func MulticastAddr(universe int) string {
	return fmt.Sprintf("239.255.%d.%d", (universe>>8)&0xFF, universe&0xFF)
}

// BuildDataPacket creates an E1.31 data packet. CID must be 16 bytes,
// sourceName is truncated to 63 bytes, channels shorter than 512 are zero
// padded. Sequence increments per universe.
func BuildDataPacket(universe int, channels []byte, cid [16]byte, sourceName string, priority byte, sequence byte) []byte {
	packet := make([]byte, PacketSize)

	// Root layer
	binary.BigEndian.PutUint16(packet[0:2], 0x0010) // preamble size
	binary.BigEndian.PutUint16(packet[2:4], 0x0000) // postamble size
	copy(packet[4:16], acnIdentifier)
	binary.BigEndian.PutUint16(packet[16:18], 0x7000|uint16(PacketSize-16)) // flags + length
	binary.BigEndian.PutUint32(packet[18:22], rootVector)
	copy(packet[22:38], cid[:])

	// Framing layer
	binary.BigEndian.PutUint16(packet[38:40], 0x7000|uint16(PacketSize-38))
	binary.BigEndian.PutUint32(packet[40:44], framingVector)
	name := []byte(sourceName)
	if len(name) > 63 {
		name = name[:63]
	}
	copy(packet[44:108], name)
	packet[108] = priority
	binary.BigEndian.PutUint16(packet[109:111], 0) // sync address
	packet[111] = sequence
	packet[112] = 0 // options
	binary.BigEndian.PutUint16(packet[113:115], uint16(universe))

	// DMP layer
	binary.BigEndian.PutUint16(packet[115:117], 0x7000|uint16(PacketSize-115))
	packet[117] = dmpVector
	packet[118] = 0xA1                                // address & data type
	binary.BigEndian.PutUint16(packet[119:121], 0)    // first property address
	binary.BigEndian.PutUint16(packet[121:123], 1)    // address increment
	binary.BigEndian.PutUint16(packet[123:125], 513)  // property value count
	packet[125] = 0                                   // DMX start code

	if len(channels) >= DMXDataLength {
		copy(packet[126:638], channels[:DMXDataLength])
	} else {
		copy(packet[126:126+len(channels)], channels)
	}

	return packet
}

// DataFrame holds the payload of a parsed E1.31 data packet.
type DataFrame struct {
	Universe int
	Priority byte
	Sequence byte
	Channels [DMXDataLength]byte
	Length   int
}

// ParseDataPacket parses an E1.31 data packet. Packets with the wrong ACN
// identifier or a non-zero DMX start code are rejected.
func ParseDataPacket(data []byte) (DataFrame, bool) {
	if len(data) < 126 {
		return DataFrame{}, false
	}
	for i, b := range acnIdentifier {
		if data[4+i] != b {
			return DataFrame{}, false
		}
	}
	if data[125] != 0 { // start code: only null-start DMX
		return DataFrame{}, false
	}

	length := len(data) - 126
	if length > DMXDataLength {
		length = DMXDataLength
	}

	frame := DataFrame{
		Universe: int(binary.BigEndian.Uint16(data[113:115])),
		Priority: data[108],
		Sequence: data[111],
		Length:   length,
	}
	copy(frame.Channels[:], data[126:126+length])
	return frame, true
}

// SequenceValid reports whether a received sequence number should be
// accepted given the previously seen one. Newer-or-equal packets are
// accepted, with wraparound tolerance of SequenceTolerance: anything less
// than 20 steps behind is considered stale and dropped.
func SequenceValid(last, received byte) bool {
	diff := int8(received - last)
	return diff >= 0 || diff <= -SequenceTolerance
}
