// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Channel Count     | uint16         | 2            | Number of channels (C)  |
| Value Count       | uint16         | 2            | Values per channel (N)  |
| Values            | []float32      | C * N * 4    | Channel-major values    |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the fixed prefix before the values.
const HeaderSize = 4 + 8 + 2 + 2

// MaxPacketSize is the largest UDP payload we will build.
const MaxPacketSize = 65507

// ErrShortPacket is returned when a packet is smaller than its header says.
var ErrShortPacket = errors.New("udp: short packet")

// Packet is one decoded datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Values    [][]float32 // per channel
}

// AppendPacket encodes a packet onto dst. Every channel must carry the same
// number of values.
func AppendPacket(dst []byte, seq uint32, timestamp int64, values [][]float32) ([]byte, error) {
	count := 0
	if len(values) > 0 {
		count = len(values[0])
	}
	if len(values) > math.MaxUint16 || count > math.MaxUint16 {
		return dst, fmt.Errorf("udp: %d channels of %d values do not fit the header", len(values), count)
	}
	if size := HeaderSize + 4*count*len(values); size > MaxPacketSize {
		return dst, fmt.Errorf("udp: packet of %d bytes exceeds %d", size, MaxPacketSize)
	}

	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(values)))
	dst = binary.BigEndian.AppendUint16(dst, uint16(count))
	for ch, channel := range values {
		if len(channel) != count {
			return dst, fmt.Errorf("udp: channel %d has %d values, want %d", ch, len(channel), count)
		}
		for _, v := range channel {
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
		}
	}
	return dst, nil
}

// DecodePacket parses a datagram built by AppendPacket.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, ErrShortPacket
	}

	p := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:])),
	}
	channels := int(binary.BigEndian.Uint16(b[12:]))
	count := int(binary.BigEndian.Uint16(b[14:]))
	if len(b) < HeaderSize+4*channels*count {
		return Packet{}, ErrShortPacket
	}

	p.Values = make([][]float32, channels)
	off := HeaderSize
	for ch := range p.Values {
		p.Values[ch] = make([]float32, count)
		for i := range p.Values[ch] {
			p.Values[ch][i] = math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
			off += 4
		}
	}
	return p, nil
}
