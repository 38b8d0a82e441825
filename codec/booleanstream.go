// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/binary"
)

// Boolean stream size markers.
const (
	bsMarkerByte  = 0xC0
	bsMarkerShort = 0x80
)

// booleanStream packs the presence and boolean bits of a tightly encoded
// command, least significant bit first.
type booleanStream struct {
	data    []byte
	bitPos  uint8
	readPos int
}

func (bs *booleanStream) write(v bool) {
	if bs.bitPos == 0 {
		bs.data = append(bs.data, 0)
	}
	if v {
		bs.data[len(bs.data)-1] |= 1 << bs.bitPos
	}
	bs.bitPos++
	if bs.bitPos == 8 {
		bs.bitPos = 0
	}
}

// read returns the next bit; ok is false once the stream is exhausted.
func (bs *booleanStream) read() (v, ok bool) {
	if bs.readPos >= len(bs.data) {
		return false, false
	}
	v = (bs.data[bs.readPos]>>bs.bitPos)&0x01 != 0
	bs.bitPos++
	if bs.bitPos == 8 {
		bs.bitPos = 0
		bs.readPos++
	}
	return v, true
}

func (bs *booleanStream) marshalledSize() int {
	n := len(bs.data)
	switch {
	case n < 64:
		return 1 + n
	case n < 256:
		return 2 + n
	default:
		return 3 + n
	}
}

func (bs *booleanStream) marshal(buf *bytes.Buffer) {
	n := len(bs.data)
	switch {
	case n < 64:
		buf.WriteByte(byte(n))
	case n < 256:
		buf.WriteByte(bsMarkerByte)
		buf.WriteByte(byte(n))
	default:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		buf.WriteByte(bsMarkerShort)
		buf.Write(b[:])
	}
	buf.Write(bs.data)
}

func readBooleanStream(d *decoder) (*booleanStream, error) {
	const field = "BooleanStream"

	marker, err := d.readByte(field)
	if err != nil {
		return nil, err
	}

	n := int(marker)
	switch marker {
	case bsMarkerByte:
		b, err := d.readByte(field)
		if err != nil {
			return nil, err
		}
		n = int(b)
	case bsMarkerShort:
		s, err := d.readUint16(field)
		if err != nil {
			return nil, err
		}
		n = int(s)
	}

	data, err := d.take(field, n)
	if err != nil {
		return nil, err
	}
	return &booleanStream{data: data}, nil
}
