// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/absmach/openwire/commands"
)

// encoder writes one payload body. In tight mode boolean and presence bits
// go to bs while the body is written, and the frame is assembled afterwards.
// The first error sticks and every later write is a no-op.
type encoder struct {
	buf     *bytes.Buffer
	version int
	tight   bool
	bs      booleanStream
	err     error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) writeByte(v byte) {
	if e.err != nil {
		return
	}
	e.buf.WriteByte(v)
}

func (e *encoder) writeUint16(v uint16) {
	if e.err != nil {
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeInt16(v int16) { e.writeUint16(uint16(v)) }

func (e *encoder) writeInt32(v int32) {
	if e.err != nil {
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
}

func (e *encoder) writeInt64(v int64) {
	if e.err != nil {
		return
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *encoder) writeBool(v bool) {
	if e.tight {
		e.bs.write(v)
		return
	}
	if v {
		e.writeByte(1)
		return
	}
	e.writeByte(0)
}

func (e *encoder) writeLong(v int64) {
	if !e.tight {
		e.writeInt64(v)
		return
	}
	u := uint64(v)
	switch {
	case u == 0:
		e.bs.write(false)
		e.bs.write(false)
	case u&0xFFFFFFFFFFFF0000 == 0:
		e.bs.write(false)
		e.bs.write(true)
		e.writeUint16(uint16(u))
	case u&0xFFFFFFFF00000000 == 0:
		e.bs.write(true)
		e.bs.write(false)
		e.writeInt32(int32(uint32(u)))
	default:
		e.bs.write(true)
		e.bs.write(true)
		e.writeInt64(v)
	}
}

// writeString writes an optional string; the empty string is sent as null.
func (e *encoder) writeString(field, s string) {
	e.writeBool(s != "")
	if s == "" {
		return
	}
	if len(s) > math.MaxUint16 {
		e.fail(fmt.Errorf("%w: %s", ErrStringTooLong, field))
		return
	}
	if e.tight {
		e.bs.write(isASCII(s))
	}
	e.writeUint16(uint16(len(s)))
	if e.err == nil {
		e.buf.WriteString(s)
	}
}

func (e *encoder) writeBytes(b []byte) {
	e.writeBool(b != nil)
	if b == nil {
		return
	}
	e.writeInt32(int32(len(b)))
	if e.err == nil {
		e.buf.Write(b)
	}
}

func (e *encoder) writeNested(field string, ds commands.DataStructure) {
	if isNil(ds) {
		e.writeBool(false)
		return
	}
	e.writeBool(true)

	t := ds.DataStructureType()
	m, ok := lookup(t)
	if !ok {
		e.fail(fmt.Errorf("%w: %T in %s", ErrUnsupportedType, ds, field))
		return
	}
	e.writeByte(t)
	if m.marshalAware {
		e.writeBool(false)
	}
	if e.err != nil {
		return
	}
	m.marshal(e, ds)
}

func writeArray[T commands.DataStructure](e *encoder, field string, items []T) {
	e.writeBool(items != nil)
	if items == nil {
		return
	}
	if len(items) > math.MaxInt16 {
		e.fail(fmt.Errorf("%w: %s", ErrArrayTooLong, field))
		return
	}
	e.writeInt16(int16(len(items)))
	for _, it := range items {
		e.writeNested(field, it)
	}
}

func (e *encoder) writeBrokerError(err *commands.BrokerError) {
	e.writeBool(err != nil)
	if err == nil {
		return
	}
	e.writeString("ExceptionClass", err.ExceptionClass)
	e.writeString("Message", err.Message)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
