// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"reflect"

	"github.com/absmach/openwire/commands"
)

// decoder reads one payload. Every read is bounds-checked against the
// remaining bytes before anything is allocated.
// maxNestingDepth bounds how deeply nested structures may recurse.
const maxNestingDepth = 32

type decoder struct {
	buf     []byte
	pos     int
	version int
	tight   bool
	bs      *booleanStream
	depth   int
}

func newDecoder(buf []byte, opts Options) *decoder {
	return &decoder{buf: buf, version: opts.Version, tight: opts.TightEncoding}
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) take(field string, n int) ([]byte, error) {
	if n < 0 {
		return nil, &InvalidLengthError{Field: field, Offset: d.pos, Length: n}
	}
	if n > d.remaining() {
		return nil, &UnexpectedEndOfStreamError{Field: field, Offset: d.pos, Need: n, Remaining: d.remaining()}
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readByte(field string) (byte, error) {
	b, err := d.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readUint16(field string) (uint16, error) {
	b, err := d.take(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) readInt16(field string) (int16, error) {
	v, err := d.readUint16(field)
	return int16(v), err
}

func (d *decoder) readInt32(field string) (int32, error) {
	b, err := d.take(field, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (d *decoder) readInt64(field string) (int64, error) {
	b, err := d.take(field, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// readFlag reads one bit from the boolean stream.
func (d *decoder) readFlag(field string) (bool, error) {
	v, ok := d.bs.read()
	if !ok {
		return false, &UnexpectedEndOfStreamError{Field: field + " (boolean stream)", Offset: d.pos, Need: 1}
	}
	return v, nil
}

// readBool reads a boolean field: a bit in tight mode, a byte otherwise.
func (d *decoder) readBool(field string) (bool, error) {
	if d.tight {
		return d.readFlag(field)
	}
	b, err := d.readByte(field)
	return b != 0, err
}

// readLong reads a long field. Tight mode picks a 0, 2, 4 or 8 byte
// encoding from two bits of the boolean stream.
func (d *decoder) readLong(field string) (int64, error) {
	if !d.tight {
		return d.readInt64(field)
	}
	wide, err := d.readFlag(field)
	if err != nil {
		return 0, err
	}
	narrow, err := d.readFlag(field)
	if err != nil {
		return 0, err
	}
	switch {
	case wide && narrow:
		return d.readInt64(field)
	case wide:
		v, err := d.readInt32(field)
		return int64(uint32(v)), err
	case narrow:
		v, err := d.readUint16(field)
		return int64(v), err
	default:
		return 0, nil
	}
}

func (d *decoder) readString(field string) (string, error) {
	present, err := d.readBool(field)
	if err != nil || !present {
		return "", err
	}
	if d.tight {
		// ASCII hint; both encodings carry a 2-byte length.
		if _, err := d.readFlag(field); err != nil {
			return "", err
		}
	}
	n, err := d.readUint16(field)
	if err != nil {
		return "", err
	}
	b, err := d.take(field, int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readBytes(field string) ([]byte, error) {
	present, err := d.readBool(field)
	if err != nil || !present {
		return nil, err
	}
	n, err := d.readInt32(field)
	if err != nil {
		return nil, err
	}
	b, err := d.take(field, int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// readNested reads an optional nested structure. On failure it returns the
// partially decoded structure alongside a *NestedDecodeError.
func (d *decoder) readNested(field string) (commands.DataStructure, error) {
	present, err := d.readBool(field)
	if err != nil || !present {
		return nil, err
	}

	offset := d.pos
	t, err := d.readByte(field)
	if err != nil {
		return nil, err
	}
	m, ok := lookup(t)
	if !ok {
		return nil, &UnknownCommandTypeError{Type: t, Field: field, Offset: offset}
	}
	if d.depth >= maxNestingDepth {
		return nil, &InvalidLengthError{Field: field + " (depth)", Offset: offset, Length: d.depth + 1}
	}

	ds := m.new()
	if m.marshalAware {
		cached, err := d.readBool(field)
		if err != nil {
			return nil, &NestedDecodeError{Field: field, Type: t, Partial: ds, Err: err}
		}
		if cached {
			return nil, &UnexpectedTypeError{Field: field + " (pre-marshalled form)", Type: t, Offset: offset}
		}
	}
	d.depth++
	err = m.unmarshal(d, ds)
	d.depth--
	if err != nil {
		return ds, &NestedDecodeError{Field: field, Type: t, Partial: ds, Err: err}
	}
	return ds, nil
}

// readObject reads a nested structure of type T. A failed or mismatched
// structure is never returned, so identifiers are either complete or nil.
func readObject[T commands.DataStructure](d *decoder, field string) (T, error) {
	var zero T
	offset := d.pos
	ds, err := d.readNested(field)
	if err != nil || ds == nil {
		return zero, err
	}
	v, ok := ds.(T)
	if !ok {
		return zero, &UnexpectedTypeError{Field: field, Type: ds.DataStructureType(), Offset: offset}
	}
	return v, nil
}

func readArray[T commands.DataStructure](d *decoder, field string) ([]T, error) {
	present, err := d.readBool(field)
	if err != nil || !present {
		return nil, err
	}
	offset := d.pos
	n, err := d.readInt16(field)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &InvalidLengthError{Field: field, Offset: offset, Length: int(n)}
	}
	// A forged count must not drive the allocation.
	out := make([]T, 0, min(int(n), d.remaining()+1))
	for i := 0; i < int(n); i++ {
		v, err := readObject[T](d, field)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *decoder) readBrokerError(field string) (*commands.BrokerError, error) {
	present, err := d.readBool(field)
	if err != nil || !present {
		return nil, err
	}
	e := &commands.BrokerError{}
	if e.ExceptionClass, err = d.readString(field + ".ExceptionClass"); err != nil {
		return nil, err
	}
	if e.Message, err = d.readString(field + ".Message"); err != nil {
		return nil, err
	}
	return e, nil
}

func isNil(ds commands.DataStructure) bool {
	if ds == nil {
		return true
	}
	v := reflect.ValueOf(ds)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
