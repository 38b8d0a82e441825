// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"fmt"
	"math"
	"sort"
)

// Primitive value type tags.
const (
	primNull      byte = 0
	primBool      byte = 1
	primByte      byte = 2
	primChar      byte = 3
	primShort     byte = 4
	primInt       byte = 5
	primLong      byte = 6
	primDouble    byte = 7
	primFloat     byte = 8
	primString    byte = 9
	primByteArray byte = 10
	primMap       byte = 11
	primList      byte = 12
	primBigString byte = 13
)

const (
	maxPrimitiveDepth = 32
	maxShortString    = 8191
)

// MarshalPrimitiveMap encodes message or wire format properties. A nil map
// encodes to nil. Keys are written in sorted order.
func MarshalPrimitiveMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	e := &encoder{buf: &bytes.Buffer{}}
	writePrimitiveMap(e, m, 0)
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

// UnmarshalPrimitiveMap decodes a property map. Empty input yields nil.
func UnmarshalPrimitiveMap(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	d := &decoder{buf: b}
	return readPrimitiveMap(d, 0)
}

func writePrimitiveMap(e *encoder, m map[string]any, depth int) {
	if depth > maxPrimitiveDepth {
		e.fail(fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedProperty, maxPrimitiveDepth))
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.writeInt32(int32(len(keys)))
	for _, k := range keys {
		writeUTF(e, k)
		writePrimitive(e, k, m[k], depth)
	}
}

func writeUTF(e *encoder, s string) {
	if len(s) > math.MaxUint16 {
		e.fail(fmt.Errorf("%w: %q", ErrStringTooLong, s[:32]))
		return
	}
	e.writeUint16(uint16(len(s)))
	if e.err == nil {
		e.buf.WriteString(s)
	}
}

func writePrimitive(e *encoder, key string, v any, depth int) {
	switch v := v.(type) {
	case nil:
		e.writeByte(primNull)
	case bool:
		e.writeByte(primBool)
		if v {
			e.writeByte(1)
		} else {
			e.writeByte(0)
		}
	case int8:
		e.writeByte(primByte)
		e.writeByte(byte(v))
	case int16:
		e.writeByte(primShort)
		e.writeInt16(v)
	case int32:
		e.writeByte(primInt)
		e.writeInt32(v)
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			e.writeByte(primInt)
			e.writeInt32(int32(v))
			return
		}
		e.writeByte(primLong)
		e.writeInt64(int64(v))
	case int64:
		e.writeByte(primLong)
		e.writeInt64(v)
	case float32:
		e.writeByte(primFloat)
		e.writeInt32(int32(math.Float32bits(v)))
	case float64:
		e.writeByte(primDouble)
		e.writeInt64(int64(math.Float64bits(v)))
	case string:
		if len(v) <= maxShortString {
			e.writeByte(primString)
			writeUTF(e, v)
			return
		}
		e.writeByte(primBigString)
		e.writeInt32(int32(len(v)))
		if e.err == nil {
			e.buf.WriteString(v)
		}
	case []byte:
		e.writeByte(primByteArray)
		e.writeInt32(int32(len(v)))
		if e.err == nil {
			e.buf.Write(v)
		}
	case map[string]any:
		e.writeByte(primMap)
		writePrimitiveMap(e, v, depth+1)
	case []any:
		if depth+1 > maxPrimitiveDepth {
			e.fail(fmt.Errorf("%w: nesting deeper than %d", ErrUnsupportedProperty, maxPrimitiveDepth))
			return
		}
		e.writeByte(primList)
		e.writeInt32(int32(len(v)))
		for _, item := range v {
			writePrimitive(e, key, item, depth+1)
		}
	default:
		e.fail(fmt.Errorf("%w: %s has type %T", ErrUnsupportedProperty, key, v))
	}
}

func readPrimitiveMap(d *decoder, depth int) (map[string]any, error) {
	if depth > maxPrimitiveDepth {
		return nil, &InvalidLengthError{Field: "properties (depth)", Offset: d.pos, Length: depth}
	}
	offset := d.pos
	n, err := d.readInt32("properties")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	// Every entry takes at least a key length and a type tag.
	if int(n) > d.remaining()/3 {
		return nil, &InvalidLengthError{Field: "properties", Offset: offset, Length: int(n)}
	}

	m := make(map[string]any, n)
	for i := 0; i < int(n); i++ {
		kn, err := d.readUint16("property key")
		if err != nil {
			return nil, err
		}
		kb, err := d.take("property key", int(kn))
		if err != nil {
			return nil, err
		}
		key := string(kb)
		v, err := readPrimitive(d, key, depth)
		if err != nil {
			return nil, err
		}
		m[key] = v
	}
	return m, nil
}

func readPrimitive(d *decoder, key string, depth int) (any, error) {
	field := "property " + key
	offset := d.pos
	t, err := d.readByte(field)
	if err != nil {
		return nil, err
	}
	switch t {
	case primNull:
		return nil, nil
	case primBool:
		b, err := d.readByte(field)
		return b != 0, err
	case primByte:
		b, err := d.readByte(field)
		return int8(b), err
	case primChar:
		c, err := d.readUint16(field)
		return string(rune(c)), err
	case primShort:
		return d.readInt16(field)
	case primInt:
		return d.readInt32(field)
	case primLong:
		return d.readInt64(field)
	case primFloat:
		v, err := d.readInt32(field)
		return math.Float32frombits(uint32(v)), err
	case primDouble:
		v, err := d.readInt64(field)
		return math.Float64frombits(uint64(v)), err
	case primString:
		n, err := d.readUint16(field)
		if err != nil {
			return nil, err
		}
		b, err := d.take(field, int(n))
		return string(b), err
	case primBigString:
		n, err := d.readInt32(field)
		if err != nil {
			return nil, err
		}
		b, err := d.take(field, int(n))
		return string(b), err
	case primByteArray:
		n, err := d.readInt32(field)
		if err != nil {
			return nil, err
		}
		b, err := d.take(field, int(n))
		if err != nil {
			return nil, err
		}
		return bytes.Clone(b), nil
	case primMap:
		return readPrimitiveMap(d, depth+1)
	case primList:
		if depth+1 > maxPrimitiveDepth {
			return nil, &InvalidLengthError{Field: field + " (depth)", Offset: offset, Length: depth + 1}
		}
		n, err := d.readInt32(field)
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > d.remaining() {
			return nil, &InvalidLengthError{Field: field, Offset: offset + 1, Length: int(n)}
		}
		list := make([]any, 0, n)
		for i := 0; i < int(n); i++ {
			v, err := readPrimitive(d, key, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	default:
		return nil, &UnexpectedTypeError{Field: field, Type: t, Offset: offset}
	}
}
