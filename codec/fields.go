// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import "github.com/absmach/openwire/commands"

// fieldReader decodes a run of fields, keeping the first error. Once an
// error is recorded every read returns the zero value, so the fields
// assigned before the failure form the partial result.
type fieldReader struct {
	d   *decoder
	err error
}

func (r *fieldReader) base(c *commands.BaseCommand) {
	c.ID = r.int32("CommandId")
	c.ResponseRequired = r.bool("ResponseRequired")
}

func (r *fieldReader) bool(name string) bool {
	if r.err != nil {
		return false
	}
	v, err := r.d.readBool(name)
	r.err = err
	return v
}

func (r *fieldReader) byte(name string) byte {
	if r.err != nil {
		return 0
	}
	v, err := r.d.readByte(name)
	r.err = err
	return v
}

func (r *fieldReader) int32(name string) int32 {
	if r.err != nil {
		return 0
	}
	v, err := r.d.readInt32(name)
	r.err = err
	return v
}

func (r *fieldReader) long(name string) int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.d.readLong(name)
	r.err = err
	return v
}

func (r *fieldReader) string(name string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.d.readString(name)
	r.err = err
	return v
}

func (r *fieldReader) bytes(name string) []byte {
	if r.err != nil {
		return nil
	}
	v, err := r.d.readBytes(name)
	r.err = err
	return v
}

func (r *fieldReader) brokerError(name string) *commands.BrokerError {
	if r.err != nil {
		return nil
	}
	v, err := r.d.readBrokerError(name)
	r.err = err
	return v
}

func (r *fieldReader) since(version int) bool {
	return r.err == nil && r.d.version >= version
}

func object[T commands.DataStructure](r *fieldReader, name string) T {
	var zero T
	if r.err != nil {
		return zero
	}
	v, err := readObject[T](r.d, name)
	r.err = err
	return v
}

func array[T commands.DataStructure](r *fieldReader, name string) []T {
	if r.err != nil {
		return nil
	}
	v, err := readArray[T](r.d, name)
	r.err = err
	return v
}

func marshalBase(e *encoder, c *commands.BaseCommand) {
	e.writeInt32(c.ID)
	e.writeBool(c.ResponseRequired)
}
