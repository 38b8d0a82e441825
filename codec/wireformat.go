// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package codec implements the OpenWire binary wire format: framing, the
// tight and loose encodings, version gating and bounded decoding.
//
// A frame is a 4-byte big-endian size followed by the payload. The payload
// starts with the data structure type tag; in tight mode a boolean stream
// holding presence and boolean bits follows the tag, then the body.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/internal/bufpool"
)

// Protocol versions supported by the codec.
const (
	MinVersion     = 1
	MaxVersion     = 12
	DefaultVersion = MaxVersion

	DefaultMaxFrameSize int64 = 100 * 1024 * 1024
	frameHeaderSize           = 4
)

// Options are the wire format parameters of one connection.
type Options struct {
	Version       int
	TightEncoding bool
	MaxFrameSize  int64

	// Negotiated with the broker; the codec itself does not use them.
	MaxInactivityDuration     time.Duration
	MaxInactivityInitialDelay time.Duration
}

// DefaultOptions returns loose encoding at the newest version.
func DefaultOptions() Options {
	return Options{
		Version:                   DefaultVersion,
		MaxFrameSize:              DefaultMaxFrameSize,
		MaxInactivityDuration:     30 * time.Second,
		MaxInactivityInitialDelay: 10 * time.Second,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Version < MinVersion || o.Version > MaxVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, o.Version)
	}
	if o.MaxFrameSize < 0 {
		return fmt.Errorf("%w: max frame size %d", ErrInvalidFrameSize, o.MaxFrameSize)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Version == 0 {
		o.Version = DefaultVersion
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	return o
}

// WireFormat marshals and unmarshals commands for one negotiated set of
// options. It holds no per-call state and is safe for concurrent use.
type WireFormat struct {
	opts Options
	err  error
}

// New returns a wire format for opts. Zero Version and MaxFrameSize take
// their defaults; invalid options make every call fail.
func New(opts Options) *WireFormat {
	opts = opts.withDefaults()
	return &WireFormat{opts: opts, err: opts.Validate()}
}

// Options returns the effective options.
func (w *WireFormat) Options() Options { return w.opts }

// Marshal encodes cmd into a complete frame, size prefix included.
func (w *WireFormat) Marshal(cmd commands.Command) ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if isNil(cmd) {
		return nil, fmt.Errorf("%w: nil command", ErrUnsupportedType)
	}

	t := cmd.DataStructureType()
	m, ok := lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, cmd)
	}

	body := bufpool.Get()
	defer bufpool.Put(body)

	e := &encoder{buf: body, version: w.opts.Version, tight: w.opts.TightEncoding}
	m.marshal(e, cmd)
	if e.err != nil {
		return nil, fmt.Errorf("openwire: encoding %s: %w", commands.TypeName(t), e.err)
	}

	size := 1 + body.Len()
	if w.opts.TightEncoding {
		size += e.bs.marshalledSize()
	}
	if int64(size) > w.opts.MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, size, w.opts.MaxFrameSize)
	}

	frame := bufpool.Get()
	defer bufpool.Put(frame)
	frame.Grow(frameHeaderSize + size)

	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(size))
	frame.Write(hdr[:])
	frame.WriteByte(t)
	if w.opts.TightEncoding {
		e.bs.marshal(frame)
	}
	frame.Write(body.Bytes())

	out := make([]byte, frame.Len())
	copy(out, frame.Bytes())
	return out, nil
}

// Unmarshal decodes one frame payload, the bytes after the size prefix.
// Decoding failures are returned as *DecodeError carrying the partially
// decoded command.
func (w *WireFormat) Unmarshal(payload []byte) (commands.Command, error) {
	if w.err != nil {
		return nil, w.err
	}

	d := newDecoder(payload, w.opts)
	t, err := d.readByte("Type")
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	m, ok := lookup(t)
	if !ok {
		return nil, &DecodeError{Type: t, Err: &UnknownCommandTypeError{Type: t}}
	}
	cmd, ok := m.new().(commands.Command)
	if !ok {
		return nil, &DecodeError{Type: t, Err: &UnexpectedTypeError{Field: "Type", Type: t}}
	}

	if w.opts.TightEncoding {
		if d.bs, err = readBooleanStream(d); err != nil {
			return nil, &DecodeError{Type: t, Partial: cmd, Err: err}
		}
	}
	if err := m.unmarshal(d, cmd); err != nil {
		return nil, &DecodeError{Type: t, Partial: cmd, Err: err}
	}
	return cmd, nil
}

// WriteFrame marshals cmd and writes the frame to wr.
func (w *WireFormat) WriteFrame(wr io.Writer, cmd commands.Command) error {
	frame, err := w.Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = wr.Write(frame)
	return err
}

// ReadFrame reads one frame and returns its payload. A size outside
// (0, MaxFrameSize] means the frame boundary is lost; the stream cannot be
// read further.
func (w *WireFormat) ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := int64(int32(binary.BigEndian.Uint32(hdr[:])))
	switch {
	case size <= 0:
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameSize, size)
	case size > w.opts.MaxFrameSize:
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, size, w.opts.MaxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// ReadCommand reads and decodes one frame.
func (w *WireFormat) ReadCommand(r io.Reader) (commands.Command, error) {
	payload, err := w.ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return w.Unmarshal(payload)
}

// Encode returns the payload of cmd without the size prefix, so that
// Decode(Encode(cmd)) round-trips.
func Encode(cmd commands.Command, opts Options) ([]byte, error) {
	frame, err := New(opts).Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return frame[frameHeaderSize:], nil
}

// Decode decodes one payload.
func Decode(payload []byte, opts Options) (commands.Command, error) {
	return New(opts).Unmarshal(payload)
}

// NewWireFormatInfo builds the WireFormatInfo advertising opts.
func NewWireFormatInfo(opts Options) *commands.WireFormatInfo {
	opts = opts.withDefaults()
	return &commands.WireFormatInfo{
		Magic:   commands.Magic,
		Version: int32(opts.Version),
		Properties: map[string]any{
			commands.PropTightEncodingEnabled:  opts.TightEncoding,
			commands.PropCacheEnabled:          false,
			commands.PropSizePrefixDisabled:    false,
			commands.PropStackTraceEnabled:     false,
			commands.PropTCPNoDelayEnabled:     true,
			commands.PropMaxFrameSize:          opts.MaxFrameSize,
			commands.PropMaxInactivityDuration: opts.MaxInactivityDuration.Milliseconds(),
			commands.PropMaxInactivityDelay:    opts.MaxInactivityInitialDelay.Milliseconds(),
			commands.PropCacheSize:             int32(0),
		},
	}
}

// Negotiate merges the local and remote WireFormatInfo: the lower version,
// tight encoding only when both sides enable it, the smaller non-zero frame
// size and the smaller inactivity durations. An inactivity duration of zero
// on either side disables inactivity monitoring; one the broker does not
// advertise keeps the local value.
func Negotiate(local, remote *commands.WireFormatInfo) (Options, error) {
	if !remote.Valid() {
		return Options{}, ErrBadMagic
	}
	version := min(int(local.Version), int(remote.Version), MaxVersion)
	if version < MinVersion {
		return Options{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, remote.Version)
	}

	opts := Options{
		Version:       version,
		TightEncoding: local.Bool(commands.PropTightEncodingEnabled) && remote.Bool(commands.PropTightEncodingEnabled),
		MaxFrameSize: minPositive(local.Int64(commands.PropMaxFrameSize),
			remote.Int64(commands.PropMaxFrameSize)),
		MaxInactivityDuration:     negotiateMillis(local, remote, commands.PropMaxInactivityDuration),
		MaxInactivityInitialDelay: negotiateMillis(local, remote, commands.PropMaxInactivityDelay),
	}
	return opts.withDefaults(), nil
}

func negotiateMillis(local, remote *commands.WireFormatInfo, name string) time.Duration {
	ms := max(local.Int64(name), 0)
	if _, ok := remote.Properties[name]; ok {
		ms = min(ms, max(remote.Int64(name), 0))
	}
	return time.Duration(ms) * time.Millisecond
}

func minPositive(a, b int64) int64 {
	switch {
	case a <= 0:
		return max(b, 0)
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}
