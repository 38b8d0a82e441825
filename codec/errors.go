// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"

	"github.com/absmach/openwire/commands"
)

// Codec errors.
var (
	// ErrDecode matches every error produced while decoding a payload.
	ErrDecode = errors.New("openwire: decode error")

	ErrFrameTooLarge       = errors.New("openwire: frame exceeds maximum size")
	ErrInvalidFrameSize    = errors.New("openwire: invalid frame size")
	ErrUnsupportedVersion  = errors.New("openwire: unsupported protocol version")
	ErrUnsupportedType     = errors.New("openwire: unsupported data structure")
	ErrUnsupportedProperty = errors.New("openwire: unsupported property value")
	ErrStringTooLong       = errors.New("openwire: string longer than 65535 bytes")
	ErrArrayTooLong        = errors.New("openwire: array longer than 32767 elements")
	ErrBadMagic            = errors.New("openwire: bad wire format magic")
)

// UnknownCommandTypeError reports a type tag with no registered marshaler.
type UnknownCommandTypeError struct {
	Type   byte
	Field  string
	Offset int
}

func (e *UnknownCommandTypeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("openwire: unknown data structure type %d in %s at offset %d", e.Type, e.Field, e.Offset)
	}
	return fmt.Sprintf("openwire: unknown command type %d at offset %d", e.Type, e.Offset)
}

func (e *UnknownCommandTypeError) Is(target error) bool { return target == ErrDecode }

// UnexpectedEndOfStreamError reports a field that runs past the end of the
// payload.
type UnexpectedEndOfStreamError struct {
	Field     string
	Offset    int
	Need      int
	Remaining int
}

func (e *UnexpectedEndOfStreamError) Error() string {
	return fmt.Sprintf("openwire: unexpected end of stream reading %s at offset %d: need %d bytes, %d remaining",
		e.Field, e.Offset, e.Need, e.Remaining)
}

func (e *UnexpectedEndOfStreamError) Is(target error) bool { return target == ErrDecode }

// InvalidLengthError reports a negative or otherwise impossible length.
type InvalidLengthError struct {
	Field  string
	Offset int
	Length int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("openwire: invalid length %d for %s at offset %d", e.Length, e.Field, e.Offset)
}

func (e *InvalidLengthError) Is(target error) bool { return target == ErrDecode }

// UnexpectedTypeError reports a nested structure whose type does not fit
// the field it was decoded into.
type UnexpectedTypeError struct {
	Field  string
	Type   byte
	Offset int
}

func (e *UnexpectedTypeError) Error() string {
	return fmt.Sprintf("openwire: unexpected %s in %s at offset %d", commands.TypeName(e.Type), e.Field, e.Offset)
}

func (e *UnexpectedTypeError) Is(target error) bool { return target == ErrDecode }

// NestedDecodeError wraps a failure inside a nested structure. Partial holds
// whatever the nested structure had decoded before the failure.
type NestedDecodeError struct {
	Field   string
	Type    byte
	Partial commands.DataStructure
	Err     error
}

func (e *NestedDecodeError) Error() string {
	return fmt.Sprintf("openwire: decoding %s (%s): %v", e.Field, commands.TypeName(e.Type), e.Err)
}

func (e *NestedDecodeError) Unwrap() error { return e.Err }

func (e *NestedDecodeError) Is(target error) bool { return target == ErrDecode }

// DecodeError is returned by Unmarshal. Partial is the command as far as it
// was decoded, nil if the type tag itself could not be resolved.
type DecodeError struct {
	Type    byte
	Partial commands.Command
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("openwire: decoding %s: %v", commands.TypeName(e.Type), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
