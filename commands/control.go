// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package commands

import "fmt"

// Magic opens every WireFormatInfo.
var Magic = [8]byte{'A', 'c', 't', 'i', 'v', 'e', 'M', 'Q'}

// Wire format property names.
const (
	PropTightEncodingEnabled  = "TightEncodingEnabled"
	PropCacheEnabled          = "CacheEnabled"
	PropSizePrefixDisabled    = "SizePrefixDisabled"
	PropStackTraceEnabled     = "StackTraceEnabled"
	PropTCPNoDelayEnabled     = "TcpNoDelayEnabled"
	PropMaxInactivityDuration = "MaxInactivityDuration"
	PropMaxInactivityDelay    = "MaxInactivityDurationInitalDelay"
	PropMaxFrameSize          = "MaxFrameSize"
	PropCacheSize             = "CacheSize"
)

// WireFormatInfo opens the wire format negotiation. Only the magic, the
// protocol version and the property map travel on the wire.
type WireFormatInfo struct {
	BaseCommand

	Magic      [8]byte
	Version    int32
	Properties map[string]any
}

func (*WireFormatInfo) DataStructureType() byte { return WireFormatInfoType }

// Valid reports whether the magic matches.
func (w *WireFormatInfo) Valid() bool { return w.Magic == Magic }

// Bool returns a boolean property, false when absent.
func (w *WireFormatInfo) Bool(name string) bool {
	v, _ := w.Properties[name].(bool)
	return v
}

// Int64 returns a numeric property widened to int64, 0 when absent.
func (w *WireFormatInfo) Int64(name string) int64 {
	switch v := w.Properties[name].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	default:
		return 0
	}
}

// BrokerInfo describes the broker on the other side of the connection.
type BrokerInfo struct {
	BaseCommand

	BrokerID                   *BrokerID
	BrokerURL                  string
	PeerBrokerInfos            []*BrokerInfo
	BrokerName                 string
	SlaveBroker                bool
	MasterBroker               bool
	FaultTolerantConfiguration bool
	DuplexConnection           bool
	NetworkConnection          bool
	ConnectionID               int64
	BrokerUploadURL            string
	NetworkProperties          string
}

func (*BrokerInfo) DataStructureType() byte { return BrokerInfoType }

// KeepAliveInfo is exchanged to keep an idle connection alive.
type KeepAliveInfo struct {
	BaseCommand
}

func (*KeepAliveInfo) DataStructureType() byte { return KeepAliveInfoType }

// ShutdownInfo announces an orderly connection shutdown.
type ShutdownInfo struct {
	BaseCommand
}

func (*ShutdownInfo) DataStructureType() byte { return ShutdownInfoType }

// BrokerError is an exception reported by the broker, or the cause attached
// to a poison acknowledgment.
type BrokerError struct {
	ExceptionClass string
	Message        string
}

func (e *BrokerError) Error() string {
	if e.ExceptionClass == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.ExceptionClass, e.Message)
}

// ConnectionError is sent by the broker when the connection failed.
type ConnectionError struct {
	BaseCommand

	Exception    *BrokerError
	ConnectionID *ConnectionID
}

func (*ConnectionError) DataStructureType() byte { return ConnectionErrorType }

// ConnectionControl is sent by the broker to steer the client: suspend,
// resume, close, or move to other brokers.
type ConnectionControl struct {
	BaseCommand

	Close               bool
	Exit                bool
	FaultTolerant       bool
	Resume              bool
	Suspend             bool
	ConnectedBrokers    string
	ReconnectTo         string
	RebalanceConnection bool
}

func (*ConnectionControl) DataStructureType() byte { return ConnectionControlType }

// Response answers a command sent with ResponseRequired set.
type Response struct {
	BaseCommand

	CorrelationID int32
}

func (*Response) DataStructureType() byte { return ResponseType }

// ExceptionResponse answers a command that failed on the broker.
type ExceptionResponse struct {
	BaseCommand

	CorrelationID int32
	Exception     *BrokerError
}

func (*ExceptionResponse) DataStructureType() byte { return ExceptionResponseType }

// Correlated is implemented by responses.
type Correlated interface {
	Command
	Correlation() int32
}

func (r *Response) Correlation() int32          { return r.CorrelationID }
func (r *ExceptionResponse) Correlation() int32 { return r.CorrelationID }
