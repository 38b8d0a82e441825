// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the OpenWire command model: the typed commands,
// identifiers and destinations exchanged between a client and a broker.
//
// Every value is a plain struct owned by its parent. Entities refer to each
// other only through identifier values, so a decoded command is always a
// self-contained tree.
package commands

// Data structure type tags as they appear on the wire.
const (
	WireFormatInfoType         byte = 1
	BrokerInfoType             byte = 2
	ConnectionInfoType         byte = 3
	SessionInfoType            byte = 4
	ConsumerInfoType           byte = 5
	ProducerInfoType           byte = 6
	DestinationInfoType        byte = 8
	RemoveSubscriptionInfoType byte = 9
	KeepAliveInfoType          byte = 10
	ShutdownInfoType           byte = 11
	RemoveInfoType             byte = 12
	ConnectionErrorType        byte = 16
	ConnectionControlType      byte = 18
	MessageDispatchType        byte = 21
	MessageAckType             byte = 22
	MessageType                byte = 23
	BytesMessageType           byte = 24
	MapMessageType             byte = 25
	StreamMessageType          byte = 27
	TextMessageType            byte = 28
	ResponseType               byte = 30
	ExceptionResponseType      byte = 31

	QueueType     byte = 100
	TopicType     byte = 101
	TempQueueType byte = 102
	TempTopicType byte = 103

	MessageIDType          byte = 110
	LocalTransactionIDType byte = 111
	ConnectionIDType       byte = 120
	SessionIDType          byte = 121
	ConsumerIDType         byte = 122
	ProducerIDType         byte = 123
	BrokerIDType           byte = 124
)

// DataStructure is anything that can be marshaled with a type tag.
type DataStructure interface {
	DataStructureType() byte
}

// Command is a top-level DataStructure that travels in its own frame.
type Command interface {
	DataStructure
	CommandID() int32
	SetCommandID(id int32)
	IsResponseRequired() bool
	SetResponseRequired(required bool)
}

// BaseCommand carries the fields shared by every command.
type BaseCommand struct {
	ID               int32
	ResponseRequired bool
}

// CommandID returns the command id.
func (c *BaseCommand) CommandID() int32 { return c.ID }

// SetCommandID sets the command id.
func (c *BaseCommand) SetCommandID(id int32) { c.ID = id }

// IsResponseRequired reports whether the peer must answer with a Response.
func (c *BaseCommand) IsResponseRequired() bool { return c.ResponseRequired }

// SetResponseRequired sets the response-required flag.
func (c *BaseCommand) SetResponseRequired(required bool) { c.ResponseRequired = required }

// TypeName returns a human readable name for a type tag.
func TypeName(t byte) string {
	switch t {
	case WireFormatInfoType:
		return "WireFormatInfo"
	case BrokerInfoType:
		return "BrokerInfo"
	case ConnectionInfoType:
		return "ConnectionInfo"
	case SessionInfoType:
		return "SessionInfo"
	case ConsumerInfoType:
		return "ConsumerInfo"
	case ProducerInfoType:
		return "ProducerInfo"
	case DestinationInfoType:
		return "DestinationInfo"
	case RemoveSubscriptionInfoType:
		return "RemoveSubscriptionInfo"
	case KeepAliveInfoType:
		return "KeepAliveInfo"
	case ShutdownInfoType:
		return "ShutdownInfo"
	case RemoveInfoType:
		return "RemoveInfo"
	case ConnectionErrorType:
		return "ConnectionError"
	case ConnectionControlType:
		return "ConnectionControl"
	case MessageDispatchType:
		return "MessageDispatch"
	case MessageAckType:
		return "MessageAck"
	case MessageType:
		return "Message"
	case BytesMessageType:
		return "BytesMessage"
	case MapMessageType:
		return "MapMessage"
	case StreamMessageType:
		return "StreamMessage"
	case TextMessageType:
		return "TextMessage"
	case ResponseType:
		return "Response"
	case ExceptionResponseType:
		return "ExceptionResponse"
	case QueueType:
		return "Queue"
	case TopicType:
		return "Topic"
	case TempQueueType:
		return "TempQueue"
	case TempTopicType:
		return "TempTopic"
	case MessageIDType:
		return "MessageId"
	case LocalTransactionIDType:
		return "LocalTransactionId"
	case ConnectionIDType:
		return "ConnectionId"
	case SessionIDType:
		return "SessionId"
	case ConsumerIDType:
		return "ConsumerId"
	case ProducerIDType:
		return "ProducerId"
	case BrokerIDType:
		return "BrokerId"
	default:
		return "Unknown"
	}
}
