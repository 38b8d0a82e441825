// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package commands

// AckType selects how the broker treats acknowledged messages.
type AckType byte

// Acknowledgment types.
const (
	DeliveredAck   AckType = 0
	PoisonAck      AckType = 1
	StandardAck    AckType = 2
	RedeliveredAck AckType = 3
	IndividualAck  AckType = 4
	UnmatchedAck   AckType = 5
	ExpiredAck     AckType = 6
)

func (t AckType) String() string {
	switch t {
	case DeliveredAck:
		return "delivered"
	case PoisonAck:
		return "poison"
	case StandardAck:
		return "standard"
	case RedeliveredAck:
		return "redelivered"
	case IndividualAck:
		return "individual"
	case UnmatchedAck:
		return "unmatched"
	case ExpiredAck:
		return "expired"
	default:
		return "unknown"
	}
}

// MessageDispatch delivers a message to a consumer.
type MessageDispatch struct {
	BaseCommand

	ConsumerID        *ConsumerID
	Destination       Destination
	Message           *Message
	RedeliveryCounter int32
}

func (*MessageDispatch) DataStructureType() byte { return MessageDispatchType }

// MessageAck acknowledges a range of messages for a consumer. It is sent
// once and then discarded.
type MessageAck struct {
	BaseCommand

	Destination    Destination
	TransactionID  TransactionID
	ConsumerID     *ConsumerID
	AckType        AckType
	FirstMessageID *MessageID
	LastMessageID  *MessageID
	MessageCount   int32
	PoisonCause    *BrokerError
}

func (*MessageAck) DataStructureType() byte { return MessageAckType }

// NewPoisonAck builds an acknowledgment asking the broker to dead-letter a
// single message that could not be processed.
func NewPoisonAck(consumer *ConsumerID, dest Destination, id *MessageID, cause *BrokerError) *MessageAck {
	return &MessageAck{
		Destination:    dest,
		ConsumerID:     consumer,
		AckType:        PoisonAck,
		FirstMessageID: id,
		LastMessageID:  id,
		MessageCount:   1,
		PoisonCause:    cause,
	}
}
