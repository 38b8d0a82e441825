// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/absmach/openwire/commands"
)

func marshalMessage(e *encoder, m *commands.Message) {
	marshalBase(e, &m.BaseCommand)
	e.writeNested("Message.ProducerId", m.ProducerID)
	e.writeNested("Message.Destination", m.Destination)
	e.writeNested("Message.TransactionId", m.TransactionID)
	e.writeNested("Message.OriginalDestination", m.OriginalDestination)
	e.writeNested("Message.MessageId", m.MessageID)
	e.writeNested("Message.OriginalTransactionId", m.OriginalTransactionID)
	e.writeString("Message.GroupId", m.GroupID)
	e.writeInt32(m.GroupSequence)
	e.writeString("Message.CorrelationId", m.CorrelationID)
	e.writeBool(m.Persistent)
	e.writeLong(m.Expiration)
	e.writeByte(m.Priority)
	e.writeNested("Message.ReplyTo", m.ReplyTo)
	e.writeLong(m.Timestamp)
	e.writeString("Message.Type", m.Type)
	e.writeBytes(m.Content)

	props, err := MarshalPrimitiveMap(m.Properties)
	if err != nil {
		e.fail(fmt.Errorf("Message.Properties: %w", err))
		return
	}
	e.writeBytes(props)

	e.writeNested("Message.TargetConsumerId", m.TargetConsumerID)
	e.writeBool(m.Compressed)
	e.writeInt32(m.RedeliveryCounter)
	writeArray(e, "Message.BrokerPath", m.BrokerPath)
	e.writeLong(m.Arrival)
	e.writeString("Message.UserId", m.UserID)
	e.writeBool(m.ReceivedByDFBridge)
	if e.version >= 2 {
		e.writeBool(m.Droppable)
	}
	if e.version >= 3 {
		writeArray(e, "Message.Cluster", m.Cluster)
		e.writeLong(m.BrokerInTime)
		e.writeLong(m.BrokerOutTime)
	}
	if e.version >= 10 {
		e.writeBool(m.GroupFirstForConsumer)
	}
}

func unmarshalMessage(d *decoder, m *commands.Message) error {
	r := fieldReader{d: d}
	r.base(&m.BaseCommand)
	m.ProducerID = object[*commands.ProducerID](&r, "Message.ProducerId")
	m.Destination = object[commands.Destination](&r, "Message.Destination")
	m.TransactionID = object[commands.TransactionID](&r, "Message.TransactionId")
	m.OriginalDestination = object[commands.Destination](&r, "Message.OriginalDestination")
	m.MessageID = object[*commands.MessageID](&r, "Message.MessageId")
	m.OriginalTransactionID = object[commands.TransactionID](&r, "Message.OriginalTransactionId")
	m.GroupID = r.string("Message.GroupId")
	m.GroupSequence = r.int32("Message.GroupSequence")
	m.CorrelationID = r.string("Message.CorrelationId")
	m.Persistent = r.bool("Message.Persistent")
	m.Expiration = r.long("Message.Expiration")
	m.Priority = r.byte("Message.Priority")
	m.ReplyTo = object[commands.Destination](&r, "Message.ReplyTo")
	m.Timestamp = r.long("Message.Timestamp")
	m.Type = r.string("Message.Type")
	m.Content = r.bytes("Message.Content")

	offset := d.pos
	props := r.bytes("Message.Properties")
	if r.err != nil {
		return r.err
	}
	if props != nil {
		p, err := UnmarshalPrimitiveMap(props)
		if err != nil {
			return &NestedDecodeError{Field: "Message.Properties", Type: m.DataStructureType(), Err: fmt.Errorf("at offset %d: %w", offset, err)}
		}
		m.Properties = p
	}

	m.TargetConsumerID = object[*commands.ConsumerID](&r, "Message.TargetConsumerId")
	m.Compressed = r.bool("Message.Compressed")
	m.RedeliveryCounter = r.int32("Message.RedeliveryCounter")
	m.BrokerPath = array[*commands.BrokerID](&r, "Message.BrokerPath")
	m.Arrival = r.long("Message.Arrival")
	m.UserID = r.string("Message.UserId")
	m.ReceivedByDFBridge = r.bool("Message.ReceivedByDFBridge")
	if r.since(2) {
		m.Droppable = r.bool("Message.Droppable")
	}
	if r.since(3) {
		m.Cluster = array[*commands.BrokerID](&r, "Message.Cluster")
		m.BrokerInTime = r.long("Message.BrokerInTime")
		m.BrokerOutTime = r.long("Message.BrokerOutTime")
	}
	if r.since(10) {
		m.GroupFirstForConsumer = r.bool("Message.GroupFirstForConsumer")
	}
	return r.err
}

func newMessage(kind byte) func() *commands.Message {
	if kind == commands.MessageType {
		kind = 0
	}
	return func() *commands.Message { return &commands.Message{Kind: kind} }
}
