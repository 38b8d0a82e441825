// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import "github.com/absmach/openwire/commands"

func marshalConnectionID(e *encoder, id *commands.ConnectionID) {
	e.writeString("ConnectionId.Value", id.Value)
}

func unmarshalConnectionID(d *decoder, id *commands.ConnectionID) (err error) {
	id.Value, err = d.readString("ConnectionId.Value")
	return err
}

func marshalSessionID(e *encoder, id *commands.SessionID) {
	e.writeString("SessionId.ConnectionId", id.ConnectionID)
	e.writeLong(id.Value)
}

func unmarshalSessionID(d *decoder, id *commands.SessionID) (err error) {
	if id.ConnectionID, err = d.readString("SessionId.ConnectionId"); err != nil {
		return err
	}
	id.Value, err = d.readLong("SessionId.Value")
	return err
}

func marshalProducerID(e *encoder, id *commands.ProducerID) {
	e.writeString("ProducerId.ConnectionId", id.ConnectionID)
	e.writeLong(id.Value)
	e.writeLong(id.SessionID)
}

func unmarshalProducerID(d *decoder, id *commands.ProducerID) (err error) {
	if id.ConnectionID, err = d.readString("ProducerId.ConnectionId"); err != nil {
		return err
	}
	if id.Value, err = d.readLong("ProducerId.Value"); err != nil {
		return err
	}
	id.SessionID, err = d.readLong("ProducerId.SessionId")
	return err
}

// The subscription name trails the ActiveMQ ConsumerId layout so that a
// durable consumer id is self-describing on the wire.
func marshalConsumerID(e *encoder, id *commands.ConsumerID) {
	e.writeString("ConsumerId.ConnectionId", id.ConnectionID)
	e.writeLong(id.SessionID)
	e.writeLong(id.Value)
	e.writeString("ConsumerId.SubscriptionName", id.SubscriptionName)
}

func unmarshalConsumerID(d *decoder, id *commands.ConsumerID) (err error) {
	if id.ConnectionID, err = d.readString("ConsumerId.ConnectionId"); err != nil {
		return err
	}
	if id.SessionID, err = d.readLong("ConsumerId.SessionId"); err != nil {
		return err
	}
	if id.Value, err = d.readLong("ConsumerId.Value"); err != nil {
		return err
	}
	id.SubscriptionName, err = d.readString("ConsumerId.SubscriptionName")
	return err
}

func marshalMessageID(e *encoder, id *commands.MessageID) {
	if e.version >= 10 {
		e.writeString("MessageId.TextView", id.TextView)
	}
	e.writeNested("MessageId.ProducerId", id.ProducerID)
	e.writeLong(id.ProducerSequenceID)
	e.writeLong(id.BrokerSequenceID)
}

func unmarshalMessageID(d *decoder, id *commands.MessageID) (err error) {
	if d.version >= 10 {
		if id.TextView, err = d.readString("MessageId.TextView"); err != nil {
			return err
		}
	}
	if id.ProducerID, err = readObject[*commands.ProducerID](d, "MessageId.ProducerId"); err != nil {
		return err
	}
	if id.ProducerSequenceID, err = d.readLong("MessageId.ProducerSequenceId"); err != nil {
		return err
	}
	id.BrokerSequenceID, err = d.readLong("MessageId.BrokerSequenceId")
	return err
}

func marshalBrokerID(e *encoder, id *commands.BrokerID) {
	e.writeString("BrokerId.Value", id.Value)
}

func unmarshalBrokerID(d *decoder, id *commands.BrokerID) (err error) {
	id.Value, err = d.readString("BrokerId.Value")
	return err
}

func marshalLocalTransactionID(e *encoder, id *commands.LocalTransactionID) {
	e.writeLong(id.Value)
	e.writeNested("LocalTransactionId.ConnectionId", id.ConnectionID)
}

func unmarshalLocalTransactionID(d *decoder, id *commands.LocalTransactionID) (err error) {
	if id.Value, err = d.readLong("LocalTransactionId.Value"); err != nil {
		return err
	}
	id.ConnectionID, err = readObject[*commands.ConnectionID](d, "LocalTransactionId.ConnectionId")
	return err
}

// destinationEntry registers one destination type. All destinations carry
// only their physical name.
func destinationEntry[T commands.Destination](newFn func() T, set func(T, string)) marshaler {
	return entry(newFn,
		func(e *encoder, dest T) {
			e.writeString("Destination.PhysicalName", dest.PhysicalName())
		},
		func(d *decoder, dest T) error {
			name, err := d.readString("Destination.PhysicalName")
			set(dest, name)
			return err
		})
}
