// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/absmach/openwire/commands"
)

// marshaler encodes and decodes the body of one data structure type.
// marshalAware types carry a cached-form flag when nested.
type marshaler struct {
	new          func() commands.DataStructure
	marshal      func(*encoder, commands.DataStructure)
	unmarshal    func(*decoder, commands.DataStructure) error
	marshalAware bool
}

var registry map[byte]marshaler

func init() {
	registry = map[byte]marshaler{
		commands.WireFormatInfoType:         entry(newOf[commands.WireFormatInfo], marshalWireFormatInfo, unmarshalWireFormatInfo),
		commands.BrokerInfoType:             entry(newOf[commands.BrokerInfo], marshalBrokerInfo, unmarshalBrokerInfo),
		commands.ConnectionInfoType:         entry(newOf[commands.ConnectionInfo], marshalConnectionInfo, unmarshalConnectionInfo),
		commands.SessionInfoType:            entry(newOf[commands.SessionInfo], marshalSessionInfo, unmarshalSessionInfo),
		commands.ConsumerInfoType:           entry(newOf[commands.ConsumerInfo], marshalConsumerInfo, unmarshalConsumerInfo),
		commands.ProducerInfoType:           entry(newOf[commands.ProducerInfo], marshalProducerInfo, unmarshalProducerInfo),
		commands.DestinationInfoType:        entry(newOf[commands.DestinationInfo], marshalDestinationInfo, unmarshalDestinationInfo),
		commands.RemoveSubscriptionInfoType: entry(newOf[commands.RemoveSubscriptionInfo], marshalRemoveSubscriptionInfo, unmarshalRemoveSubscriptionInfo),
		commands.KeepAliveInfoType:          entry(newOf[commands.KeepAliveInfo], marshalKeepAliveInfo, unmarshalKeepAliveInfo),
		commands.ShutdownInfoType:           entry(newOf[commands.ShutdownInfo], marshalShutdownInfo, unmarshalShutdownInfo),
		commands.RemoveInfoType:             entry(newOf[commands.RemoveInfo], marshalRemoveInfo, unmarshalRemoveInfo),
		commands.ConnectionErrorType:        entry(newOf[commands.ConnectionError], marshalConnectionError, unmarshalConnectionError),
		commands.ConnectionControlType:      entry(newOf[commands.ConnectionControl], marshalConnectionControl, unmarshalConnectionControl),
		commands.MessageDispatchType:        entry(newOf[commands.MessageDispatch], marshalMessageDispatch, unmarshalMessageDispatch),
		commands.MessageAckType:             entry(newOf[commands.MessageAck], marshalMessageAck, unmarshalMessageAck),
		commands.ResponseType:               entry(newOf[commands.Response], marshalResponse, unmarshalResponse),
		commands.ExceptionResponseType:      entry(newOf[commands.ExceptionResponse], marshalExceptionResponse, unmarshalExceptionResponse),

		commands.QueueType: destinationEntry(newOf[commands.Queue], func(q *commands.Queue, n string) { q.Name = n }),
		commands.TopicType: destinationEntry(newOf[commands.Topic], func(t *commands.Topic, n string) { t.Name = n }),
		commands.TempQueueType: destinationEntry(newOf[commands.TempQueue],
			func(q *commands.TempQueue, n string) { q.Name = n }),
		commands.TempTopicType: destinationEntry(newOf[commands.TempTopic],
			func(t *commands.TempTopic, n string) { t.Name = n }),

		commands.MessageIDType:          entry(newOf[commands.MessageID], marshalMessageID, unmarshalMessageID),
		commands.LocalTransactionIDType: entry(newOf[commands.LocalTransactionID], marshalLocalTransactionID, unmarshalLocalTransactionID),
		commands.ConnectionIDType:       entry(newOf[commands.ConnectionID], marshalConnectionID, unmarshalConnectionID),
		commands.SessionIDType:          entry(newOf[commands.SessionID], marshalSessionID, unmarshalSessionID),
		commands.ConsumerIDType:         entry(newOf[commands.ConsumerID], marshalConsumerID, unmarshalConsumerID),
		commands.ProducerIDType:         entry(newOf[commands.ProducerID], marshalProducerID, unmarshalProducerID),
		commands.BrokerIDType:           entry(newOf[commands.BrokerID], marshalBrokerID, unmarshalBrokerID),
	}

	for _, kind := range []byte{
		commands.MessageType,
		commands.BytesMessageType,
		commands.MapMessageType,
		commands.StreamMessageType,
		commands.TextMessageType,
	} {
		m := entry(newMessage(kind), marshalMessage, unmarshalMessage)
		m.marshalAware = true
		registry[kind] = m
	}
}

func lookup(t byte) (marshaler, bool) {
	m, ok := registry[t]
	return m, ok
}

func newOf[T any]() *T { return new(T) }

func entry[T commands.DataStructure](newFn func() T, m func(*encoder, T), u func(*decoder, T) error) marshaler {
	return marshaler{
		new: func() commands.DataStructure { return newFn() },
		marshal: func(e *encoder, ds commands.DataStructure) {
			v, ok := ds.(T)
			if !ok {
				e.fail(fmt.Errorf("%w: %T", ErrUnsupportedType, ds))
				return
			}
			m(e, v)
		},
		unmarshal: func(d *decoder, ds commands.DataStructure) error {
			return u(d, ds.(T))
		},
	}
}
