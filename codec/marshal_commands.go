// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/absmach/openwire/commands"
)

func marshalWireFormatInfo(e *encoder, w *commands.WireFormatInfo) {
	if e.err != nil {
		return
	}
	e.buf.Write(w.Magic[:])
	e.writeInt32(w.Version)
	props, err := MarshalPrimitiveMap(w.Properties)
	if err != nil {
		e.fail(fmt.Errorf("WireFormatInfo.Properties: %w", err))
		return
	}
	e.writeBytes(props)
}

func unmarshalWireFormatInfo(d *decoder, w *commands.WireFormatInfo) error {
	magic, err := d.take("WireFormatInfo.Magic", len(w.Magic))
	if err != nil {
		return err
	}
	copy(w.Magic[:], magic)

	r := fieldReader{d: d}
	w.Version = r.int32("WireFormatInfo.Version")
	props := r.bytes("WireFormatInfo.Properties")
	if r.err != nil {
		return r.err
	}
	w.Properties, err = UnmarshalPrimitiveMap(props)
	return err
}

func marshalBrokerInfo(e *encoder, b *commands.BrokerInfo) {
	marshalBase(e, &b.BaseCommand)
	e.writeNested("BrokerInfo.BrokerId", b.BrokerID)
	e.writeString("BrokerInfo.BrokerURL", b.BrokerURL)
	writeArray(e, "BrokerInfo.PeerBrokerInfos", b.PeerBrokerInfos)
	e.writeString("BrokerInfo.BrokerName", b.BrokerName)
	e.writeBool(b.SlaveBroker)
	e.writeBool(b.MasterBroker)
	e.writeBool(b.FaultTolerantConfiguration)
	if e.version >= 2 {
		e.writeBool(b.DuplexConnection)
		e.writeBool(b.NetworkConnection)
		e.writeLong(b.ConnectionID)
	}
	if e.version >= 3 {
		e.writeString("BrokerInfo.BrokerUploadURL", b.BrokerUploadURL)
		e.writeString("BrokerInfo.NetworkProperties", b.NetworkProperties)
	}
}

func unmarshalBrokerInfo(d *decoder, b *commands.BrokerInfo) error {
	r := fieldReader{d: d}
	r.base(&b.BaseCommand)
	b.BrokerID = object[*commands.BrokerID](&r, "BrokerInfo.BrokerId")
	b.BrokerURL = r.string("BrokerInfo.BrokerURL")
	b.PeerBrokerInfos = array[*commands.BrokerInfo](&r, "BrokerInfo.PeerBrokerInfos")
	b.BrokerName = r.string("BrokerInfo.BrokerName")
	b.SlaveBroker = r.bool("BrokerInfo.SlaveBroker")
	b.MasterBroker = r.bool("BrokerInfo.MasterBroker")
	b.FaultTolerantConfiguration = r.bool("BrokerInfo.FaultTolerantConfiguration")
	if r.since(2) {
		b.DuplexConnection = r.bool("BrokerInfo.DuplexConnection")
		b.NetworkConnection = r.bool("BrokerInfo.NetworkConnection")
		b.ConnectionID = r.long("BrokerInfo.ConnectionId")
	}
	if r.since(3) {
		b.BrokerUploadURL = r.string("BrokerInfo.BrokerUploadURL")
		b.NetworkProperties = r.string("BrokerInfo.NetworkProperties")
	}
	return r.err
}

func marshalConnectionInfo(e *encoder, c *commands.ConnectionInfo) {
	marshalBase(e, &c.BaseCommand)
	e.writeNested("ConnectionInfo.ConnectionId", c.ConnectionID)
	e.writeString("ConnectionInfo.ClientId", c.ClientID)
	e.writeString("ConnectionInfo.Password", c.Password)
	e.writeString("ConnectionInfo.UserName", c.UserName)
	writeArray(e, "ConnectionInfo.BrokerPath", c.BrokerPath)
	e.writeBool(c.BrokerMasterConnector)
	e.writeBool(c.Manageable)
	if e.version >= 2 {
		e.writeBool(c.ClientMaster)
	}
	if e.version >= 6 {
		e.writeBool(c.FaultTolerant)
		e.writeBool(c.FailoverReconnect)
	}
	if e.version >= 8 {
		e.writeString("ConnectionInfo.ClientIp", c.ClientIP)
	}
}

func unmarshalConnectionInfo(d *decoder, c *commands.ConnectionInfo) error {
	r := fieldReader{d: d}
	r.base(&c.BaseCommand)
	c.ConnectionID = object[*commands.ConnectionID](&r, "ConnectionInfo.ConnectionId")
	c.ClientID = r.string("ConnectionInfo.ClientId")
	c.Password = r.string("ConnectionInfo.Password")
	c.UserName = r.string("ConnectionInfo.UserName")
	c.BrokerPath = array[*commands.BrokerID](&r, "ConnectionInfo.BrokerPath")
	c.BrokerMasterConnector = r.bool("ConnectionInfo.BrokerMasterConnector")
	c.Manageable = r.bool("ConnectionInfo.Manageable")
	if r.since(2) {
		c.ClientMaster = r.bool("ConnectionInfo.ClientMaster")
	}
	if r.since(6) {
		c.FaultTolerant = r.bool("ConnectionInfo.FaultTolerant")
		c.FailoverReconnect = r.bool("ConnectionInfo.FailoverReconnect")
	}
	if r.since(8) {
		c.ClientIP = r.string("ConnectionInfo.ClientIp")
	}
	return r.err
}

func marshalSessionInfo(e *encoder, s *commands.SessionInfo) {
	marshalBase(e, &s.BaseCommand)
	e.writeNested("SessionInfo.SessionId", s.SessionID)
}

func unmarshalSessionInfo(d *decoder, s *commands.SessionInfo) error {
	r := fieldReader{d: d}
	r.base(&s.BaseCommand)
	s.SessionID = object[*commands.SessionID](&r, "SessionInfo.SessionId")
	return r.err
}

func marshalConsumerInfo(e *encoder, c *commands.ConsumerInfo) {
	marshalBase(e, &c.BaseCommand)
	e.writeNested("ConsumerInfo.ConsumerId", c.ConsumerID)
	e.writeBool(c.Browser)
	e.writeNested("ConsumerInfo.Destination", c.Destination)
	e.writeInt32(c.PrefetchSize)
	e.writeInt32(c.MaximumPendingMessageLimit)
	e.writeBool(c.DispatchAsync)
	e.writeString("ConsumerInfo.Selector", c.Selector)
	e.writeString("ConsumerInfo.SubscriptionName", c.SubscriptionName)
	e.writeBool(c.NoLocal)
	e.writeBool(c.Exclusive)
	e.writeBool(c.Retroactive)
	e.writeByte(c.Priority)
	writeArray(e, "ConsumerInfo.BrokerPath", c.BrokerPath)
	e.writeBool(c.NetworkSubscription)
	e.writeBool(c.OptimizedAcknowledge)
	e.writeBool(c.NoRangeAcks)
}

func unmarshalConsumerInfo(d *decoder, c *commands.ConsumerInfo) error {
	r := fieldReader{d: d}
	r.base(&c.BaseCommand)
	c.ConsumerID = object[*commands.ConsumerID](&r, "ConsumerInfo.ConsumerId")
	c.Browser = r.bool("ConsumerInfo.Browser")
	c.Destination = object[commands.Destination](&r, "ConsumerInfo.Destination")
	c.PrefetchSize = r.int32("ConsumerInfo.PrefetchSize")
	c.MaximumPendingMessageLimit = r.int32("ConsumerInfo.MaximumPendingMessageLimit")
	c.DispatchAsync = r.bool("ConsumerInfo.DispatchAsync")
	c.Selector = r.string("ConsumerInfo.Selector")
	c.SubscriptionName = r.string("ConsumerInfo.SubscriptionName")
	c.NoLocal = r.bool("ConsumerInfo.NoLocal")
	c.Exclusive = r.bool("ConsumerInfo.Exclusive")
	c.Retroactive = r.bool("ConsumerInfo.Retroactive")
	c.Priority = r.byte("ConsumerInfo.Priority")
	c.BrokerPath = array[*commands.BrokerID](&r, "ConsumerInfo.BrokerPath")
	c.NetworkSubscription = r.bool("ConsumerInfo.NetworkSubscription")
	c.OptimizedAcknowledge = r.bool("ConsumerInfo.OptimizedAcknowledge")
	c.NoRangeAcks = r.bool("ConsumerInfo.NoRangeAcks")
	return r.err
}

func marshalProducerInfo(e *encoder, p *commands.ProducerInfo) {
	marshalBase(e, &p.BaseCommand)
	e.writeNested("ProducerInfo.ProducerId", p.ProducerID)
	e.writeNested("ProducerInfo.Destination", p.Destination)
	writeArray(e, "ProducerInfo.BrokerPath", p.BrokerPath)
	if e.version >= 2 {
		e.writeBool(p.DispatchAsync)
	}
	if e.version >= 3 {
		e.writeInt32(p.WindowSize)
	}
}

func unmarshalProducerInfo(d *decoder, p *commands.ProducerInfo) error {
	r := fieldReader{d: d}
	r.base(&p.BaseCommand)
	p.ProducerID = object[*commands.ProducerID](&r, "ProducerInfo.ProducerId")
	p.Destination = object[commands.Destination](&r, "ProducerInfo.Destination")
	p.BrokerPath = array[*commands.BrokerID](&r, "ProducerInfo.BrokerPath")
	if r.since(2) {
		p.DispatchAsync = r.bool("ProducerInfo.DispatchAsync")
	}
	if r.since(3) {
		p.WindowSize = r.int32("ProducerInfo.WindowSize")
	}
	return r.err
}

func marshalDestinationInfo(e *encoder, di *commands.DestinationInfo) {
	marshalBase(e, &di.BaseCommand)
	e.writeNested("DestinationInfo.ConnectionId", di.ConnectionID)
	e.writeNested("DestinationInfo.Destination", di.Destination)
	e.writeByte(di.OperationType)
	e.writeLong(di.Timeout)
	writeArray(e, "DestinationInfo.BrokerPath", di.BrokerPath)
}

func unmarshalDestinationInfo(d *decoder, di *commands.DestinationInfo) error {
	r := fieldReader{d: d}
	r.base(&di.BaseCommand)
	di.ConnectionID = object[*commands.ConnectionID](&r, "DestinationInfo.ConnectionId")
	di.Destination = object[commands.Destination](&r, "DestinationInfo.Destination")
	di.OperationType = r.byte("DestinationInfo.OperationType")
	di.Timeout = r.long("DestinationInfo.Timeout")
	di.BrokerPath = array[*commands.BrokerID](&r, "DestinationInfo.BrokerPath")
	return r.err
}

func marshalRemoveInfo(e *encoder, ri *commands.RemoveInfo) {
	marshalBase(e, &ri.BaseCommand)
	e.writeNested("RemoveInfo.ObjectId", ri.ObjectID)
	if e.version >= 5 {
		e.writeLong(ri.LastDeliveredSequenceID)
	}
}

func unmarshalRemoveInfo(d *decoder, ri *commands.RemoveInfo) error {
	r := fieldReader{d: d}
	r.base(&ri.BaseCommand)
	ri.ObjectID = object[commands.DataStructure](&r, "RemoveInfo.ObjectId")
	if r.since(5) {
		ri.LastDeliveredSequenceID = r.long("RemoveInfo.LastDeliveredSequenceId")
	}
	return r.err
}

func marshalRemoveSubscriptionInfo(e *encoder, rs *commands.RemoveSubscriptionInfo) {
	marshalBase(e, &rs.BaseCommand)
	e.writeNested("RemoveSubscriptionInfo.ConnectionId", rs.ConnectionID)
	e.writeString("RemoveSubscriptionInfo.SubscriptionName", rs.SubscriptionName)
	e.writeString("RemoveSubscriptionInfo.ClientId", rs.ClientID)
}

func unmarshalRemoveSubscriptionInfo(d *decoder, rs *commands.RemoveSubscriptionInfo) error {
	r := fieldReader{d: d}
	r.base(&rs.BaseCommand)
	rs.ConnectionID = object[*commands.ConnectionID](&r, "RemoveSubscriptionInfo.ConnectionId")
	rs.SubscriptionName = r.string("RemoveSubscriptionInfo.SubscriptionName")
	rs.ClientID = r.string("RemoveSubscriptionInfo.ClientId")
	return r.err
}

func marshalKeepAliveInfo(e *encoder, k *commands.KeepAliveInfo) { marshalBase(e, &k.BaseCommand) }

func unmarshalKeepAliveInfo(d *decoder, k *commands.KeepAliveInfo) error {
	r := fieldReader{d: d}
	r.base(&k.BaseCommand)
	return r.err
}

func marshalShutdownInfo(e *encoder, s *commands.ShutdownInfo) { marshalBase(e, &s.BaseCommand) }

func unmarshalShutdownInfo(d *decoder, s *commands.ShutdownInfo) error {
	r := fieldReader{d: d}
	r.base(&s.BaseCommand)
	return r.err
}

func marshalConnectionError(e *encoder, ce *commands.ConnectionError) {
	marshalBase(e, &ce.BaseCommand)
	e.writeBrokerError(ce.Exception)
	e.writeNested("ConnectionError.ConnectionId", ce.ConnectionID)
}

func unmarshalConnectionError(d *decoder, ce *commands.ConnectionError) error {
	r := fieldReader{d: d}
	r.base(&ce.BaseCommand)
	ce.Exception = r.brokerError("ConnectionError.Exception")
	ce.ConnectionID = object[*commands.ConnectionID](&r, "ConnectionError.ConnectionId")
	return r.err
}

func marshalConnectionControl(e *encoder, cc *commands.ConnectionControl) {
	marshalBase(e, &cc.BaseCommand)
	e.writeBool(cc.Close)
	e.writeBool(cc.Exit)
	e.writeBool(cc.FaultTolerant)
	e.writeBool(cc.Resume)
	e.writeBool(cc.Suspend)
	if e.version >= 6 {
		e.writeString("ConnectionControl.ConnectedBrokers", cc.ConnectedBrokers)
		e.writeString("ConnectionControl.ReconnectTo", cc.ReconnectTo)
		e.writeBool(cc.RebalanceConnection)
	}
}

func unmarshalConnectionControl(d *decoder, cc *commands.ConnectionControl) error {
	r := fieldReader{d: d}
	r.base(&cc.BaseCommand)
	cc.Close = r.bool("ConnectionControl.Close")
	cc.Exit = r.bool("ConnectionControl.Exit")
	cc.FaultTolerant = r.bool("ConnectionControl.FaultTolerant")
	cc.Resume = r.bool("ConnectionControl.Resume")
	cc.Suspend = r.bool("ConnectionControl.Suspend")
	if r.since(6) {
		cc.ConnectedBrokers = r.string("ConnectionControl.ConnectedBrokers")
		cc.ReconnectTo = r.string("ConnectionControl.ReconnectTo")
		cc.RebalanceConnection = r.bool("ConnectionControl.RebalanceConnection")
	}
	return r.err
}

func marshalMessageDispatch(e *encoder, md *commands.MessageDispatch) {
	marshalBase(e, &md.BaseCommand)
	e.writeNested("MessageDispatch.ConsumerId", md.ConsumerID)
	e.writeNested("MessageDispatch.Destination", md.Destination)
	e.writeNested("MessageDispatch.Message", md.Message)
	e.writeInt32(md.RedeliveryCounter)
}

// unmarshalMessageDispatch keeps a partially decoded message so that its
// MessageId stays reachable when the message body is corrupt.
func unmarshalMessageDispatch(d *decoder, md *commands.MessageDispatch) error {
	r := fieldReader{d: d}
	r.base(&md.BaseCommand)
	md.ConsumerID = object[*commands.ConsumerID](&r, "MessageDispatch.ConsumerId")
	md.Destination = object[commands.Destination](&r, "MessageDispatch.Destination")
	if r.err != nil {
		return r.err
	}

	offset := d.pos
	ds, err := d.readNested("MessageDispatch.Message")
	if ds != nil {
		msg, ok := ds.(*commands.Message)
		if !ok {
			return &UnexpectedTypeError{Field: "MessageDispatch.Message", Type: ds.DataStructureType(), Offset: offset}
		}
		md.Message = msg
	}
	if err != nil {
		return err
	}

	md.RedeliveryCounter = r.int32("MessageDispatch.RedeliveryCounter")
	return r.err
}

func marshalMessageAck(e *encoder, ma *commands.MessageAck) {
	marshalBase(e, &ma.BaseCommand)
	e.writeNested("MessageAck.Destination", ma.Destination)
	e.writeNested("MessageAck.TransactionId", ma.TransactionID)
	e.writeNested("MessageAck.ConsumerId", ma.ConsumerID)
	e.writeByte(byte(ma.AckType))
	e.writeNested("MessageAck.FirstMessageId", ma.FirstMessageID)
	e.writeNested("MessageAck.LastMessageId", ma.LastMessageID)
	e.writeInt32(ma.MessageCount)
	if e.version >= 7 {
		e.writeBrokerError(ma.PoisonCause)
	}
}

func unmarshalMessageAck(d *decoder, ma *commands.MessageAck) error {
	r := fieldReader{d: d}
	r.base(&ma.BaseCommand)
	ma.Destination = object[commands.Destination](&r, "MessageAck.Destination")
	ma.TransactionID = object[commands.TransactionID](&r, "MessageAck.TransactionId")
	ma.ConsumerID = object[*commands.ConsumerID](&r, "MessageAck.ConsumerId")
	ma.AckType = commands.AckType(r.byte("MessageAck.AckType"))
	ma.FirstMessageID = object[*commands.MessageID](&r, "MessageAck.FirstMessageId")
	ma.LastMessageID = object[*commands.MessageID](&r, "MessageAck.LastMessageId")
	ma.MessageCount = r.int32("MessageAck.MessageCount")
	if r.since(7) {
		ma.PoisonCause = r.brokerError("MessageAck.PoisonCause")
	}
	return r.err
}

func marshalResponse(e *encoder, resp *commands.Response) {
	marshalBase(e, &resp.BaseCommand)
	e.writeInt32(resp.CorrelationID)
}

func unmarshalResponse(d *decoder, resp *commands.Response) error {
	r := fieldReader{d: d}
	r.base(&resp.BaseCommand)
	resp.CorrelationID = r.int32("Response.CorrelationId")
	return r.err
}

func marshalExceptionResponse(e *encoder, resp *commands.ExceptionResponse) {
	marshalBase(e, &resp.BaseCommand)
	e.writeInt32(resp.CorrelationID)
	e.writeBrokerError(resp.Exception)
}

func unmarshalExceptionResponse(d *decoder, resp *commands.ExceptionResponse) error {
	r := fieldReader{d: d}
	r.base(&resp.BaseCommand)
	resp.CorrelationID = r.int32("ExceptionResponse.CorrelationId")
	resp.Exception = r.brokerError("ExceptionResponse.Exception")
	return r.err
}
