// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/commands"
)

var versions = []int{1, 2, 3, 5, 6, 7, 8, 10, 12}

func producerID() *commands.ProducerID {
	return &commands.ProducerID{ConnectionID: "ID:producer-conn-1", SessionID: 3, Value: 9}
}

func messageID(version int) *commands.MessageID {
	id := &commands.MessageID{
		ProducerID:         producerID(),
		ProducerSequenceID: 42,
		BrokerSequenceID:   1 << 33,
	}
	if version >= 10 {
		id.TextView = "ID:producer-conn-1:3:9:42"
	}
	return id
}

func consumerID() *commands.ConsumerID {
	return &commands.ConsumerID{ConnectionID: "ID:consumer-conn-7", SessionID: 1, Value: 2}
}

func sampleMessage(version int, content string) *commands.Message {
	m := &commands.Message{
		Kind:          commands.TextMessageType,
		ProducerID:    producerID(),
		Destination:   &commands.Queue{Name: "orders"},
		TransactionID: &commands.LocalTransactionID{ConnectionID: &commands.ConnectionID{Value: "ID:producer-conn-1"}, Value: 7},
		MessageID:     messageID(version),
		GroupID:       "group-a",
		GroupSequence: 4,
		CorrelationID: "corr-1",
		Persistent:    true,
		Expiration:    1700000000000,
		Priority:      4,
		ReplyTo:       &commands.TempQueue{Name: "ID:replies"},
		Timestamp:     1700000000123,
		Type:          "order",
		Content:       []byte(content),
		Properties: map[string]any{
			"attempt": int32(3),
			"big":     int64(1 << 40),
			"flag":    true,
			"ratio":   0.5,
			"region":  "eu",
			"raw":     []byte{1, 2, 3},
			"nested":  map[string]any{"k": "v"},
			"list":    []any{int32(1), "two"},
		},
		RedeliveryCounter:  1,
		BrokerPath:         []*commands.BrokerID{{Value: "broker-a"}},
		Arrival:            65535,
		UserID:             "alice",
		ReceivedByDFBridge: true,
	}
	if version >= 2 {
		m.Droppable = true
	}
	if version >= 3 {
		m.Cluster = []*commands.BrokerID{{Value: "broker-a"}, {Value: "broker-b"}}
		m.BrokerInTime = 70000
		m.BrokerOutTime = 1 << 50
	}
	if version >= 10 {
		m.GroupFirstForConsumer = true
	}
	return m
}

func sampleDispatch(version int, content string) *commands.MessageDispatch {
	return &commands.MessageDispatch{
		BaseCommand:       commands.BaseCommand{ID: 11},
		ConsumerID:        consumerID(),
		Destination:       &commands.Queue{Name: "orders"},
		Message:           sampleMessage(version, content),
		RedeliveryCounter: 2,
	}
}

// sampleCommands returns one populated instance of every command, using
// only the fields that exist at version.
func sampleCommands(version int) []commands.Command {
	conn := &commands.ConnectionID{Value: "ID:conn-1"}

	ci := &commands.ConnectionInfo{
		BaseCommand:           commands.BaseCommand{ID: 1, ResponseRequired: true},
		ConnectionID:          conn,
		ClientID:              "client-1",
		Password:              "secret",
		UserName:              "admin",
		BrokerPath:            []*commands.BrokerID{},
		BrokerMasterConnector: true,
		Manageable:            true,
	}
	if version >= 2 {
		ci.ClientMaster = true
	}
	if version >= 6 {
		ci.FaultTolerant = true
		ci.FailoverReconnect = true
	}
	if version >= 8 {
		ci.ClientIP = "10.0.0.1"
	}

	pi := &commands.ProducerInfo{
		BaseCommand: commands.BaseCommand{ID: 4, ResponseRequired: true},
		ProducerID:  producerID(),
		Destination: &commands.Topic{Name: "prices"},
	}
	if version >= 2 {
		pi.DispatchAsync = true
	}
	if version >= 3 {
		pi.WindowSize = 1024
	}

	ri := &commands.RemoveInfo{
		BaseCommand: commands.BaseCommand{ID: 6},
		ObjectID:    consumerID(),
	}
	if version >= 5 {
		ri.LastDeliveredSequenceID = -1
	}

	cc := &commands.ConnectionControl{
		BaseCommand:   commands.BaseCommand{ID: 12},
		FaultTolerant: true,
		Resume:        true,
	}
	if version >= 6 {
		cc.ConnectedBrokers = "tcp://a:61616,tcp://b:61616"
		cc.ReconnectTo = "tcp://b:61616"
		cc.RebalanceConnection = true
	}

	bi := &commands.BrokerInfo{
		BrokerID:        &commands.BrokerID{Value: "broker-a"},
		BrokerURL:       "tcp://a:61616",
		PeerBrokerInfos: []*commands.BrokerInfo{{BrokerID: &commands.BrokerID{Value: "broker-b"}, BrokerName: "b"}},
		BrokerName:      "a",
		MasterBroker:    true,
	}
	if version >= 2 {
		bi.NetworkConnection = true
		bi.ConnectionID = 77
	}
	if version >= 3 {
		bi.BrokerUploadURL = "http://a/upload"
		bi.NetworkProperties = "k=v"
	}

	ack := &commands.MessageAck{
		BaseCommand:    commands.BaseCommand{ID: 13},
		Destination:    &commands.Queue{Name: "orders"},
		ConsumerID:     consumerID(),
		AckType:        commands.StandardAck,
		FirstMessageID: messageID(version),
		LastMessageID:  messageID(version),
		MessageCount:   1,
	}
	if version >= 7 {
		ack.AckType = commands.PoisonAck
		ack.PoisonCause = &commands.BrokerError{ExceptionClass: "java.io.IOException", Message: "bad frame"}
	}

	return []commands.Command{
		codec.NewWireFormatInfo(codec.Options{Version: version, TightEncoding: true}),
		ci,
		&commands.SessionInfo{
			BaseCommand: commands.BaseCommand{ID: 2, ResponseRequired: true},
			SessionID:   &commands.SessionID{ConnectionID: "ID:conn-1", Value: 1},
		},
		&commands.ConsumerInfo{
			BaseCommand:                commands.BaseCommand{ID: 3, ResponseRequired: true},
			ConsumerID:                 &commands.ConsumerID{ConnectionID: "ID:conn-1", SessionID: 1, Value: 1, SubscriptionName: "durable-1"},
			Destination:                &commands.Topic{Name: "prices"},
			PrefetchSize:               1000,
			MaximumPendingMessageLimit: -1,
			Selector:                   "region = 'eu'",
			SubscriptionName:           "durable-1",
			NoLocal:                    true,
			Priority:                   5,
		},
		pi,
		&commands.DestinationInfo{
			BaseCommand:   commands.BaseCommand{ID: 5, ResponseRequired: true},
			ConnectionID:  conn,
			Destination:   &commands.TempTopic{Name: "ID:conn-1:1"},
			OperationType: commands.AddDestinationOperation,
			Timeout:       3000,
		},
		ri,
		&commands.RemoveSubscriptionInfo{
			BaseCommand:      commands.BaseCommand{ID: 7},
			ConnectionID:     conn,
			SubscriptionName: "durable-1",
			ClientID:         "client-1",
		},
		&commands.KeepAliveInfo{BaseCommand: commands.BaseCommand{ID: 8, ResponseRequired: true}},
		&commands.ShutdownInfo{BaseCommand: commands.BaseCommand{ID: 9}},
		&commands.ConnectionError{
			BaseCommand:  commands.BaseCommand{ID: 10},
			Exception:    &commands.BrokerError{ExceptionClass: "javax.jms.JMSException", Message: "boom"},
			ConnectionID: conn,
		},
		cc,
		bi,
		sampleDispatch(version, "hello"),
		ack,
		sampleMessage(version, "payload"),
		&commands.Message{Kind: commands.BytesMessageType, Content: []byte{0}},
		&commands.Response{BaseCommand: commands.BaseCommand{ID: 14}, CorrelationID: 3},
		&commands.ExceptionResponse{
			BaseCommand:   commands.BaseCommand{ID: 15},
			CorrelationID: 4,
			Exception:     &commands.BrokerError{ExceptionClass: "javax.jms.InvalidDestinationException", Message: "no such queue"},
		},
	}
}
