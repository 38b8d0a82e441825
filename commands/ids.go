// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package commands

import "fmt"

const nilID = "<nil>"

// ConnectionID identifies a client connection.
type ConnectionID struct {
	Value string
}

func (*ConnectionID) DataStructureType() byte { return ConnectionIDType }

func (id *ConnectionID) String() string {
	if id == nil {
		return nilID
	}
	return id.Value
}

// SessionID identifies a session within a connection.
type SessionID struct {
	ConnectionID string
	Value        int64
}

func (*SessionID) DataStructureType() byte { return SessionIDType }

func (id *SessionID) String() string {
	if id == nil {
		return nilID
	}
	return fmt.Sprintf("%s:%d", id.ConnectionID, id.Value)
}

// Parent returns the owning connection id.
func (id *SessionID) Parent() *ConnectionID {
	return &ConnectionID{Value: id.ConnectionID}
}

// ProducerID identifies a producer within a session.
type ProducerID struct {
	ConnectionID string
	SessionID    int64
	Value        int64
}

func (*ProducerID) DataStructureType() byte { return ProducerIDType }

// String returns connectionId:sessionId:value.
func (id *ProducerID) String() string {
	if id == nil {
		return nilID
	}
	return fmt.Sprintf("%s:%d:%d", id.ConnectionID, id.SessionID, id.Value)
}

// Parent returns the owning session id.
func (id *ProducerID) Parent() *SessionID {
	return &SessionID{ConnectionID: id.ConnectionID, Value: id.SessionID}
}

// ConsumerID identifies a consumer within a session. A non-empty
// SubscriptionName marks a durable topic subscription whose broker-side
// state outlives the connection.
type ConsumerID struct {
	ConnectionID     string
	SessionID        int64
	Value            int64
	SubscriptionName string
}

func (*ConsumerID) DataStructureType() byte { return ConsumerIDType }

// String returns connectionId:sessionId:value.
func (id *ConsumerID) String() string {
	if id == nil {
		return nilID
	}
	return fmt.Sprintf("%s:%d:%d", id.ConnectionID, id.SessionID, id.Value)
}

// Parent returns the owning session id.
func (id *ConsumerID) Parent() *SessionID {
	return &SessionID{ConnectionID: id.ConnectionID, Value: id.SessionID}
}

// Durable reports whether the id denotes a durable subscription.
func (id *ConsumerID) Durable() bool {
	return id != nil && id.SubscriptionName != ""
}

// MessageID identifies a message by its producer and sequence number.
// It is only meaningful with a fully decoded ProducerID.
type MessageID struct {
	TextView           string
	ProducerID         *ProducerID
	ProducerSequenceID int64
	BrokerSequenceID   int64
}

func (*MessageID) DataStructureType() byte { return MessageIDType }

func (id *MessageID) String() string {
	if id == nil {
		return nilID
	}
	if id.TextView != "" {
		return id.TextView
	}
	if id.ProducerID == nil {
		return fmt.Sprintf("<nil>:%d", id.ProducerSequenceID)
	}
	return fmt.Sprintf("%s:%d", id.ProducerID, id.ProducerSequenceID)
}

// Valid reports whether the id carries its producer.
func (id *MessageID) Valid() bool {
	return id != nil && id.ProducerID != nil
}

// BrokerID identifies a broker.
type BrokerID struct {
	Value string
}

func (*BrokerID) DataStructureType() byte { return BrokerIDType }

func (id *BrokerID) String() string {
	if id == nil {
		return nilID
	}
	return id.Value
}

// TransactionID is implemented by transaction identifiers.
type TransactionID interface {
	DataStructure
	transactionID()
}

// LocalTransactionID identifies a broker-local transaction.
type LocalTransactionID struct {
	ConnectionID *ConnectionID
	Value        int64
}

func (*LocalTransactionID) DataStructureType() byte { return LocalTransactionIDType }

func (*LocalTransactionID) transactionID() {}

func (id *LocalTransactionID) String() string {
	if id.ConnectionID == nil {
		return fmt.Sprintf("TX:<nil>:%d", id.Value)
	}
	return fmt.Sprintf("TX:%s:%d", id.ConnectionID.Value, id.Value)
}
