// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package commands

// ConnectionInfo opens a connection on the broker.
type ConnectionInfo struct {
	BaseCommand

	ConnectionID          *ConnectionID
	ClientID              string
	Password              string
	UserName              string
	BrokerPath            []*BrokerID
	BrokerMasterConnector bool
	Manageable            bool
	ClientMaster          bool
	FaultTolerant         bool
	FailoverReconnect     bool
	ClientIP              string
}

func (*ConnectionInfo) DataStructureType() byte { return ConnectionInfoType }

// SessionInfo opens a session.
type SessionInfo struct {
	BaseCommand

	SessionID *SessionID
}

func (*SessionInfo) DataStructureType() byte { return SessionInfoType }

// ConsumerInfo registers a consumer on a destination.
type ConsumerInfo struct {
	BaseCommand

	ConsumerID                 *ConsumerID
	Browser                    bool
	Destination                Destination
	PrefetchSize               int32
	MaximumPendingMessageLimit int32
	DispatchAsync              bool
	Selector                   string
	SubscriptionName           string
	NoLocal                    bool
	Exclusive                  bool
	Retroactive                bool
	Priority                   byte
	BrokerPath                 []*BrokerID
	NetworkSubscription        bool
	OptimizedAcknowledge       bool
	NoRangeAcks                bool
}

func (*ConsumerInfo) DataStructureType() byte { return ConsumerInfoType }

// Durable reports whether the consumer is a durable topic subscription.
func (c *ConsumerInfo) Durable() bool {
	return c.SubscriptionName != "" || c.ConsumerID.Durable()
}

// ProducerInfo registers a producer.
type ProducerInfo struct {
	BaseCommand

	ProducerID    *ProducerID
	Destination   Destination
	BrokerPath    []*BrokerID
	DispatchAsync bool
	WindowSize    int32
}

func (*ProducerInfo) DataStructureType() byte { return ProducerInfoType }

// Destination operations carried by DestinationInfo.
const (
	AddDestinationOperation    byte = 0
	RemoveDestinationOperation byte = 1
)

// DestinationInfo adds or removes a destination, usually a temporary one.
type DestinationInfo struct {
	BaseCommand

	ConnectionID  *ConnectionID
	Destination   Destination
	OperationType byte
	Timeout       int64
	BrokerPath    []*BrokerID
}

func (*DestinationInfo) DataStructureType() byte { return DestinationInfoType }

// RemoveInfo tears down the entity named by ObjectID: a connection,
// session, consumer or producer id.
type RemoveInfo struct {
	BaseCommand

	ObjectID                DataStructure
	LastDeliveredSequenceID int64
}

func (*RemoveInfo) DataStructureType() byte { return RemoveInfoType }

// RemoveSubscriptionInfo deletes a durable subscription on the broker.
type RemoveSubscriptionInfo struct {
	BaseCommand

	ConnectionID     *ConnectionID
	SubscriptionName string
	ClientID         string
}

func (*RemoveSubscriptionInfo) DataStructureType() byte { return RemoveSubscriptionInfoType }
