// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"strings"
)

// ErrInvalidDestination is returned when a destination string cannot be parsed.
var ErrInvalidDestination = errors.New("invalid destination")

// Destination prefixes used by ParseDestination and Destination.String.
const (
	QueuePrefix     = "queue://"
	TopicPrefix     = "topic://"
	TempQueuePrefix = "temp-queue://"
	TempTopicPrefix = "temp-topic://"
)

// Destination is a queue or topic, permanent or temporary.
type Destination interface {
	DataStructure
	PhysicalName() string
	IsTopic() bool
	IsTemporary() bool
	String() string
}

// Queue is a point-to-point destination.
type Queue struct{ Name string }

// Topic is a publish/subscribe destination.
type Topic struct{ Name string }

// TempQueue is a queue scoped to the connection that created it.
type TempQueue struct{ Name string }

// TempTopic is a topic scoped to the connection that created it.
type TempTopic struct{ Name string }

func (*Queue) DataStructureType() byte     { return QueueType }
func (*Topic) DataStructureType() byte     { return TopicType }
func (*TempQueue) DataStructureType() byte { return TempQueueType }
func (*TempTopic) DataStructureType() byte { return TempTopicType }

func (d *Queue) PhysicalName() string     { return d.Name }
func (d *Topic) PhysicalName() string     { return d.Name }
func (d *TempQueue) PhysicalName() string { return d.Name }
func (d *TempTopic) PhysicalName() string { return d.Name }

func (*Queue) IsTopic() bool     { return false }
func (*Topic) IsTopic() bool     { return true }
func (*TempQueue) IsTopic() bool { return false }
func (*TempTopic) IsTopic() bool { return true }

func (*Queue) IsTemporary() bool     { return false }
func (*Topic) IsTemporary() bool     { return false }
func (*TempQueue) IsTemporary() bool { return true }
func (*TempTopic) IsTemporary() bool { return true }

func (d *Queue) String() string     { return QueuePrefix + d.Name }
func (d *Topic) String() string     { return TopicPrefix + d.Name }
func (d *TempQueue) String() string { return TempQueuePrefix + d.Name }
func (d *TempTopic) String() string { return TempTopicPrefix + d.Name }

// NewDestination creates a destination for the given type tag.
func NewDestination(t byte, name string) (Destination, error) {
	switch t {
	case QueueType:
		return &Queue{Name: name}, nil
	case TopicType:
		return &Topic{Name: name}, nil
	case TempQueueType:
		return &TempQueue{Name: name}, nil
	case TempTopicType:
		return &TempTopic{Name: name}, nil
	default:
		return nil, ErrInvalidDestination
	}
}

// ParseDestination parses "queue://name", "topic://name" and the temporary
// variants. A bare name is treated as a queue.
func ParseDestination(s string) (Destination, error) {
	switch {
	case strings.HasPrefix(s, QueuePrefix):
		return nonEmpty(QueueType, strings.TrimPrefix(s, QueuePrefix))
	case strings.HasPrefix(s, TopicPrefix):
		return nonEmpty(TopicType, strings.TrimPrefix(s, TopicPrefix))
	case strings.HasPrefix(s, TempQueuePrefix):
		return nonEmpty(TempQueueType, strings.TrimPrefix(s, TempQueuePrefix))
	case strings.HasPrefix(s, TempTopicPrefix):
		return nonEmpty(TempTopicType, strings.TrimPrefix(s, TempTopicPrefix))
	case strings.Contains(s, "://"):
		return nil, ErrInvalidDestination
	default:
		return nonEmpty(QueueType, s)
	}
}

func nonEmpty(t byte, name string) (Destination, error) {
	if name == "" {
		return nil, ErrInvalidDestination
	}
	return NewDestination(t, name)
}
