// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Message errors.
var (
	ErrNotTextMessage = errors.New("message is not a text message")
	ErrMalformedText  = errors.New("malformed text message body")
	ErrUnknownMsgKind = errors.New("unknown message kind")
	ErrBodyTooLarge   = errors.New("message body exceeds inflate limit")
)

// MaxBodySize is the largest body Body will inflate from compressed content.
const MaxBodySize = 100 << 20

// Message is a data message. Kind selects which message type tag is used on
// the wire; all message kinds share the same field layout.
type Message struct {
	BaseCommand

	Kind                  byte
	ProducerID            *ProducerID
	Destination           Destination
	TransactionID         TransactionID
	OriginalDestination   Destination
	MessageID             *MessageID
	OriginalTransactionID TransactionID
	GroupID               string
	GroupSequence         int32
	CorrelationID         string
	Persistent            bool
	Expiration            int64
	Priority              byte
	ReplyTo               Destination
	Timestamp             int64
	Type                  string
	Content               []byte
	Properties            map[string]any
	TargetConsumerID      *ConsumerID
	Compressed            bool
	RedeliveryCounter     int32
	BrokerPath            []*BrokerID
	Arrival               int64
	UserID                string
	ReceivedByDFBridge    bool
	Droppable             bool
	Cluster               []*BrokerID
	BrokerInTime          int64
	BrokerOutTime         int64
	GroupFirstForConsumer bool
}

// DataStructureType returns the tag for the message kind.
func (m *Message) DataStructureType() byte {
	if m.Kind == 0 {
		return MessageType
	}
	return m.Kind
}

// IsMessageType reports whether t is one of the message type tags.
func IsMessageType(t byte) bool {
	switch t {
	case MessageType, BytesMessageType, MapMessageType, StreamMessageType, TextMessageType:
		return true
	}
	return false
}

// NewMessage creates a message of the given kind.
func NewMessage(kind byte) (*Message, error) {
	if !IsMessageType(kind) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMsgKind, kind)
	}
	return &Message{Kind: kind}, nil
}

// NewTextMessage creates a text message carrying s.
func NewTextMessage(s string) *Message {
	m := &Message{Kind: TextMessageType}
	m.Content = encodeText(s)
	return m
}

// NewBytesMessage creates a bytes message carrying b.
func NewBytesMessage(b []byte) *Message {
	return &Message{Kind: BytesMessageType, Content: b}
}

// SetContent sets the message body, zlib-compressing it when compress is set.
func (m *Message) SetContent(b []byte, compress bool) error {
	if !compress {
		m.Content = b
		m.Compressed = false
		return nil
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	m.Content = buf.Bytes()
	m.Compressed = true
	return nil
}

// Body returns the uncompressed message body.
func (m *Message) Body() ([]byte, error) {
	return m.BodyLimit(MaxBodySize)
}

// BodyLimit is Body with a caller supplied bound on the inflated size.
func (m *Message) BodyLimit(limit int64) ([]byte, error) {
	if !m.Compressed || len(m.Content) == 0 {
		return m.Content, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(m.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed body: %w", err)
	}
	defer zr.Close()

	body, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// SetText replaces the body of a text message.
func (m *Message) SetText(s string, compress bool) error {
	if m.DataStructureType() != TextMessageType {
		return ErrNotTextMessage
	}
	return m.SetContent(encodeText(s), compress)
}

// Text returns the body of a text message.
func (m *Message) Text() (string, error) {
	if m.DataStructureType() != TextMessageType {
		return "", ErrNotTextMessage
	}
	body, err := m.Body()
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", nil
	}
	if len(body) < 4 {
		return "", ErrMalformedText
	}
	n := int32(binary.BigEndian.Uint32(body[:4]))
	if n < 0 {
		return "", nil
	}
	if int(n) > len(body)-4 {
		return "", ErrMalformedText
	}
	return string(body[4 : 4+n]), nil
}

// Text bodies are an int32 length followed by the UTF-8 bytes.
func encodeText(s string) []byte {
	b := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(b[:4], uint32(len(s)))
	copy(b[4:], s)
	return b
}
