// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import "github.com/absmach/openwire/commands"

// poisonCauseClass is the exception class brokers expect in a poison cause.
const poisonCauseClass = "java.io.IOException"

// poisonAck builds the acknowledgment for a dispatch that failed to decode,
// or returns nil when the consumer or the message id did not survive.
func poisonAck(partial commands.Command, cause error) *commands.MessageAck {
	md, ok := partial.(*commands.MessageDispatch)
	if !ok || md.ConsumerID == nil || md.Message == nil || !md.Message.MessageID.Valid() {
		return nil
	}

	dest := md.Destination
	if dest == nil {
		dest = md.Message.Destination
	}
	return commands.NewPoisonAck(md.ConsumerID, dest, md.Message.MessageID, &commands.BrokerError{
		ExceptionClass: poisonCauseClass,
		Message:        "failed to decode message: " + cause.Error(),
	})
}
