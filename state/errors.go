// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"

	"github.com/absmach/openwire/commands"
)

// ReplayError reports a tracked command that could not be resent. Replay
// carries on with the remaining commands.
type ReplayError struct {
	Command commands.Command
	Err     error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("openwire: replaying %s: %v", commands.TypeName(e.Command.DataStructureType()), e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }
