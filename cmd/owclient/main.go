// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command owclient connects to OpenWire brokers and inspects captured
// OpenWire traffic.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
