// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/commands"
	"github.com/spf13/cobra"
)

type decodeStats struct {
	frames  int
	decoded int
	failed  int
}

func newDecodeCmd() *cobra.Command {
	var (
		version  int
		tight    bool
		maxFrame int64
		isHex    bool
	)

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a capture of size-prefixed OpenWire frames",
		Long: `Decode reads consecutive size-prefixed frames from a file, or stdin when no
file is given, and prints one line per frame. Frames that fail to decode are
reported with whatever the decoder recovered, and decoding continues with the
next frame.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			if isHex {
				raw, err := io.ReadAll(in)
				if err != nil {
					return err
				}
				b, err := hex.DecodeString(string(bytes.Join(bytes.Fields(raw), nil)))
				if err != nil {
					return fmt.Errorf("invalid hex input: %w", err)
				}
				in = bytes.NewReader(b)
			}

			opts := codec.Options{Version: version, TightEncoding: tight, MaxFrameSize: maxFrame}
			stats, err := decodeCapture(in, cmd.OutOrStdout(), opts)
			fmt.Fprintf(cmd.OutOrStdout(), "%d frames, %d decoded, %d failed\n", stats.frames, stats.decoded, stats.failed)
			return err
		},
	}

	cmd.Flags().IntVar(&version, "version", codec.DefaultVersion, "negotiated protocol version")
	cmd.Flags().BoolVar(&tight, "tight", false, "frames use tight encoding")
	cmd.Flags().Int64Var(&maxFrame, "max-frame-size", codec.DefaultMaxFrameSize, "maximum frame size")
	cmd.Flags().BoolVar(&isHex, "hex", false, "input is a hex dump")
	return cmd
}

// decodeCapture decodes every frame in r and describes it on w. It stops at
// the end of input or at a framing error, which is returned.
func decodeCapture(r io.Reader, w io.Writer, opts codec.Options) (decodeStats, error) {
	var stats decodeStats
	if err := opts.Validate(); err != nil {
		return stats, err
	}

	wf := codec.New(opts)
	br := bufio.NewReader(r)
	for {
		payload, err := wf.ReadFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("frame %d: %w", stats.frames+1, err)
		}
		stats.frames++

		cmd, err := wf.Unmarshal(payload)
		if err != nil {
			stats.failed++
			fmt.Fprintf(w, "#%d size=%d error: %v%s\n", stats.frames, len(payload), err, describePartial(err))
			continue
		}
		stats.decoded++
		fmt.Fprintf(w, "#%d size=%d %s\n", stats.frames, len(payload), describe(cmd))
	}
}

func describePartial(err error) string {
	var de *codec.DecodeError
	if !errors.As(err, &de) || de.Partial == nil {
		return ""
	}
	return " (recovered " + describe(de.Partial) + ")"
}

func describe(cmd commands.Command) string {
	name := commands.TypeName(cmd.DataStructureType())
	s := fmt.Sprintf("%s id=%d", name, cmd.CommandID())
	if cmd.IsResponseRequired() {
		s += " response-required"
	}

	switch c := cmd.(type) {
	case *commands.WireFormatInfo:
		s += fmt.Sprintf(" version=%d", c.Version)
	case *commands.ConnectionInfo:
		s += fmt.Sprintf(" connection=%s client=%s", c.ConnectionID.String(), c.ClientID)
	case *commands.SessionInfo:
		s += fmt.Sprintf(" session=%s", c.SessionID.String())
	case *commands.ConsumerInfo:
		s += fmt.Sprintf(" consumer=%s destination=%s", c.ConsumerID.String(), destString(c.Destination))
		if c.Durable() {
			s += " durable=" + c.SubscriptionName
		}
	case *commands.ProducerInfo:
		s += fmt.Sprintf(" producer=%s destination=%s", c.ProducerID.String(), destString(c.Destination))
	case *commands.RemoveInfo:
		s += fmt.Sprintf(" object=%v", c.ObjectID)
	case *commands.MessageDispatch:
		s += fmt.Sprintf(" consumer=%s destination=%s", c.ConsumerID.String(), destString(c.Destination))
		if c.Message != nil && c.Message.MessageID != nil {
			s += " message=" + c.Message.MessageID.String()
		}
	case *commands.MessageAck:
		s += fmt.Sprintf(" ack=%s consumer=%s count=%d", c.AckType, c.ConsumerID.String(), c.MessageCount)
		if c.FirstMessageID != nil {
			s += " message=" + c.FirstMessageID.String()
		}
	case *commands.Message:
		s += fmt.Sprintf(" destination=%s", destString(c.Destination))
		if c.MessageID != nil {
			s += " message=" + c.MessageID.String()
		}
	case *commands.Response:
		s += fmt.Sprintf(" correlation=%d", c.CorrelationID)
	case *commands.ExceptionResponse:
		s += fmt.Sprintf(" correlation=%d", c.CorrelationID)
		if c.Exception != nil {
			s += " exception=" + c.Exception.Error()
		}
	case *commands.ConnectionControl:
		if c.ConnectedBrokers != "" {
			s += " brokers=" + c.ConnectedBrokers
		}
		if c.RebalanceConnection {
			s += " rebalance=" + c.ReconnectTo
		}
	}
	return s
}

func destString(d commands.Destination) string {
	if d == nil {
		return "<nil>"
	}
	return d.String()
}
