// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/openwire/client"
	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/config"
	"github.com/absmach/openwire/telemetry"
	"github.com/spf13/cobra"
)

type connectFlags struct {
	uri      string
	clientID string
	dest     string
	durable  string
	selector string
	ack      bool
}

func newConnectCmd(load func() (*config.Config, error)) *cobra.Command {
	var f connectFlags

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a broker and log every command it sends",
		Long: `Connect opens a connection through the failover transport and logs every
command received until interrupted. With --dest a consumer is created on the
destination (queue://name or topic://name); --durable makes a topic consumer
a durable subscription that is restored after every reconnect.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if f.uri != "" {
				cfg.Client.URI = f.uri
			}
			if f.clientID != "" {
				cfg.Client.ClientID = f.clientID
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runConnect(cmd.Context(), cfg, f)
		},
	}

	cmd.Flags().StringVar(&f.uri, "uri", "", "broker or failover:(...) URI, overrides the config")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "client id, overrides the config")
	cmd.Flags().StringVar(&f.dest, "dest", "", "destination to consume from")
	cmd.Flags().StringVar(&f.durable, "durable", "", "durable subscription name for a topic destination")
	cmd.Flags().StringVar(&f.selector, "selector", "", "message selector")
	cmd.Flags().BoolVar(&f.ack, "ack", true, "acknowledge received messages")
	return cmd
}

func runConnect(ctx context.Context, cfg *config.Config, f connectFlags) error {
	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	var dest commands.Destination
	if f.dest != "" {
		d, err := commands.ParseDestination(f.dest)
		if err != nil {
			return err
		}
		dest = d
	}

	opts, err := client.FromConfig(cfg)
	if err != nil {
		return err
	}
	opts.SetLogger(logger)

	var otelShutdown func(context.Context) error
	if cfg.Telemetry.MetricsEnabled || cfg.Telemetry.TracesEnabled {
		shutdown, err := telemetry.InitProvider(ctx, cfg.Telemetry, opts.ClientID)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		otelShutdown = shutdown
		logger.Info("OpenTelemetry initialized",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			slog.Bool("metrics", cfg.Telemetry.MetricsEnabled),
			slog.Bool("traces", cfg.Telemetry.TracesEnabled))
	}
	if cfg.Telemetry.MetricsEnabled {
		m, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		opts.SetMetrics(m)
	}

	var conn *client.Conn
	opts.SetOnMessage(func(md *commands.MessageDispatch) {
		logMessage(logger, md)
		if f.ack && conn != nil {
			if err := conn.Ack(md, commands.StandardAck); err != nil {
				logger.Warn("failed to ack message", slog.String("error", err.Error()))
			}
		}
	})
	opts.SetOnCommand(func(cmd commands.Command) {
		logger.Info("command received", slog.String("type", commands.TypeName(cmd.DataStructureType())))
	})
	opts.SetOnException(func(err error) {
		logger.Error("connection exception", slog.String("error", err.Error()))
	})
	opts.SetOnInterrupted(func() { logger.Warn("connection interrupted") })
	opts.SetOnResumed(func() { logger.Info("connection resumed") })

	conn, err = client.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := conn.Start(ctx); err != nil {
		return err
	}
	logger.Info("connected",
		slog.String("broker", conn.RemoteAddr()),
		slog.String("connection_id", conn.ConnectionID().Value))

	if dest != nil {
		if err := subscribe(ctx, conn, dest, f); err != nil {
			_ = conn.Close(context.Background())
			return err
		}
	}

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		logger.Error("Error during shutdown", slog.String("error", err.Error()))
	}

	if otelShutdown != nil {
		if err := otelShutdown(closeCtx); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry", slog.String("error", err.Error()))
		}
	}
	return nil
}

func subscribe(ctx context.Context, conn *client.Conn, dest commands.Destination, f connectFlags) error {
	sess, err := conn.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if f.durable != "" {
		topic, ok := dest.(*commands.Topic)
		if !ok {
			return fmt.Errorf("durable subscriptions need a topic, got %s", dest)
		}
		_, err = conn.CreateDurableConsumer(ctx, sess.SessionID, topic, f.durable, f.selector)
	} else {
		_, err = conn.CreateConsumer(ctx, sess.SessionID, dest, f.selector)
	}
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	slog.Info("consuming", slog.String("destination", dest.String()), slog.String("durable", f.durable))
	return nil
}

func logMessage(logger *slog.Logger, md *commands.MessageDispatch) {
	attrs := []any{slog.String("consumer_id", md.ConsumerID.String())}
	if md.Destination != nil {
		attrs = append(attrs, slog.String("destination", md.Destination.String()))
	}
	if m := md.Message; m != nil {
		if m.MessageID != nil {
			attrs = append(attrs, slog.String("message_id", m.MessageID.String()))
		}
		if m.DataStructureType() == commands.TextMessageType {
			if text, err := m.Text(); err == nil {
				attrs = append(attrs, slog.String("text", text))
			}
		} else if body, err := m.Body(); err == nil {
			attrs = append(attrs, slog.Int("size", len(body)))
		}
	}
	logger.Info("message received", attrs...)
}
