// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/absmach/openwire/config"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "owclient",
		Short:         "OpenWire client with failover and corruption recovery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}

	root.AddCommand(newConnectCmd(load), newDecodeCmd())
	return root
}

// newLogger builds the process logger from cfg. Logs go to stdout unless a
// file is configured, in which case they are rotated by size.
func newLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	logLevel := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var out io.Writer = os.Stdout
	closer := func() {}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = lj
		closer = func() { _ = lj.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler), closer
}
