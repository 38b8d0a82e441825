// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/config"
	"github.com/absmach/openwire/failover"
	"github.com/absmach/openwire/state"
)

func TestNewOptions(t *testing.T) {
	opts := NewOptions()

	if opts.URI != DefaultURI {
		t.Errorf("expected default uri %s, got %s", DefaultURI, opts.URI)
	}
	if !strings.HasPrefix(opts.ClientID, "openwire-") {
		t.Errorf("expected generated client id, got %q", opts.ClientID)
	}
	if NewOptions().ClientID == opts.ClientID {
		t.Error("generated client ids should differ")
	}
	if opts.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("expected RequestTimeout %v, got %v", DefaultRequestTimeout, opts.RequestTimeout)
	}
	if opts.MaxInflight != DefaultMaxInflight {
		t.Errorf("expected MaxInflight %d, got %d", DefaultMaxInflight, opts.MaxInflight)
	}
	if !opts.Wire.TightEncoding {
		t.Error("expected tight encoding to be requested by default")
	}
	if opts.Failover.MaxReconnectAttempts != -1 {
		t.Errorf("expected unlimited reconnects, got %d", opts.Failover.MaxReconnectAttempts)
	}
	if !opts.Tracker.RestoreConsumers {
		t.Error("expected consumers to be restored by default")
	}
}

func TestOptionsBuilder(t *testing.T) {
	tlsConfig := &tls.Config{InsecureSkipVerify: true}
	onMsg := func(*commands.MessageDispatch) {}
	onCmd := func(commands.Command) {}
	onErr := func(error) {}
	onInt := func() {}
	onRes := func() {}

	fo := failover.DefaultOptions()
	fo.Randomize = true
	so := state.DefaultOptions()
	so.RestoreProducers = false
	wire := codec.Options{Version: 9, MaxFrameSize: 1024}

	opts := NewOptions().
		SetURI("failover:(tcp://a:61616,tcp://b:61616)").
		SetClientID("test-client").
		SetCredentials("user", "pass").
		SetTLSConfig(tlsConfig).
		SetRequestTimeout(5 * time.Second).
		SetMaxInflight(50).
		SetWireFormat(wire).
		SetMaxConsecutiveErrors(3).
		SetFailover(fo).
		SetTracker(so).
		SetOnMessage(onMsg).
		SetOnCommand(onCmd).
		SetOnException(onErr).
		SetOnInterrupted(onInt).
		SetOnResumed(onRes)

	if opts.URI != "failover:(tcp://a:61616,tcp://b:61616)" {
		t.Errorf("unexpected uri %s", opts.URI)
	}
	if opts.ClientID != "test-client" {
		t.Errorf("expected client id test-client, got %s", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("unexpected credentials %s/%s", opts.Username, opts.Password)
	}
	if opts.TLSConfig != tlsConfig {
		t.Error("TLSConfig not set")
	}
	if opts.RequestTimeout != 5*time.Second {
		t.Errorf("expected RequestTimeout 5s, got %v", opts.RequestTimeout)
	}
	if opts.MaxInflight != 50 {
		t.Errorf("expected MaxInflight 50, got %d", opts.MaxInflight)
	}
	if opts.Wire != wire {
		t.Errorf("expected wire %+v, got %+v", wire, opts.Wire)
	}
	if opts.MaxConsecutiveErrors != 3 {
		t.Errorf("expected MaxConsecutiveErrors 3, got %d", opts.MaxConsecutiveErrors)
	}
	if !opts.Failover.Randomize {
		t.Error("failover options not set")
	}
	if opts.Tracker.RestoreProducers {
		t.Error("tracker options not set")
	}
	if opts.OnMessage == nil || opts.OnCommand == nil || opts.OnException == nil ||
		opts.OnInterrupted == nil || opts.OnResumed == nil {
		t.Error("callbacks not set")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Options)
		wantErr error
	}{
		{
			name:   "valid defaults",
			modify: func(o *Options) {},
		},
		{
			name:    "empty uri",
			modify:  func(o *Options) { o.URI = "" },
			wantErr: ErrNoURI,
		},
		{
			name:    "empty client id",
			modify:  func(o *Options) { o.ClientID = "" },
			wantErr: ErrEmptyClientID,
		},
		{
			name:    "unsupported wire version",
			modify:  func(o *Options) { o.Wire.Version = 99 },
			wantErr: codec.ErrUnsupportedVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.modify(opts)
			err := opts.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOptionsValidateDefaults(t *testing.T) {
	opts := NewOptions()
	opts.MaxInflight = 0

	if err := opts.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.MaxInflight != DefaultMaxInflight {
		t.Errorf("expected MaxInflight to default to %d, got %d", DefaultMaxInflight, opts.MaxInflight)
	}
	if opts.Logger == nil {
		t.Error("expected a default logger")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Client.URI = "failover:(tcp://a:61616,tcp://b:61616)?randomize=true"
	cfg.Client.ClientID = "cfg-client"
	cfg.Client.Username = "admin"
	cfg.Wire.TightEncoding = false
	cfg.Wire.MaxConsecutiveErrors = 4
	cfg.Failover.MaxReconnectAttempts = 7
	cfg.Tracker.RestoreTempDestinations = false

	opts, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if opts.URI != cfg.Client.URI {
		t.Errorf("expected uri %s, got %s", cfg.Client.URI, opts.URI)
	}
	if opts.ClientID != "cfg-client" || opts.Username != "admin" {
		t.Errorf("unexpected identity %s/%s", opts.ClientID, opts.Username)
	}
	if opts.Wire.TightEncoding {
		t.Error("tight encoding should follow the config")
	}
	if opts.MaxConsecutiveErrors != 4 {
		t.Errorf("expected MaxConsecutiveErrors 4, got %d", opts.MaxConsecutiveErrors)
	}
	if opts.Failover.MaxReconnectAttempts != 7 {
		t.Errorf("expected MaxReconnectAttempts 7, got %d", opts.Failover.MaxReconnectAttempts)
	}
	if opts.Tracker.RestoreTempDestinations {
		t.Error("tracker flags should follow the config")
	}
	if opts.TLSConfig != nil {
		t.Error("no TLS files configured, TLSConfig should be nil")
	}

	fopts, err := opts.failoverOptions(nil)
	if err != nil {
		t.Fatalf("failoverOptions failed: %v", err)
	}
	if len(fopts.URIs) != 2 || !fopts.Randomize {
		t.Errorf("uri options not parsed: %v randomize=%v", fopts.URIs, fopts.Randomize)
	}
	if fopts.Dial == nil {
		t.Error("expected a dialer")
	}
}

func TestFromConfigKeepsGeneratedClientID(t *testing.T) {
	opts, err := FromConfig(config.Default())
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if opts.ClientID == "" {
		t.Error("expected a generated client id")
	}
}

func TestFromConfigBadCAFile(t *testing.T) {
	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(ca, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Client.TLSCAFile = ca
	if _, err := FromConfig(cfg); err == nil {
		t.Error("expected error for CA file without certificates")
	}

	cfg.Client.TLSCAFile = filepath.Join(dir, "missing.pem")
	if _, err := FromConfig(cfg); err == nil {
		t.Error("expected error for missing CA file")
	}
}

func TestFromConfigInsecureTLS(t *testing.T) {
	cfg := config.Default()
	cfg.Client.TLSInsecureSkipVerify = true

	opts, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Error("expected an insecure TLS config")
	}
}
