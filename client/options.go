// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/commands"
	"github.com/absmach/openwire/config"
	"github.com/absmach/openwire/failover"
	"github.com/absmach/openwire/state"
	"github.com/absmach/openwire/telemetry"
	"github.com/absmach/openwire/transport"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Default values.
const (
	DefaultURI            = "failover:(tcp://localhost:61616)"
	DefaultRequestTimeout = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultMaxInflight    = 1000
)

// Options configures a connection.
type Options struct {
	// Connection
	URI       string      // Broker URI, or failover:(uri,...) listing several
	ClientID  string      // Client identifier
	Username  string      // Optional username
	Password  string      // Optional password
	TLSConfig *tls.Config // Used by ssl:// and wss:// candidates

	// Requests
	RequestTimeout time.Duration // Applied when the context has no deadline
	MaxInflight    int           // Maximum requests waiting for a response

	// Wire
	Wire                 codec.Options // Local wire format preferences
	MaxConsecutiveErrors int           // Corrupt frames tolerated in a row
	WriteTimeout         time.Duration // Timeout for a single frame write

	// Reconnection; URIs are taken from URI.
	Failover failover.Options
	Tracker  state.Options

	// Callbacks
	OnMessage     func(*commands.MessageDispatch) // Called for every dispatched message
	OnCommand     func(commands.Command)          // Called for other unsolicited commands
	OnException   func(error)                     // Called for broker and failover errors
	OnInterrupted func()                          // Called when the connection drops
	OnResumed     func()                          // Called once reconnected and restored

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
}

// NewOptions creates Options with sensible defaults and a random client ID.
func NewOptions() *Options {
	wire := codec.DefaultOptions()
	wire.TightEncoding = true

	return &Options{
		URI:                  DefaultURI,
		ClientID:             "openwire-" + uuid.NewString(),
		RequestTimeout:       DefaultRequestTimeout,
		MaxInflight:          DefaultMaxInflight,
		Wire:                 wire,
		MaxConsecutiveErrors: transport.DefaultMaxConsecutiveErrors,
		WriteTimeout:         DefaultWriteTimeout,
		Failover:             failover.DefaultOptions(),
		Tracker:              state.DefaultOptions(),
	}
}

// FromConfig builds Options from a loaded configuration.
func FromConfig(cfg *config.Config) (*Options, error) {
	o := NewOptions()

	o.URI = cfg.Client.URI
	if cfg.Client.ClientID != "" {
		o.ClientID = cfg.Client.ClientID
	}
	o.Username = cfg.Client.Username
	o.Password = cfg.Client.Password
	o.RequestTimeout = cfg.Client.RequestTimeout

	tlsCfg, err := loadTLS(cfg.Client)
	if err != nil {
		return nil, err
	}
	o.TLSConfig = tlsCfg

	o.Wire = codec.Options{
		Version:                   cfg.Wire.Version,
		TightEncoding:             cfg.Wire.TightEncoding,
		MaxFrameSize:              cfg.Wire.MaxFrameSize,
		MaxInactivityDuration:     cfg.Wire.MaxInactivityDuration,
		MaxInactivityInitialDelay: cfg.Wire.MaxInactivityInitialDelay,
	}
	o.MaxConsecutiveErrors = cfg.Wire.MaxConsecutiveErrors
	o.WriteTimeout = cfg.Wire.WriteTimeout

	f := cfg.Failover
	o.Failover.Randomize = f.Randomize
	o.Failover.InitialReconnectDelay = f.InitialReconnectDelay
	o.Failover.MaxReconnectDelay = f.MaxReconnectDelay
	o.Failover.UseExponentialBackOff = f.UseExponentialBackOff
	o.Failover.BackOffMultiplier = f.BackOffMultiplier
	o.Failover.MaxReconnectAttempts = f.MaxReconnectAttempts
	o.Failover.StartupMaxReconnectAttempts = f.StartupMaxReconnectAttempts
	o.Failover.ConnectTimeout = f.ConnectTimeout
	o.Failover.SendTimeout = f.SendTimeout
	o.Failover.UpdateURIsSupported = f.UpdateURIsSupported
	o.Failover.BreakerFailureThreshold = f.BreakerFailureThreshold
	o.Failover.BreakerResetTimeout = f.BreakerResetTimeout

	o.Tracker.RestoreSessions = cfg.Tracker.RestoreSessions
	o.Tracker.RestoreConsumers = cfg.Tracker.RestoreConsumers
	o.Tracker.RestoreProducers = cfg.Tracker.RestoreProducers
	o.Tracker.RestoreTempDestinations = cfg.Tracker.RestoreTempDestinations

	return o, nil
}

func loadTLS(cfg config.ClientConfig) (*tls.Config, error) {
	if cfg.TLSCAFile == "" && cfg.TLSCertFile == "" && !cfg.TLSInsecureSkipVerify {
		return nil, nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
	}
	if cfg.TLSCAFile != "" {
		pem, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCAFile)
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// SetURI sets the broker URI.
func (o *Options) SetURI(uri string) *Options {
	o.URI = uri
	return o
}

// SetClientID sets the client identifier.
func (o *Options) SetClientID(id string) *Options {
	o.ClientID = id
	return o
}

// SetCredentials sets username and password.
func (o *Options) SetCredentials(username, password string) *Options {
	o.Username = username
	o.Password = password
	return o
}

// SetTLSConfig sets TLS configuration.
func (o *Options) SetTLSConfig(cfg *tls.Config) *Options {
	o.TLSConfig = cfg
	return o
}

// SetRequestTimeout sets the default request timeout.
func (o *Options) SetRequestTimeout(d time.Duration) *Options {
	o.RequestTimeout = d
	return o
}

// SetMaxInflight sets the maximum number of requests waiting for a response.
func (o *Options) SetMaxInflight(max int) *Options {
	o.MaxInflight = max
	return o
}

// SetWireFormat sets the local wire format preferences.
func (o *Options) SetWireFormat(w codec.Options) *Options {
	o.Wire = w
	return o
}

// SetMaxConsecutiveErrors sets how many corrupt frames in a row end a
// connection.
func (o *Options) SetMaxConsecutiveErrors(n int) *Options {
	o.MaxConsecutiveErrors = n
	return o
}

// SetFailover sets the reconnect options.
func (o *Options) SetFailover(f failover.Options) *Options {
	o.Failover = f
	return o
}

// SetTracker sets what is restored after a reconnect.
func (o *Options) SetTracker(t state.Options) *Options {
	o.Tracker = t
	return o
}

// SetOnMessage sets the message handler callback.
func (o *Options) SetOnMessage(fn func(*commands.MessageDispatch)) *Options {
	o.OnMessage = fn
	return o
}

// SetOnCommand sets the callback for unsolicited commands.
func (o *Options) SetOnCommand(fn func(commands.Command)) *Options {
	o.OnCommand = fn
	return o
}

// SetOnException sets the error callback.
func (o *Options) SetOnException(fn func(error)) *Options {
	o.OnException = fn
	return o
}

// SetOnInterrupted sets the connection lost callback.
func (o *Options) SetOnInterrupted(fn func()) *Options {
	o.OnInterrupted = fn
	return o
}

// SetOnResumed sets the reconnected callback.
func (o *Options) SetOnResumed(fn func()) *Options {
	o.OnResumed = fn
	return o
}

// SetLogger sets the logger.
func (o *Options) SetLogger(l *slog.Logger) *Options {
	o.Logger = l
	return o
}

// SetMetrics sets the metrics recorder.
func (o *Options) SetMetrics(m *telemetry.Metrics) *Options {
	o.Metrics = m
	return o
}

// Validate checks the options for errors.
func (o *Options) Validate() error {
	if o.URI == "" {
		return ErrNoURI
	}
	if o.ClientID == "" {
		return ErrEmptyClientID
	}
	if o.RequestTimeout < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if err := o.Wire.Validate(); err != nil {
		return err
	}
	if o.MaxInflight <= 0 {
		o.MaxInflight = DefaultMaxInflight
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

func (o *Options) transportOptions() transport.Options {
	topts := transport.DefaultOptions()
	topts.Codec = o.Wire
	topts.MaxConsecutiveErrors = o.MaxConsecutiveErrors
	if o.WriteTimeout > 0 {
		topts.WriteTimeout = o.WriteTimeout
	}
	topts.DialTimeout = o.Failover.ConnectTimeout
	topts.TLSConfig = o.TLSConfig
	topts.Logger = o.Logger
	topts.Metrics = o.Metrics
	return topts
}

func (o *Options) failoverOptions(tracker *state.Tracker) (failover.Options, error) {
	fopts, err := failover.ParseURI(o.URI, o.Failover)
	if err != nil {
		return fopts, err
	}
	fopts.Dial = transport.Dialer(o.transportOptions())
	fopts.Tracker = tracker
	fopts.Logger = o.Logger
	fopts.Metrics = o.Metrics
	fopts.Tracer = o.Tracer
	return fopts, nil
}
