// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/absmach/openwire/codec"
)

// URI options that override the local wire format preferences, as in
// tcp://broker:61616?wireFormat.tightEncodingEnabled=true.
const (
	optVersion          = "wireFormat.version"
	optTightEncoding    = "wireFormat.tightEncodingEnabled"
	optMaxInactivity    = "wireFormat.maxInactivityDuration"
	optMaxInactivityDel = "wireFormat.maxInactivityDurationInitalDelay"
	optMaxFrameSize     = "wireFormat.maxFrameSize"
)

// Dial connects to a broker URI and starts a stream on it. Supported
// schemes are tcp, nio, ssl, tls, ws and wss.
func Dial(ctx context.Context, rawURL string, opts Options, l Listener) (*Stream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker uri %q: %w", rawURL, err)
	}
	if opts, err = applyURIOptions(u, opts); err != nil {
		return nil, err
	}

	conn, err := dialConn(ctx, u, opts)
	if err != nil {
		return nil, &StreamError{Addr: rawURL, Err: err}
	}

	s := NewStream(conn, rawURL, opts, l)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Dialer returns a DialFunc that dials with opts.
func Dialer(opts Options) DialFunc {
	return func(ctx context.Context, addr string, l Listener) (Transport, error) {
		s, err := Dial(ctx, addr, opts, l)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func dialConn(ctx context.Context, u *url.URL, opts Options) (net.Conn, error) {
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}

	switch strings.ToLower(u.Scheme) {
	case "tcp", "nio":
		d := net.Dialer{KeepAlive: 30 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return conn, nil
	case "ssl", "tls", "nio+ssl":
		d := tls.Dialer{
			NetDialer: &net.Dialer{KeepAlive: 30 * time.Second},
			Config:    tlsConfig(opts.TLSConfig, u.Hostname()),
		}
		return d.DialContext(ctx, "tcp", u.Host)
	case "ws", "wss":
		return dialWebSocket(ctx, u, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func tlsConfig(base *tls.Config, serverName string) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	return cfg
}

// applyURIOptions moves wireFormat.* query parameters into opts and strips
// them from u.
func applyURIOptions(u *url.URL, opts Options) (Options, error) {
	q := u.Query()
	for key, vals := range q {
		if !strings.HasPrefix(key, "wireFormat.") || len(vals) == 0 {
			continue
		}
		v := vals[len(vals)-1]

		var err error
		switch key {
		case optVersion:
			opts.Codec.Version, err = strconv.Atoi(v)
		case optTightEncoding:
			opts.Codec.TightEncoding, err = strconv.ParseBool(v)
		case optMaxFrameSize:
			opts.Codec.MaxFrameSize, err = strconv.ParseInt(v, 10, 64)
		case optMaxInactivity:
			opts.Codec.MaxInactivityDuration, err = parseMillis(v)
		case optMaxInactivityDel:
			opts.Codec.MaxInactivityInitialDelay, err = parseMillis(v)
		default:
			err = fmt.Errorf("unknown option")
		}
		if err != nil {
			return opts, fmt.Errorf("invalid uri option %s=%q: %w", key, v, err)
		}
		q.Del(key)
	}
	u.RawQuery = q.Encode()

	c := opts.Codec
	if c.Version == 0 {
		c.Version = codec.DefaultVersion
	}
	if err := c.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseMillis(v string) (time.Duration, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
