// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package failover

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	scheme       = "failover:"
	nestedPrefix = "nested."
)

// ParseURI applies raw to opts. A failover URI lists the candidates and may
// override reconnect options:
//
//	failover:(tcp://a:61616,tcp://b:61616)?randomize=false&maxReconnectAttempts=5
//
// Options prefixed with "nested." are appended to every candidate URI. Any
// other URI becomes the only candidate.
func ParseURI(raw string, opts Options) (Options, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return opts, ErrNoURIs
	}

	rest, ok := strings.CutPrefix(raw, scheme)
	if !ok {
		opts.URIs = []string{raw}
		return opts, nil
	}

	var list, query string
	if strings.HasPrefix(rest, "(") {
		end := strings.LastIndex(rest, ")")
		if end < 0 {
			return opts, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidURI, raw)
		}
		list, query = rest[1:end], rest[end+1:]
		if query != "" {
			if query, ok = strings.CutPrefix(query, "?"); !ok {
				return opts, fmt.Errorf("%w: unexpected %q after candidate list", ErrInvalidURI, query)
			}
		}
	} else {
		list, query, _ = strings.Cut(rest, "?")
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return opts, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	nested := url.Values{}
	for key, vals := range values {
		if name, ok := strings.CutPrefix(key, nestedPrefix); ok {
			nested[name] = vals
			continue
		}
		if err := opts.set(key, vals[len(vals)-1]); err != nil {
			return opts, fmt.Errorf("%w: option %s=%q: %w", ErrInvalidURI, key, vals[len(vals)-1], err)
		}
	}

	var uris []string
	for _, u := range strings.Split(list, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		uris = append(uris, withQuery(u, nested))
	}
	if len(uris) == 0 {
		return opts, fmt.Errorf("%w: %q", ErrNoURIs, raw)
	}
	opts.URIs = uris
	return opts, nil
}

func (o *Options) set(key, v string) error {
	var err error
	switch key {
	case "randomize":
		o.Randomize, err = strconv.ParseBool(v)
	case "initialReconnectDelay":
		o.InitialReconnectDelay, err = millis(v)
	case "maxReconnectDelay":
		o.MaxReconnectDelay, err = millis(v)
	case "useExponentialBackOff":
		o.UseExponentialBackOff, err = strconv.ParseBool(v)
	case "backOffMultiplier":
		o.BackOffMultiplier, err = strconv.ParseFloat(v, 64)
	case "maxReconnectAttempts":
		o.MaxReconnectAttempts, err = strconv.Atoi(v)
	case "startupMaxReconnectAttempts":
		o.StartupMaxReconnectAttempts, err = strconv.Atoi(v)
	case "timeout":
		if v == "-1" {
			o.SendTimeout = 0
			break
		}
		o.SendTimeout, err = millis(v)
	case "connectTimeout":
		o.ConnectTimeout, err = millis(v)
	case "updateURIsSupported":
		o.UpdateURIsSupported, err = strconv.ParseBool(v)
	default:
		err = fmt.Errorf("unknown option")
	}
	return err
}

func millis(v string) (time.Duration, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	return time.Duration(n) * time.Millisecond, nil
}

func withQuery(u string, extra url.Values) string {
	if len(extra) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + extra.Encode()
}
