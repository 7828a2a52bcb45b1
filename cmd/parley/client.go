// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	parleyerr "github.com/sigil-dev/parley/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// gatewayClient provides HTTP access to a running parley gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

// newGatewayClient creates a client for base, either a host:port address or
// an http(s) URL.
func newGatewayClient(base string) *gatewayClient {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &gatewayClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    defaultHTTPClient,
	}
}

// gatewayBase returns the scheme and host of endpoint, which is how chat
// command endpoints locate the gateway serving them.
func gatewayBase(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Scheme + "://" + u.Host
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *gatewayClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return parleyerr.New(parleyerr.CodeCLIBackendNotRunning, "gateway is not running (connection refused)",
				parleyerr.FieldEndpoint(c.baseURL))
		}
		return parleyerr.Errorf(parleyerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return parleyerr.New(parleyerr.CodeCLIRequestFailure,
			"gateway returned status "+resp.Status+": "+strings.TrimSpace(string(body)),
			parleyerr.FieldStatus(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return parleyerr.Errorf(parleyerr.CodeCLIRequestFailure, "invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
