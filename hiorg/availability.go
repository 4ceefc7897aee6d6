package hiorg

import (
	"context"
	"io"
	"net/http"
)

// isAvailable reports whether the probe URL answers at all within the probe
// timeout. Any HTTP status counts as available. The probe never reuses the
// connections of the main client.
func (c *Client) isAvailable(ctx context.Context) bool {
	var transport http.RoundTripper
	switch t := c.cfg.HTTPClient.Transport.(type) {
	case nil:
		transport = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: true,
		}
	case *http.Transport:
		// Same TLS and proxy settings, separate connection pool.
		probeTransport := t.Clone()
		probeTransport.DisableKeepAlives = true
		transport = probeTransport
	default:
		transport = t
	}
	probe := &http.Client{
		Transport: transport,
		Timeout:   c.cfg.ProbeTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
	if err != nil {
		c.cfg.Logger.Warnf("invalid availability probe url '%s': %s", c.cfg.ProbeURL, err)
		return false
	}
	resp, err := probe.Do(req)
	if err != nil {
		c.cfg.Logger.Debugf("availability probe failed: %s", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return true
}
