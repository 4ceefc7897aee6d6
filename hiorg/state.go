package hiorg

import (
	"errors"
	"fmt"
)

const protocolVersion = "1.0"

// SessionState is the position of a Client in the SSO token lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRequesting
	StateTokenReceived
	StateValidated
	StateInvalid
	StateLoggedOut
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateTokenReceived:
		return "token-received"
	case StateValidated:
		return "validated"
	case StateInvalid:
		return "invalid"
	case StateLoggedOut:
		return "logged-out"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Organization is what HiOrg-Server reports about the owner of the API key.
type Organization struct {
	Name string
	ID   string
}

// Client talks to both the EFS API and the SSO of HiOrg-Server.
//
// A Client keeps the last error, the organization confirmed by CheckAPIKey
// and the current SSO token. It does no locking: use one Client per caller.
type Client struct {
	cfg       Config
	transport *RedirectTransport

	lastError string
	org       *Organization
	token     string
	state     SessionState
	revoked   map[string]struct{}
}

// New creates a Client from cfg, filling unset fields with defaults.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:       cfg,
		transport: NewRedirectTransport(cfg.HTTPClient, cfg.Strategy, cfg.Logger),
		revoked:   map[string]struct{}{},
	}
}

func (c *Client) String() string {
	return "HiOrg API client v" + protocolVersion
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// LastError returns the message of the last failed operation, or "" if the
// last operation succeeded.
func (c *Client) LastError() string {
	return c.lastError
}

// Organization returns the organization confirmed by the last successful
// CheckAPIKey, or nil.
func (c *Client) Organization() *Organization {
	return c.org
}

// Token returns the stored SSO token.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) State() SessionState {
	return c.state
}

func (c *Client) hasAPIKey() bool {
	return c.cfg.APIKey != ""
}

func (c *Client) clearError() {
	c.lastError = ""
}

// fail records err as the last error and returns it.
func (c *Client) fail(err error) error {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		c.lastError = appErr.Error()
		return err
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		c.lastError = transportErr.Err.Error()
		return err
	}
	c.lastError = err.Error()
	return err
}
