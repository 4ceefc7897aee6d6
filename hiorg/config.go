package hiorg

import (
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultSSOURL   = "https://www.hiorg-server.de/logmein.php"
	DefaultEFSURL   = "https://www.hiorg-server.de/api/efs/"
	DefaultProbeURL = "https://www.hiorg-server.de"

	DefaultProbeTimeout = 1000 * time.Millisecond
)

// DefaultFields is the user information requested from the SSO by default.
var DefaultFields = []string{
	"name",      // last name
	"vorname",   // first name
	"kuerzel",   // short ident code
	"gruppe",    // sum of group ids
	"perms",     // comma separated permissions
	"username",  // unique username within the organization
	"email",     // e-mail address
	"quali",     // qualification id
	"telpriv",   // phone at home
	"teldienst", // phone at work
	"handy",     // mobile phone
	"user_id",   // unique HiOrg-Server user id
}

// SSOMode selects how Login obtains a token.
type SSOMode int

const (
	// ModeBackend exchanges username and password for a token without a browser.
	ModeBackend SSOMode = iota
	// ModeRedirect sends the browser to the SSO login page.
	ModeRedirect
)

// Config holds everything a Client needs. It is copied by New and not
// modified afterwards; ReturnURL and AbortURL can be overridden per Login call.
type Config struct {
	OrganizationCode string
	APIKey           string

	SSOURL string
	EFSURL string

	// TokenURL receives the token in backend mode and must echo it as plain text.
	TokenURL string
	// ReturnURL is where the browser lands after login in redirect mode.
	ReturnURL string
	// AbortURL is used instead of forcing a login when there is no active session.
	AbortURL string
	// LogoutURL is where the browser lands after logout in redirect mode.
	LogoutURL string

	Mode                SSOMode
	DisableAutoRedirect bool
	DisableAutoLogout   bool

	// Fields lists the user information requested from the SSO.
	Fields []string

	// MaxRedirects bounds the redirects followed during backend login.
	// Zero or negative means Unbounded, which still gives up with
	// ErrTooManyRedirects after UnboundedHopLimit hops.
	MaxRedirects int
	Strategy     RedirectStrategy

	ProbeURL     string
	ProbeTimeout time.Duration

	HTTPClient *http.Client
	Redirector Redirector
	Logger     log.FieldLogger
}

func (c Config) withDefaults() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.SSOURL == "" {
		c.SSOURL = DefaultSSOURL
	}
	if c.EFSURL == "" {
		c.EFSURL = DefaultEFSURL
	}
	c.TokenURL = strings.Replace(c.TokenURL, "localhost", "127.0.0.1", 1)
	if c.Fields == nil {
		c.Fields = append([]string(nil), DefaultFields...)
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = Unbounded
	}
	if c.ProbeURL == "" {
		c.ProbeURL = DefaultProbeURL
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	return c
}
