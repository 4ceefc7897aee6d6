package hiorg

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NoTokenReply is what the token callback answers when it received no token.
const NoTokenReply = "Error: no token detected"

// Redirector sends the browser somewhere else. After a successful Redirect
// the caller must not write anything more to the response.
type Redirector interface {
	Redirect(location string) error
}

// ResponseRedirector redirects the browser of an incoming HTTP request.
type ResponseRedirector struct {
	W http.ResponseWriter
	R *http.Request
}

func (r ResponseRedirector) Redirect(location string) error {
	http.Redirect(r.W, r.R, location, http.StatusFound)
	return nil
}

// LoginRequest holds the arguments of Login. Username and Password are
// required in backend mode; ReturnURL and AbortURL override the configured
// ones in redirect mode.
type LoginRequest struct {
	Username  string
	Password  string
	ReturnURL string
	AbortURL  string
}

// LoginResult is the outcome of Login: a token in backend mode, a login URL
// in redirect mode. Redirected is set when the browser was already sent there.
type LoginResult struct {
	Token       string
	RedirectURL string
	Redirected  bool
}

func (c *Client) ssoURL(query string) string {
	separator := "?"
	if strings.Contains(c.cfg.SSOURL, "?") {
		separator = "&"
	}
	return c.cfg.SSOURL + separator + query
}

// Login starts an SSO login in the configured mode.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	c.clearError()
	if c.cfg.Mode == ModeRedirect {
		return c.loginRedirect(req)
	}
	return c.loginBackend(ctx, req)
}

func (c *Client) loginBackend(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.Username == "" || req.Password == "" {
		return nil, c.fail(ErrMissingCredentials)
	}

	c.state = StateRequesting
	if !c.isAvailable(ctx) {
		c.state = StateIdle
		return nil, c.fail(ErrServiceUnavailable)
	}

	query := "ov=" + c.cfg.OrganizationCode +
		"&weiter=" + url.QueryEscape(c.cfg.TokenURL) +
		"&getuserinfo=" + url.QueryEscape(strings.Join(c.cfg.Fields, ","))
	body := encodeLegacyForm([]formField{
		{key: "username", value: url.QueryEscape(req.Username)},
		{key: "password", value: url.QueryEscape(req.Password)},
		{key: "submit", value: "Login"},
	})

	c.cfg.Logger.WithField("username", req.Username).Debug("requesting SSO token")
	resp, err := c.transport.Execute(ctx, &Request{
		Method: http.MethodPost,
		URL:    c.ssoURL(query),
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   body,
	}, c.cfg.MaxRedirects)
	if err != nil {
		c.state = StateIdle
		return nil, c.fail(err)
	}

	token := lastLine(resp.Body)
	if token == "" || token == NoTokenReply {
		c.state = StateInvalid
		return nil, c.fail(ErrMissingToken)
	}

	c.token = token
	c.state = StateTokenReceived
	return &LoginResult{Token: token}, nil
}

// lastLine returns the last line of the trimmed body. The token callback
// echoes only the token, possibly after some noise.
func lastLine(body []byte) string {
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (c *Client) loginRedirect(req LoginRequest) (*LoginResult, error) {
	returnURL := c.cfg.ReturnURL
	if req.ReturnURL != "" {
		returnURL = req.ReturnURL
	}
	abortURL := c.cfg.AbortURL
	if req.AbortURL != "" {
		abortURL = req.AbortURL
	}

	query := "ov=" + c.cfg.OrganizationCode + "&weiter=" + url.QueryEscape(returnURL)
	if len(c.cfg.Fields) > 0 {
		query += "&getuserinfo=" + url.QueryEscape(strings.Join(c.cfg.Fields, ","))
	}
	if abortURL != "" {
		query += "&silent=" + url.QueryEscape(abortURL)
	}

	result := &LoginResult{RedirectURL: c.ssoURL(query)}
	c.state = StateRequesting
	if c.cfg.DisableAutoRedirect || c.cfg.Redirector == nil {
		return result, nil
	}
	if err := c.cfg.Redirector.Redirect(result.RedirectURL); err != nil {
		return nil, c.fail(fmt.Errorf("redirecting to SSO: %w", err))
	}
	result.Redirected = true
	return result, nil
}

// FetchUserData exchanges a token for the user information requested at
// login. An empty token selects the stored one. With auto logout enabled the
// token is logged out right away and Expiry is set to now.
func (c *Client) FetchUserData(ctx context.Context, token string) (*UserRecord, error) {
	c.clearError()
	if token == "" {
		token = c.token
	}
	c.token = token
	if token == "" {
		return nil, c.fail(ErrMissingToken)
	}
	if _, ok := c.revoked[token]; ok {
		c.state = StateInvalid
		return nil, c.fail(ErrInvalidToken)
	}

	resp, err := c.transport.Execute(ctx, &Request{
		Method: http.MethodGet,
		URL:    c.ssoURL("token=" + url.QueryEscape(token)),
	}, 0)
	if err != nil {
		return nil, c.fail(err)
	}

	body := strings.TrimSpace(string(resp.Body))
	if !strings.HasPrefix(body, "OK") {
		c.state = StateInvalid
		return nil, c.fail(ErrInvalidToken)
	}
	encoded := ""
	if len(body) > 3 {
		encoded = strings.TrimSpace(body[3:])
	}
	user, decodeErr := decodeBase64UserData(encoded)

	if !c.cfg.DisableAutoLogout {
		if err := c.logout(ctx, token); err != nil {
			c.cfg.Logger.Warnf("automatic SSO logout failed: %s", err)
		}
		if user != nil {
			user.Expiry = time.Now()
		}
	}

	if decodeErr != nil {
		return nil, c.fail(decodeErr)
	}
	if user.OrganizationCode != c.cfg.OrganizationCode {
		if c.state != StateLoggedOut {
			c.state = StateInvalid
		}
		return nil, c.fail(ErrOrganizationMismatch)
	}
	if c.state != StateLoggedOut {
		c.state = StateValidated
	}
	return user, nil
}

func decodeBase64UserData(encoded string) (*UserRecord, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		payload, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("decoding user data: %w", err)
		}
	}
	return decodeUserData(payload)
}

// Logout ends the SSO session of token, or of the stored token when empty.
// In redirect mode with a logout URL the browser is sent there and
// redirected is true.
func (c *Client) Logout(ctx context.Context, token string) (redirected bool, err error) {
	c.clearError()
	if token == "" {
		token = c.token
	}
	if token == "" {
		return false, c.fail(ErrMissingToken)
	}
	if err := c.logout(ctx, token); err != nil {
		return false, c.fail(err)
	}

	if c.cfg.Mode != ModeRedirect || c.cfg.LogoutURL == "" || c.cfg.Redirector == nil {
		return false, nil
	}
	if err := c.cfg.Redirector.Redirect(c.cfg.LogoutURL); err != nil {
		return false, c.fail(fmt.Errorf("redirecting after logout: %w", err))
	}
	return true, nil
}

func (c *Client) logout(ctx context.Context, token string) error {
	_, err := c.transport.Execute(ctx, &Request{
		Method: http.MethodGet,
		URL:    c.ssoURL("logout=1&token=" + url.QueryEscape(token)),
	}, 0)
	if err != nil {
		return err
	}
	if c.token == token {
		c.token = ""
	}
	c.revoked[token] = struct{}{}
	c.state = StateLoggedOut
	return nil
}
