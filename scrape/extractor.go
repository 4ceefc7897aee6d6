// Package scrape rebuilds HiOrg-Server user records from the web pages of an
// admin session. None of these pages is an API: any markup change on the
// server side shows up as a *ParseError.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	DefaultBaseURL = "https://www.hiorg-server.de"

	LoginPath    = "/login.php"
	MembersPath  = "/ajax/personal_liste.php"
	UserListPath = "/userliste.php"
	LogoutPath   = "/logout.php"

	otpFieldName = "otp"
	logoutWait   = 10 * time.Second
)

// ErrSecondFactorRequired is returned when the login asks for a one-time
// code and no TOTP secret is configured.
var ErrSecondFactorRequired = errors.New("login requires a one-time code but no TOTP secret is configured")

// memberFilter is the filter form the member listing is requested with.
var memberFilter = []string{
	"filter_status=aktiv",
	"filter_gruppe=0",
	"filter_quali=0",
	"sortierung=name",
	"start=0",
	"anzahl=9999",
}

type Config struct {
	OrganizationCode string
	BaseURL          string
	// TOTPSecret answers the second factor prompt of the login, if any.
	TOTPSecret string
	// Headers are sent with every request. Defaults to BrowserHeaders(nil).
	Headers http.Header
	// CookieDir is where the per-call cookie file is created. Defaults to
	// the system temp directory.
	CookieDir string

	HTTPClient *http.Client
	Strategy   hiorg.RedirectStrategy
	Parser     PageParser
	Logger     log.FieldLogger
}

// Extractor logs into HiOrg-Server as an administrator and reads the user
// list. Like hiorg.Client it must not be shared between goroutines.
type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Headers == nil {
		cfg.Headers = BrowserHeaders(nil)
	}
	if cfg.CookieDir == "" {
		cfg.CookieDir = os.TempDir()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Parser == nil {
		cfg.Parser = HiOrgPages{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &Extractor{cfg: cfg}
}

type session struct {
	cfg       Config
	transport *hiorg.RedirectTransport
	// reached is set once the login page answered.
	reached bool
}

// ExtractUsers returns every member of the organization with the fields the
// member listing and the user list expose. The session cookies live in a
// file that is removed before ExtractUsers returns.
func (e *Extractor) ExtractUsers(ctx context.Context, adminUsername, adminPassword string) (users []hiorg.UserRecord, err error) {
	store, err := openCookieStore(e.cfg.CookieDir, e.cfg.Logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			e.cfg.Logger.Warnf("failed to remove session cookies: %s", closeErr)
		}
	}()

	client := *e.cfg.HTTPClient
	client.Jar = store
	s := &session{
		cfg:       e.cfg,
		transport: hiorg.NewRedirectTransport(&client, e.cfg.Strategy, e.cfg.Logger),
	}

	defer s.logout(ctx)
	if err := s.login(ctx, adminUsername, adminPassword); err != nil {
		return nil, err
	}

	members, err := s.post(ctx, MembersPath, []byte(strings.Join(memberFilter, "&")))
	if err != nil {
		return nil, err
	}
	if members.StatusCode != http.StatusOK {
		return nil, &ParseError{Page: "members", Reason: fmt.Sprintf("HTTP %d", members.StatusCode)}
	}
	users, err = e.cfg.Parser.Members(members.Body)
	if err != nil {
		return nil, err
	}

	list, err := s.get(ctx, UserListPath)
	if err != nil {
		return nil, err
	}
	if list.StatusCode != http.StatusOK {
		return nil, &ParseError{Page: "user list", Reason: fmt.Sprintf("HTTP %d", list.StatusCode)}
	}
	// A member without an account is a gap in that row only. No match at
	// all means the user list markup changed.
	matched := 0
	var lastErr error
	for i := range users {
		users[i].OrganizationCode = e.cfg.OrganizationCode
		username, permissions, err := e.cfg.Parser.Account(list.Body, users[i].UserID)
		if err != nil {
			e.cfg.Logger.Warnf("no account found for user %s: %s", users[i].UserID, err)
			lastErr = err
			continue
		}
		users[i].Username = username
		users[i].Permissions = permissions
		matched++
	}
	if matched == 0 && lastErr != nil {
		return nil, &ParseError{Page: "user list", Reason: fmt.Sprintf("none of %d members found: %s", len(users), lastErr)}
	}

	e.cfg.Logger.Infof("extracted %d users, %d with account", len(users), matched)
	return users, nil
}

func (s *session) login(ctx context.Context, username, password string) error {
	form := strings.Join([]string{
		"ov=" + url.QueryEscape(s.cfg.OrganizationCode),
		"username=" + url.QueryEscape(username),
		"password=" + url.QueryEscape(password),
		"submit=Login",
	}, "&")
	resp, err := s.post(ctx, LoginPath, []byte(form))
	if err != nil {
		return fmt.Errorf("%w: %w", hiorg.ErrServiceUnavailable, err)
	}
	s.reached = true
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: login page answered HTTP %d", hiorg.ErrServiceUnavailable, resp.StatusCode)
	}

	if !asksForOTP(resp.Body) {
		return nil
	}
	if s.cfg.TOTPSecret == "" {
		return ErrSecondFactorRequired
	}
	code, err := totp.GenerateCode(s.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("generating one-time code: %w", err)
	}
	s.cfg.Logger.Debug("answering second factor prompt")
	resp, err = s.post(ctx, LoginPath, []byte(otpFieldName+"="+code+"&submit=Login"))
	if err != nil {
		return err
	}
	if asksForOTP(resp.Body) {
		return &ParseError{Page: "login", Reason: "one-time code was not accepted"}
	}
	return nil
}

// asksForOTP reports whether the page contains the one-time code input.
func asksForOTP(page []byte) bool {
	tokenizer := html.NewTokenizer(strings.NewReader(string(page)))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "input" {
				continue
			}
			for _, attr := range token.Attr {
				if attr.Key == "name" && attr.Val == otpFieldName {
					return true
				}
			}
		}
	}
}

// logout ends the admin session even when ctx is already done.
func (s *session) logout(ctx context.Context) {
	if !s.reached {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutWait)
	defer cancel()
	if _, err := s.get(ctx, LogoutPath); err != nil {
		s.cfg.Logger.Warnf("failed to log out admin session: %s", err)
	}
}

func (s *session) get(ctx context.Context, path string) (*hiorg.Response, error) {
	return s.transport.Execute(ctx, &hiorg.Request{
		Method: http.MethodGet,
		URL:    s.cfg.BaseURL + path,
		Header: s.cfg.Headers,
	}, hiorg.Unbounded)
}

func (s *session) post(ctx context.Context, path string, body []byte) (*hiorg.Response, error) {
	header := s.cfg.Headers.Clone()
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.transport.Execute(ctx, &hiorg.Request{
		Method: http.MethodPost,
		URL:    s.cfg.BaseURL + path,
		Header: header,
		Body:   body,
	}, hiorg.Unbounded)
}
