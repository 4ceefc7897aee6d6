package hiorg_test

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	log "github.com/sirupsen/logrus"
)

// fakeRoundTripper answers every request through handle and counts calls.
type fakeRoundTripper struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handle   func(req *http.Request) (*http.Response, error)
}

func (f *fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	body := ""
	if req.Body != nil {
		content, _ := io.ReadAll(req.Body)
		body = string(content)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	return f.handle(req)
}

func (f *fakeRoundTripper) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRoundTripper) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

func respond(req *http.Request, status int, header http.Header, body string) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func jsonHandler(body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return respond(req, http.StatusOK, http.Header{"Content-Type": {"application/json"}}, body), nil
	}
}

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(cfg hiorg.Config, rt *fakeRoundTripper) *hiorg.Client {
	cfg.HTTPClient = &http.Client{Transport: rt}
	cfg.Logger = quietLogger()
	return hiorg.New(cfg)
}
