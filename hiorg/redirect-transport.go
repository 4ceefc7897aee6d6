package hiorg

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
)

const (
	// Unbounded lets Execute follow redirects until a response is not one,
	// up to UnboundedHopLimit hops.
	Unbounded = -1
	// UnboundedHopLimit stops redirect cycles under Unbounded with
	// ErrTooManyRedirects.
	UnboundedHopLimit = 100
)

// RedirectStrategy selects how redirects are followed. It is fixed when the
// transport is built.
type RedirectStrategy int

const (
	// StrategyNative lets net/http follow redirects, capped by the hop budget.
	StrategyNative RedirectStrategy = iota
	// StrategyManual never lets net/http follow redirects and walks the
	// Location headers itself. Use it where automatic following is forbidden.
	StrategyManual
)

func (s RedirectStrategy) String() string {
	if s == StrategyManual {
		return "manual"
	}
	return "native"
}

// Request is a replayable HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the final response of Execute, fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the address the final response was served from.
	URL string
	// Visited lists every URL requested, in order.
	Visited []string
	// Exhausted is set when a redirect was not followed because the hop
	// budget was spent.
	Exhausted bool
}

// Hops returns how many redirects were followed.
func (r *Response) Hops() int {
	if len(r.Visited) == 0 {
		return 0
	}
	return len(r.Visited) - 1
}

type redirectState struct {
	current   *url.URL
	origin    *url.URL
	remaining int
}

// RedirectTransport executes requests and follows redirects within a hop budget.
type RedirectTransport struct {
	client   *http.Client
	strategy RedirectStrategy
	logger   log.FieldLogger
}

func NewRedirectTransport(client *http.Client, strategy RedirectStrategy, logger log.FieldLogger) *RedirectTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedirectTransport{client: client, strategy: strategy, logger: logger}
}

func (t *RedirectTransport) Strategy() RedirectStrategy {
	return t.strategy
}

// Execute sends req and follows at most maxHops redirects. Unbounded (-1)
// follows all of them and 0 returns the first response as is.
// A request that fails below HTTP aborts with a *TransportError.
func (t *RedirectTransport) Execute(ctx context.Context, req *Request, maxHops int) (*Response, error) {
	if t.strategy == StrategyManual {
		return t.executeManual(ctx, req, maxHops)
	}
	return t.executeNative(ctx, req, maxHops)
}

func (t *RedirectTransport) executeNative(ctx context.Context, req *Request, maxHops int) (*Response, error) {
	visited := []string{req.URL}
	exhausted := false

	client := *t.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if maxHops >= 0 && len(via) > maxHops {
			exhausted = true
			return http.ErrUseLastResponse
		}
		if maxHops < 0 && len(via) > UnboundedHopLimit {
			return ErrTooManyRedirects
		}
		visited = append(visited, next.URL.String())
		t.logger.Debugf("following redirect to '%s'", next.URL.Redacted())
		return nil
	}

	resp, err := t.send(ctx, &client, req.Method, req.URL, req.Header, req.Body)
	if err != nil {
		return nil, err
	}
	resp.Visited = visited
	resp.Exhausted = exhausted
	return resp, nil
}

func (t *RedirectTransport) executeManual(ctx context.Context, req *Request, maxHops int) (*Response, error) {
	origin, err := url.Parse(req.URL)
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: req.URL, Err: err}
	}
	state := redirectState{current: origin, origin: origin, remaining: maxHops}

	client := *t.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	method, header, body := req.Method, req.Header, req.Body
	var visited []string
	for {
		resp, err := t.send(ctx, &client, method, state.current.String(), header, body)
		if err != nil {
			return nil, err
		}
		visited = append(visited, state.current.String())
		resp.Visited = visited

		if resp.StatusCode != http.StatusMovedPermanently && resp.StatusCode != http.StatusFound {
			return resp, nil
		}
		if state.remaining == 0 {
			resp.Exhausted = true
			return resp, nil
		}
		if state.remaining < 0 && len(visited) > UnboundedHopLimit {
			return nil, &TransportError{Op: method, URL: state.current.String(), Err: ErrTooManyRedirects}
		}
		location := resp.Header.Get("Location")
		if location == "" {
			return resp, nil
		}
		next, err := state.origin.Parse(location)
		if err != nil {
			t.logger.Warnf("ignoring unparsable redirect location '%s'", location)
			return resp, nil
		}

		// net/http turns a redirected POST into a GET on 301 and 302 as well.
		if method == http.MethodPost {
			method = http.MethodGet
			body = nil
			header = header.Clone()
			header.Del("Content-Type")
			header.Del("Content-Length")
		}

		t.logger.Debugf("following redirect to '%s'", next.Redacted())
		state.current = next
		if state.remaining > 0 {
			state.remaining--
		}
	}
}

func (t *RedirectTransport) send(ctx context.Context, client *http.Client, method, rawURL string, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &TransportError{Op: method, URL: rawURL, Err: err}
	}
	for key, values := range header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: method, URL: rawURL, Err: err}
	}
	defer httpResp.Body.Close()

	content, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Op: method, URL: rawURL, Err: err}
	}

	finalURL := rawURL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       content,
		URL:        finalURL,
	}, nil
}
