package hiorg_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	"github.com/stretchr/testify/require"
)

// redirectChain answers /hop/0 .. /hop/n-1 with a 302 to the next hop and
// /hop/n with 200.
func redirectChain(n int, status int) *fakeRoundTripper {
	return &fakeRoundTripper{handle: func(req *http.Request) (*http.Response, error) {
		i, err := strconv.Atoi(strings.TrimPrefix(req.URL.Path, "/hop/"))
		if err != nil {
			return respond(req, http.StatusNotFound, nil, ""), nil
		}
		if i < n {
			return respond(req, status, http.Header{"Location": {fmt.Sprintf("/hop/%d", i+1)}}, ""), nil
		}
		return respond(req, http.StatusOK, nil, "arrived"), nil
	}}
}

func TestExecuteFollowsRedirectsWithinBudget(t *testing.T) {
	const n = 3
	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			rt := redirectChain(n, http.StatusFound)
			transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, strategy, quietLogger())

			resp, err := transport.Execute(context.Background(), &hiorg.Request{
				Method: http.MethodGet,
				URL:    "http://hiorg.test/hop/0",
			}, n)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, "arrived", string(resp.Body))
			require.False(t, resp.Exhausted)
			require.Len(t, resp.Visited, n+1)
			require.Equal(t, n, resp.Hops())
			require.Equal(t, n+1, rt.calls())
			require.Equal(t, "http://hiorg.test/hop/3", resp.Visited[n])
		})
	}
}

func TestExecuteStopsWhenBudgetIsSpent(t *testing.T) {
	const n = 3
	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			rt := redirectChain(n, http.StatusFound)
			transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, strategy, quietLogger())

			resp, err := transport.Execute(context.Background(), &hiorg.Request{
				Method: http.MethodGet,
				URL:    "http://hiorg.test/hop/0",
			}, n-1)
			require.NoError(t, err)
			require.Equal(t, http.StatusFound, resp.StatusCode)
			require.True(t, resp.Exhausted)
			require.Len(t, resp.Visited, n)
			require.Equal(t, n, rt.calls())
		})
	}
}

func TestExecuteZeroHopsDoesNotFollow(t *testing.T) {
	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			rt := redirectChain(1, http.StatusMovedPermanently)
			transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, strategy, quietLogger())

			resp, err := transport.Execute(context.Background(), &hiorg.Request{
				Method: http.MethodGet,
				URL:    "http://hiorg.test/hop/0",
			}, 0)
			require.NoError(t, err)
			require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
			require.Equal(t, 1, rt.calls())
			require.Equal(t, 0, resp.Hops())
		})
	}
}

func TestExecuteUnbounded(t *testing.T) {
	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			rt := redirectChain(7, http.StatusFound)
			transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, strategy, quietLogger())

			resp, err := transport.Execute(context.Background(), &hiorg.Request{
				Method: http.MethodGet,
				URL:    "http://hiorg.test/hop/0",
			}, hiorg.Unbounded)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, 7, resp.Hops())
		})
	}
}

func TestManualRedirectTurnsPostIntoGet(t *testing.T) {
	var methods []string
	rt := &fakeRoundTripper{handle: func(req *http.Request) (*http.Response, error) {
		methods = append(methods, req.Method)
		if req.URL.Path == "/login" {
			require.Equal(t, "secret", req.Header.Get("X-Test"))
			return respond(req, http.StatusFound, http.Header{"Location": {"token.php?token=abc"}}, ""), nil
		}
		require.Equal(t, "secret", req.Header.Get("X-Test"))
		require.Empty(t, req.Header.Get("Content-Type"))
		return respond(req, http.StatusOK, nil, req.URL.Query().Get("token")), nil
	}}
	transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, hiorg.StrategyManual, quietLogger())

	resp, err := transport.Execute(context.Background(), &hiorg.Request{
		Method: http.MethodPost,
		URL:    "http://hiorg.test/login",
		Header: http.Header{
			"X-Test":       {"secret"},
			"Content-Type": {"application/x-www-form-urlencoded"},
		},
		Body: []byte("username=a&password=b"),
	}, hiorg.Unbounded)
	require.NoError(t, err)
	require.Equal(t, []string{http.MethodPost, http.MethodGet}, methods)
	require.Equal(t, "abc", string(resp.Body))
	require.Equal(t, "http://hiorg.test/token.php?token=abc", resp.URL)
	require.Equal(t, "username=a&password=b", rt.bodies[0])
}

func TestManualRedirectIgnoresOtherStatuses(t *testing.T) {
	rt := redirectChain(2, http.StatusTemporaryRedirect)
	transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, hiorg.StrategyManual, quietLogger())

	resp, err := transport.Execute(context.Background(), &hiorg.Request{
		Method: http.MethodGet,
		URL:    "http://hiorg.test/hop/0",
	}, hiorg.Unbounded)
	require.NoError(t, err)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.False(t, resp.Exhausted)
	require.Equal(t, 1, rt.calls())
}

func TestExecuteTransportFailure(t *testing.T) {
	failure := errors.New("connection refused")
	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			rt := &fakeRoundTripper{handle: func(*http.Request) (*http.Response, error) {
				return nil, failure
			}}
			transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, strategy, quietLogger())

			_, err := transport.Execute(context.Background(), &hiorg.Request{
				Method: http.MethodGet,
				URL:    "http://hiorg.test/",
			}, hiorg.Unbounded)
			var transportErr *hiorg.TransportError
			require.ErrorAs(t, err, &transportErr)
			require.ErrorIs(t, err, failure)
			require.Equal(t, 1, rt.calls())
		})
	}
}

func TestExecuteUnboundedStopsRedirectCycle(t *testing.T) {
	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			rt := &fakeRoundTripper{handle: func(req *http.Request) (*http.Response, error) {
				return respond(req, http.StatusFound, http.Header{"Location": {"/loop"}}, ""), nil
			}}
			transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, strategy, quietLogger())

			_, err := transport.Execute(context.Background(), &hiorg.Request{
				Method: http.MethodGet,
				URL:    "http://hiorg.test/loop",
			}, hiorg.Unbounded)
			var transportErr *hiorg.TransportError
			require.ErrorAs(t, err, &transportErr)
			require.ErrorIs(t, err, hiorg.ErrTooManyRedirects)
			require.Equal(t, hiorg.UnboundedHopLimit+1, rt.calls())
		})
	}
}

func TestExecuteUnboundedGoesPastDefaultClientLimit(t *testing.T) {
	const n = 15
	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			rt := redirectChain(n, http.StatusFound)
			transport := hiorg.NewRedirectTransport(&http.Client{Transport: rt}, strategy, quietLogger())

			resp, err := transport.Execute(context.Background(), &hiorg.Request{
				Method: http.MethodGet,
				URL:    "http://hiorg.test/hop/0",
			}, hiorg.Unbounded)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, n, resp.Hops())
		})
	}
}
