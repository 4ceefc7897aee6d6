package relay_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	"github.com/fabien-chebel/hiorg-cli/relay"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func relayRequest(t *testing.T, req *http.Request) (int, string, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	relay.NewRouter("", quietLogger()).ServeHTTP(rec, req)
	return rec.Code, rec.Header().Get("Content-Type"), rec.Body.String()
}

func TestTokenHandler(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		want        string
	}{
		{"json string", http.MethodPost, "/token", "application/json", `"abc123"`, "abc123"},
		{"json object", http.MethodPost, "/token", "application/json", `{"token":"abc123","other":1}`, "abc123"},
		{"json array of objects", http.MethodPost, "/token", "application/json", `[{"token":"abc123"}]`, "abc123"},
		{"json array of strings", http.MethodPost, "/token", "application/json", `["abc123"]`, "abc123"},
		{"form field", http.MethodPost, "/token", "application/x-www-form-urlencoded", "token=abc123", "abc123"},
		{"json before form", http.MethodPost, "/token?token=fromquery", "application/json", `{"token":"fromjson"}`, "fromjson"},
		{"form before query", http.MethodPost, "/token?token=fromquery", "application/x-www-form-urlencoded", "token=fromform", "fromform"},
		{"query", http.MethodGet, "/token?token=abc123", "", "", "abc123"},
		{"empty object falls back to query", http.MethodPost, "/token?token=abc123", "application/json", `{}`, "abc123"},
		{"nothing", http.MethodGet, "/token", "", "", hiorg.NoTokenReply},
		{"garbage body", http.MethodPost, "/token", "application/json", `{not json`, hiorg.NoTokenReply},
		{"number", http.MethodPost, "/token", "application/json", `42`, hiorg.NoTokenReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			code, contentType, body := relayRequest(t, req)
			require.Equal(t, http.StatusOK, code)
			require.True(t, strings.HasPrefix(contentType, "text/plain"))
			require.Equal(t, tt.want, body)
		})
	}
}

func TestRouterRejectsOtherRoutes(t *testing.T) {
	code, _, _ := relayRequest(t, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	require.Equal(t, http.StatusNotFound, code)

	code, _, _ = relayRequest(t, httptest.NewRequest(http.MethodDelete, "/token", nil))
	require.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestBackendLoginThroughRelay(t *testing.T) {
	tokenSrv := httptest.NewServer(relay.NewRouter("/callback", quietLogger()))
	defer tokenSrv.Close()

	sso := http.NewServeMux()
	sso.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "HiOrg-Server")
	})
	sso.HandleFunc("/logmein.php", func(w http.ResponseWriter, r *http.Request) {
		next, err := url.Parse(r.URL.Query().Get("weiter"))
		if err != nil || r.ParseForm() != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("password") == "secret" {
			next.RawQuery = url.Values{"token": {"tok-42"}}.Encode()
		}
		http.Redirect(w, r, next.String(), http.StatusFound)
	})
	ssoSrv := httptest.NewServer(sso)
	defer ssoSrv.Close()

	for _, strategy := range []hiorg.RedirectStrategy{hiorg.StrategyNative, hiorg.StrategyManual} {
		t.Run(strategy.String(), func(t *testing.T) {
			client := hiorg.New(hiorg.Config{
				OrganizationCode: "abc",
				SSOURL:           ssoSrv.URL + "/logmein.php",
				ProbeURL:         ssoSrv.URL,
				TokenURL:         tokenSrv.URL + "/callback",
				Strategy:         strategy,
				Logger:           quietLogger(),
			})

			res, err := client.Login(context.Background(), hiorg.LoginRequest{Username: "hmueller", Password: "secret"})
			require.NoError(t, err)
			require.Equal(t, "tok-42", res.Token)
			require.Equal(t, hiorg.StateTokenReceived, client.State())

			_, err = client.Login(context.Background(), hiorg.LoginRequest{Username: "hmueller", Password: "wrong"})
			require.ErrorIs(t, err, hiorg.ErrMissingToken)
		})
	}
}

func TestListenAndServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay.ListenAndServe(ctx, "127.0.0.1:0", relay.NewRouter("", quietLogger()), quietLogger())
	}()
	cancel()
	require.NoError(t, <-done)
}
