// Package relay serves the token callback HiOrg-Server redirects to after a
// successful SSO login. It answers with the bare token so the backend login
// can read it from the last line of the response.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPath  = "/token"
	tokenField   = "token"
	maxBodyBytes = 1 << 16
	shutdownWait = 5 * time.Second
)

// NewRouter routes GET and POST requests on path to the token handler.
func NewRouter(path string, logger log.FieldLogger) *mux.Router {
	if path == "" {
		path = DefaultPath
	}
	r := mux.NewRouter()
	r.HandleFunc(path, TokenHandler(logger)).Methods(http.MethodGet, http.MethodPost)
	return r
}

// TokenHandler echoes the token found in the request as text/plain, or
// hiorg.NoTokenReply when there is none. The JSON body is looked at first,
// then the "token" form field, then the "token" query parameter.
func TokenHandler(logger log.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			logger.Warnf("failed to read relay request body: %s", err)
		}

		token := jsonToken(body)
		if token == "" && isForm(r) {
			r.Body = io.NopCloser(bytes.NewReader(body))
			if err := r.ParseForm(); err == nil {
				token = r.PostForm.Get(tokenField)
			}
		}
		if token == "" {
			token = r.URL.Query().Get(tokenField)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if token == "" {
			logger.Debug("relay request carried no token")
			io.WriteString(w, hiorg.NoTokenReply)
			return
		}
		logger.Debug("relaying token")
		io.WriteString(w, token)
	}
}

// jsonToken accepts a JSON string, an object with a "token" member, or an
// array whose first usable element is one of those.
func jsonToken(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	return tokenOf(data, true)
}

func tokenOf(data interface{}, descend bool) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]interface{}:
		if s, ok := v[tokenField].(string); ok {
			return s
		}
	case []interface{}:
		if !descend {
			return ""
		}
		for _, item := range v {
			if token := tokenOf(item, false); token != "" {
				return token
			}
		}
	}
	return ""
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

// ListenAndServe serves handler on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger log.FieldLogger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	logger.Infof("token relay listening on %s", addr)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
