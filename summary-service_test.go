package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func efsServer(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		for action, answer := range answers {
			if strings.Contains(string(body), "action="+action) {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, answer)
				return
			}
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func summaryClient(url string) *hiorg.Client {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return hiorg.New(hiorg.Config{
		OrganizationCode: "abc",
		APIKey:           "key",
		EFSURL:           url,
		Logger:           logger,
	})
}

func TestOperationsSummary(t *testing.T) {
	srv := efsServer(t, map[string]string{
		"geteinsaetze": `{"status":"OK","einsaetze":[
			{"id":1234,"start":1700000000,"ende":"1700003600","helfer":[{"id":7},{"id":8}]},
			{"id":"99","start":0,"ende":null}
		]}`,
	})
	service := SummaryService{client: summaryClient(srv.URL), location: time.UTC}

	summary, err := service.OperationsSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, "#1234 14.11.2023 22:13 - 14.11.2023 23:13, 2 Helfer\n#99 ? - ?, 0 Helfer\n", summary)
}

func TestOperationsSummaryEmpty(t *testing.T) {
	srv := efsServer(t, map[string]string{"geteinsaetze": `{"status":"OK","einsaetze":[]}`})
	service := SummaryService{client: summaryClient(srv.URL), location: time.UTC}

	summary, err := service.OperationsSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Keine Einsätze gefunden", summary)
}

func TestResourcesSummary(t *testing.T) {
	srv := efsServer(t, map[string]string{
		"geteinsatzmittel": `{"status":"OK","freie_einsatzmittel":[{"id":3,"typ":"KTW","name":"Rotkreuz 1/85-1"}]}`,
	})
	service := SummaryService{client: summaryClient(srv.URL), location: time.UTC}

	summary, err := service.ResourcesSummary(context.Background(), "KT", 0, 0)
	require.NoError(t, err)
	require.Equal(t, "#3 [KTW] Rotkreuz 1/85-1\n", summary)

	_, err = service.ResourcesSummary(context.Background(), "K", 0, 0)
	require.ErrorIs(t, err, hiorg.ErrInvalidFilter)
}

func TestSummaryReportsApplicationError(t *testing.T) {
	srv := efsServer(t, map[string]string{"geteinsaetze": `{"status":"ERROR","fehler":"API-Key ungültig"}`})
	client := summaryClient(srv.URL)
	service := SummaryService{client: client, location: time.UTC}

	_, err := service.OperationsSummary(context.Background())
	var appErr *hiorg.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "API-Key ungültig", client.LastError())
}
