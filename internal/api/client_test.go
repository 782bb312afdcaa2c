package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CosmoTheDev/scanboard/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewWithOptions(Options{URL: srv.URL, Session: "tok"})
}

func TestLoginStoresSessionCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "admin" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"Invalid password"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "jwt-123"})
		_, _ = io.WriteString(w, `{"status":"success"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewWithOptions(Options{URL: srv.URL})
	_, err := c.Login(context.Background(), "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	assert.False(t, errors.Is(err, ErrUnauthorized), "a wrong password is not an expired session")
	assert.Equal(t, "Invalid password", UserMessage(err))
	assert.Empty(t, c.Session())

	tok, err := c.Login(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "jwt-123", tok)
	assert.Equal(t, "jwt-123", c.Session())
}

func TestRequestsCarrySessionCookie(t *testing.T) {
	var gotCookie, gotRequestID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie(SessionCookie); err == nil {
			gotCookie = ck.Value
		}
		gotRequestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.DeleteFinding(context.Background(), 9))
	assert.Equal(t, "tok", gotCookie)
	assert.NotEmpty(t, gotRequestID)
}

func TestBearerTokenAttachedWhenConfigured(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := NewWithOptions(Options{URL: srv.URL, Token: "proxy-token"})
	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "Bearer proxy-token", auth)
}

func TestUpdateFindingStateSendsExactlyTargetState(t *testing.T) {
	var body map[string]any
	var method, path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"id":42,"name":"Exposed .env","severity":"HIGH","state":"FALSE_POSITIVE"}`)
	}))

	f, err := c.UpdateFindingState(context.Background(), 42, models.StateFalsePositive)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/api/findings/42/status", path)
	assert.Equal(t, map[string]any{"state": "FALSE_POSITIVE"}, body)
	assert.Equal(t, models.StateFalsePositive, f.State)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
		unauth   bool
		message  string
	}{
		{name: "not found", status: 404, body: `{"error":"Finding not found"}`, notFound: true, message: "Finding not found"},
		{name: "unauthorized", status: 401, body: `{"error":"Unauthorized"}`, unauth: true, message: msgUnauthorized},
		{name: "rejected with message", status: 400, body: `{"error":"Invalid state"}`, message: "Invalid state"},
		{name: "rejected without body", status: 500, body: ``, message: msgActionFailed},
		{name: "plain text body", status: 500, body: "Failed to fetch findings", message: "Failed to fetch findings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			_, err := c.GetFinding(context.Background(), 1)
			require.Error(t, err)
			var ae *APIError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.status, ae.StatusCode)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))
			assert.Equal(t, tt.unauth, errors.Is(err, ErrUnauthorized))
			assert.Equal(t, tt.message, UserMessage(err))
		})
	}
}

func TestTransportErrorIsGenericConnectivityMessage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewWithOptions(Options{URL: url})
	_, err := c.Stats(context.Background())
	require.Error(t, err)
	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.True(t, Retryable(err))
	assert.Equal(t, msgTransport, UserMessage(err))
}

func TestStopScanRejectionIsAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scan/7/stop", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"scan 7 is not running"}`)
	}))
	err := c.StopScan(context.Background(), 7)
	require.Error(t, err)
	assert.False(t, Retryable(err))
	assert.Equal(t, "scan 7 is not running", UserMessage(err))
}

func TestLaunchScanBody(t *testing.T) {
	var got models.ScanRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"status":"started","message":"Scan started for example.com"}`)
	}))
	res, err := c.LaunchScan(context.Background(), models.ScanRequest{Target: "example.com", Type: models.ScanCustom, Templates: "cve,exposure"})
	require.NoError(t, err)
	assert.Equal(t, "started", res.Status)
	assert.Equal(t, models.ScanRequest{Target: "example.com", Type: models.ScanCustom, Templates: "cve,exposure"}, got)
}

func TestExportStreamsBody(t *testing.T) {
	csv := "ID,Name\n1,Exposed .env\n"
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, csv)
	}))
	var buf bytes.Buffer
	n, err := c.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.EqualValues(t, len(csv), n)
	assert.Equal(t, csv, buf.String())
}

func TestTemplateContentEscapesPath(t *testing.T) {
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		_, _ = io.WriteString(w, "id: test\n")
	}))
	body, err := c.TemplateContent(context.Background(), "/templates/http/a b.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/templates/http/a b.yaml", gotPath)
	assert.True(t, strings.HasPrefix(body, "id: test"))
}
