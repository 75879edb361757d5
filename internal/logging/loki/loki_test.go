package loki

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
)

func testRequest(t *testing.T) *Request {
	return NewRequest([]logging.BufferedEntry{
		{Timestamp: 1234567890.0, Level: "INFO", Message: "test message 1"},
	}, testLabels(t))
}

func TestClient_Send(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, PushPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test_user_id:test_api_key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody = string(body)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, &ClientOptions{
		Credentials: &Credentials{ID: "test_user_id", Secret: "test_api_key"},
	})
	require.NoError(t, err)

	req := testRequest(t)
	require.NoError(t, client.Send(context.Background(), req))

	expected, _ := req.Serialize()
	assert.Equal(t, string(expected), gotBody)
}

func TestClient_KeepsExplicitPath(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/custom/push", nil)
	require.NoError(t, err)

	require.NoError(t, client.Send(context.Background(), testRequest(t)))
	assert.Equal(t, "/custom/push", path)
}

func TestClient_Headers(t *testing.T) {
	withAuth, err := NewClient("http://loki.example.com", &ClientOptions{
		Credentials: &Credentials{ID: "test_user_id", Secret: "test_api_key"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test_user_id:test_api_key", withAuth.Headers().Get("Authorization"))

	withoutAuth, err := NewClient("http://loki.example.com", nil)
	require.NoError(t, err)
	_, has := withoutAuth.Headers()["Authorization"]
	assert.False(t, has)
	assert.Equal(t, "application/json", withoutAuth.Headers().Get("Content-Type"))

	// the returned header is a copy
	withoutAuth.Headers().Set("Authorization", "x")
	_, has = withoutAuth.Headers()["Authorization"]
	assert.False(t, has)
}

func TestClient_DefaultTimeout(t *testing.T) {
	client, err := NewClient("http://loki.example.com", nil)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, client.Timeout())
	assert.Equal(t, "http://loki.example.com/loki/api/v1/push", client.URL())
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "loki:3100", "ftp://loki", "http://"} {
		_, err := NewClient(u, nil)
		assert.Error(t, err, u)
	}
}

func TestClient_Send_NonSuccessStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("entry out of order"))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	require.NoError(t, err)

	err = client.Send(context.Background(), testRequest(t))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Equal(t, "entry out of order", te.Body)
	assert.Equal(t, 1, attempts)
}

func TestClient_Send_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(server.URL, &ClientOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	err = client.Send(context.Background(), testRequest(t))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout())
}

func TestClient_Send_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client, err := NewClient(addr, nil)
	require.NoError(t, err)

	err = client.Send(context.Background(), testRequest(t))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
	assert.Error(t, te.Unwrap())
}

func TestClient_Ready(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/loki/api/v1/push", nil)
	require.NoError(t, err)

	assert.NoError(t, client.Ready(context.Background()))
}
