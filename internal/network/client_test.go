package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"GoImageBoardReader/internal/config"
	"GoImageBoardReader/internal/cookiestore"
)

func TestClient_SendsHeadersAndCookies(t *testing.T) {
	// Arrange - ダミーサーバーの構築
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	store := cookiestore.NewMemory()
	require.NoError(t, store.SetCookies(context.Background(), "127.0.0.1", []*http.Cookie{{Name: "cf_clearance", Value: "solved"}}))

	client, err := NewClient(config.NetworkSettings{
		UserAgent:      "TestAgent/1.0",
		AcceptLanguage: "ja",
		DefaultHeaders: map[string]string{"Referer": "https://example.org/"},
	}, WithCookieSource(store))
	require.NoError(t, err)
	require.NoError(t, client.SetCookie(server.URL, &http.Cookie{Name: "jar", Value: "1", Path: "/"}))

	// Act
	resp, err := client.Get(context.Background(), server.URL+"/g/catalog.json")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType())
	require.NotNil(t, got)
	assert.Equal(t, "TestAgent/1.0", got.Header.Get("User-Agent"))
	assert.Equal(t, "ja", got.Header.Get("Accept-Language"))
	assert.Equal(t, "https://example.org/", got.Header.Get("Referer"))

	stored, err := got.Cookie("cf_clearance")
	require.NoError(t, err)
	assert.Equal(t, "solved", stored.Value)
	jar, err := got.Cookie("jar")
	require.NoError(t, err)
	assert.Equal(t, "1", jar.Value)
}

func TestClient_NonSuccessReturnsHTTPErrorWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("<title>Just a moment...</title>"))
	}))
	defer server.Close()

	client, err := NewClient(config.NetworkSettings{})
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), server.URL)

	assert.Nil(t, resp)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Contains(t, string(httpErr.Body), "Just a moment")
	assert.True(t, httpErr.IsRetryable())
}

func TestHTTPError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&HTTPError{StatusCode: tt.status}).IsRetryable(), tt.status)
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client, err := NewClient(config.NetworkSettings{RequestTimeoutMillis: 50})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), server.URL)

	require.Error(t, err)
	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestClient_RandomUserAgent(t *testing.T) {
	client, err := NewClient(config.NetworkSettings{UserAgent: "random"})
	require.NoError(t, err)

	assert.NotEmpty(t, client.UserAgent())
	assert.NotEqual(t, "random", client.UserAgent())
}

func TestClient_RateLimiterPerDomain(t *testing.T) {
	client, err := NewClient(config.NetworkSettings{
		PerDomainIntervalMillis: map[string]int{".4cdn.org": 250},
	})
	require.NoError(t, err)

	limited := client.getLimiterForHost("i.4cdn.org")
	assert.InDelta(t, 4.0, float64(limited.Limit()), 0.001)
	assert.Same(t, limited, client.getLimiterForHost("i.4cdn.org"))

	unlimited := client.getLimiterForHost("8kun.top")
	assert.Equal(t, rate.Inf, unlimited.Limit())
}

func TestDomainCandidates(t *testing.T) {
	assert.Equal(t, []string{"boards.4chan.org", "4chan.org"}, DomainCandidates("Boards.4chan.org"))
	assert.Equal(t, []string{"localhost"}, DomainCandidates("localhost"))
	assert.Equal(t, []string{"127.0.0.1", "0.0.1", "0.1"}, DomainCandidates("127.0.0.1"))
	assert.Nil(t, DomainCandidates(""))
}

func TestClient_GetBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	client, err := NewClient(config.NetworkSettings{})
	require.NoError(t, err)

	body, err := client.GetBody(context.Background(), server.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(body))

	_, err = client.GetBody(context.Background(), server.URL+"/missing")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}
