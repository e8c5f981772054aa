package turnstile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steemit/commentd/pkg/config"
)

func testConfig(url string) *config.TurnstileConfig {
	return &config.TurnstileConfig{
		Mode:      config.TurnstileModeRemote,
		Secret:    "s3cret",
		VerifyURL: url,
		Timeout:   time.Second,
		RPS:       100,
		Burst:     10,
	}
}

func TestRemoteVerifier(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected bool
	}{
		{name: "success", status: http.StatusOK, body: `{"success":true}`, expected: true},
		{name: "rejected", status: http.StatusOK, body: `{"success":false,"error-codes":["invalid-input-response"]}`, expected: false},
		{name: "server error", status: http.StatusInternalServerError, body: `{"success":true}`, expected: false},
		{name: "malformed body", status: http.StatusOK, body: `not json`, expected: false},
		{name: "missing field", status: http.StatusOK, body: `{}`, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v := NewRemoteVerifier(testConfig(srv.URL))
			assert.Equal(t, tt.expected, v.Verify(context.Background(), "token", "203.0.113.7"))
		})
	}
}

func TestRemoteVerifier_RequestForm(t *testing.T) {
	var got struct {
		method, contentType, secret, response, remoteIP string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got.method = r.Method
		got.contentType = r.Header.Get("Content-Type")
		got.secret = r.PostForm.Get("secret")
		got.response = r.PostForm.Get("response")
		got.remoteIP = r.PostForm.Get("remoteip")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	v := NewRemoteVerifier(testConfig(srv.URL))
	require.True(t, v.Verify(context.Background(), "tok", "203.0.113.7"))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/x-www-form-urlencoded", got.contentType)
	assert.Equal(t, "s3cret", got.secret)
	assert.Equal(t, "tok", got.response)
	assert.Equal(t, "203.0.113.7", got.remoteIP)
}

func TestRemoteVerifier_NoCallWithoutCredentials(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	assert.False(t, NewRemoteVerifier(cfg).Verify(context.Background(), "", "203.0.113.7"))

	cfg.Secret = ""
	assert.False(t, NewRemoteVerifier(cfg).Verify(context.Background(), "tok", "203.0.113.7"))

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRemoteVerifier_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	assert.False(t, NewRemoteVerifier(cfg).Verify(context.Background(), "tok", ""))
}

func TestRemoteVerifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.False(t, NewRemoteVerifier(testConfig(url)).Verify(context.Background(), "tok", ""))
}

func TestRemoteVerifier_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RPS = 0.001
	cfg.Burst = 1
	cfg.Timeout = 50 * time.Millisecond
	v := NewRemoteVerifier(cfg)

	assert.True(t, v.Verify(context.Background(), "tok", ""))
	// the bucket is empty and will not refill before the deadline
	assert.False(t, v.Verify(context.Background(), "tok", ""))
}

func TestNew(t *testing.T) {
	v, err := New(&config.TurnstileConfig{Mode: config.TurnstileModeBypass})
	require.NoError(t, err)
	assert.IsType(t, AlwaysSucceed{}, v)
	assert.True(t, v.Verify(context.Background(), "", ""))

	v, err = New(testConfig("http://localhost"))
	require.NoError(t, err)
	assert.IsType(t, &RemoteVerifier{}, v)

	_, err = New(&config.TurnstileConfig{Mode: "maybe"})
	assert.Error(t, err)
}
