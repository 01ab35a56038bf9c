package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh(t *testing.T) {
	called := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called <- r.Clone(context.Background())
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relay := NewRelayProxy(server.URL, "relay-secret")
	require.NoError(t, relay.Refresh(context.Background()))

	r := <-called
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, refreshPath, r.URL.Path)
	assert.Equal(t, "Bearer relay-secret", r.Header.Get("Authorization"))
}

func TestRefreshWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relay := NewRelayProxy(server.URL, "")
	assert.NoError(t, relay.Refresh(context.Background()))
}

func TestRefreshReportsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	relay := NewRelayProxy(server.URL, "")
	assert.Error(t, relay.Refresh(context.Background()))
}

func TestNilRelayIsNoOp(t *testing.T) {
	relay := NewRelayProxy("", "")
	assert.Nil(t, relay)
	assert.NoError(t, relay.Refresh(context.Background()))
	relay.RefreshAsync()
}

func TestRefreshAsyncNeverBlocks(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(done)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relay := NewRelayProxy(server.URL, "")
	relay.RefreshAsync()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never reached the relay")
	}
}

func TestRefreshAsyncSwallowsFailure(t *testing.T) {
	// no server listening: the call fails, but only into the log
	relay := NewRelayProxy("http://127.0.0.1:1", "")
	relay.RefreshAsync()
	time.Sleep(50 * time.Millisecond)
}
