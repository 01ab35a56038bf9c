package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// refreshPath is the relay proxy's admin endpoint that forces a re-fetch of
// its flag configuration.
const refreshPath = "/admin/v1/retriever/refresh"

const refreshTimeout = 10 * time.Second

// RelayProxy signals the downstream evaluation service to refresh its cached
// flag configuration. The signal is a latency optimization only: the relay
// polls its retrievers on its own cadence, so a lost signal delays
// propagation, it never loses data.
type RelayProxy struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRelayProxy returns nil when no base URL is configured; a nil RelayProxy
// is a valid no-op notifier.
func NewRelayProxy(baseURL, token string) *RelayProxy {
	if baseURL == "" {
		return nil
	}
	return &RelayProxy{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: refreshTimeout},
	}
}

// Refresh calls the relay's admin refresh endpoint once.
func (n *RelayProxy) Refresh(ctx context.Context) error {
	if n == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+refreshPath, nil)
	if err != nil {
		return err
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay refresh: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// RefreshAsync fires Refresh in the background. It never blocks the caller
// and a failure is only logged, so a successful publish can never be turned
// into a reported failure by the relay being down.
func (n *RelayProxy) RefreshAsync() {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := n.Refresh(ctx); err != nil {
			log.WithError(err).Warn("relay proxy cache refresh failed")
		}
	}()
}
