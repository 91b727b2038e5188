package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookSink POSTs events to an HTTP collaborator such as the monitoring or
// sync-coordinator service. Routes maps an event kind to a path under the
// base URL; kinds without a route are skipped.
type WebhookSink struct {
	name    string
	baseURL string
	apiKey  string
	routes  map[Kind]string
	client  *http.Client
}

// NewWebhookSink constructs a webhook sink.
func NewWebhookSink(name, baseURL, apiKey string, routes map[Kind]string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		routes:  routes,
		client:  &http.Client{Timeout: timeout},
	}
}

// MonitoringRoutes are the event paths of the monitoring service.
func MonitoringRoutes() map[Kind]string {
	return map[Kind]string{
		KindMetadataCreated:        "/api/events/metadata-change",
		KindMetadataUpdated:        "/api/events/metadata-change",
		KindConflictResolved:       "/api/events/conflict-resolution",
		KindConflictAwaitingManual: "/api/events/conflict-resolution",
	}
}

// SyncRoutes are the event paths of the sync coordinator.
func SyncRoutes() map[Kind]string {
	return map[Kind]string{
		KindMetadataCreated:  "/api/sync/notify",
		KindMetadataUpdated:  "/api/sync/notify",
		KindConflictResolved: "/api/sync/conflicts/resolved",
	}
}

func (s *WebhookSink) Name() string {
	return s.name
}

// Send posts the encoded event with the X-API-Key header.
func (s *WebhookSink) Send(ctx context.Context, event Event) error {
	path, ok := s.routes[event.Kind]
	if !ok {
		return nil
	}

	body, err := Encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, s.name)
	}
	return nil
}
