// Package notifier reports freshly completed sign-ins to the auth-events
// endpoint. Delivery is best effort: sign-in must never fail because the
// notification endpoint is down.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/federicoroldos/sofull-site/internal/pkg/id"
)

// Event is one completed sign-in to report.
type Event struct {
	// IDToken is the identity assertion sent as the bearer credential.
	IDToken string
	// CaptchaToken is forwarded when the surface collected one.
	CaptchaToken string
	Locale       string
	Timezone     string
	UserAgent    string
}

// Result mirrors the dispatch response body.
type Result struct {
	OK          bool `json:"ok"`
	SentWelcome bool `json:"sentWelcome"`
	SentLogin   bool `json:"sentLogin"`
	Skipped     bool `json:"skipped"`
}

// Notifier posts auth events to the dispatch endpoint.
type Notifier struct {
	endpoint string
	client   *http.Client
}

// New builds a notifier for the given auth-events endpoint URL.
func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{endpoint: endpoint, client: client}
}

// Notify posts the event. Transport errors and non-2xx responses are
// logged and swallowed; the returned Result is nil in those cases. Each
// attempt carries a fresh attempt id so server logs can distinguish
// retries from independent sign-ins.
func (n *Notifier) Notify(ctx context.Context, ev Event) *Result {
	body, err := json.Marshal(struct {
		CaptchaToken string `json:"captchaToken,omitempty"`
	}{CaptchaToken: ev.CaptchaToken})
	if err != nil {
		slog.Warn("encode auth event", "err", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Warn("build auth event request", "err", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ev.IDToken)
	req.Header.Set("X-Attempt-Id", id.New())
	if ev.Locale != "" {
		req.Header.Set("Accept-Language", ev.Locale)
	}
	if ev.Timezone != "" {
		req.Header.Set("X-Client-Timezone", ev.Timezone)
	}
	if ev.UserAgent != "" {
		req.Header.Set("User-Agent", ev.UserAgent)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("post auth event", "err", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("auth event rejected", "status", resp.StatusCode, "body", string(msg))
		return nil
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		slog.Warn("decode auth event response", "err", fmt.Errorf("status %d: %w", resp.StatusCode, err))
		return nil
	}
	return &res
}
