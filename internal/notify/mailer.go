// Package notify delivers email through an HTTP email API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

// ErrNotConfigured is returned when the email API key or sender is missing.
var ErrNotConfigured = errors.New("email delivery not configured")

// Mailer sends one HTML message.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// APIMailer posts messages to a Resend-compatible endpoint.
type APIMailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewAPIMailer(endpoint, apiKey, from string) *APIMailer {
	return &APIMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *APIMailer) Send(ctx context.Context, to, subject, html string) error {
	const op = "notify.Send"

	if m.endpoint == "" || m.apiKey == "" || m.from == "" {
		return apperr.Wrap(apperr.KindInternal, op, ErrNotConfigured)
	}
	if to == "" {
		return apperr.New(apperr.KindValidation, op, "recipient is required")
	}

	body, err := json.Marshal(message{From: m.from, To: []string{to}, Subject: subject, HTML: html})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindExternalUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("email api returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return apperr.Wrap(apperr.KindExternalUnavailable, op, err)
	}
	return apperr.Wrap(apperr.KindInvalidResponse, op, err)
}
