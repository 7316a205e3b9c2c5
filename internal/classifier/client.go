// Package classifier implements the classification and rollup stages on
// top of a chat-completions language model, and the CAPTCHA solver the
// detail source uses.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

const requestTimeout = 2 * time.Minute

var (
	ErrNotConfigured = errors.New("language model not configured")
	ErrNoChoices     = errors.New("no completion returned")
)

// Model is a chat-completions collaborator. Transient failures are
// returned as apperr.KindExternalUnavailable.
type Model interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// ChatClient talks to an OpenAI-compatible chat-completions endpoint.
type ChatClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewChatClient(endpoint, apiKey, model string) *ChatClient {
	return &ChatClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *ChatClient) Name() string {
	return c.model
}

// Complete sends one system+user exchange and asks for a JSON object.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature":     0.1,
		"response_format": map[string]string{"type": "json_object"},
	}
	return c.send(ctx, "classifier.Complete", payload)
}

// SolveCaptcha reads the characters of a CAPTCHA image.
func (c *ChatClient) SolveCaptcha(ctx context.Context, image []byte) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": captchaPrompt},
					{"type": "image_url", "image_url": map[string]string{
						"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
		"temperature": 0,
		"max_tokens":  20,
	}

	answer, err := c.send(ctx, "classifier.SolveCaptcha", payload)
	if err != nil {
		return "", err
	}
	return cleanCaptcha(answer), nil
}

func (c *ChatClient) send(ctx context.Context, op string, payload map[string]any) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" || strings.TrimSpace(c.endpoint) == "" {
		return "", apperr.Wrapf(apperr.KindInternal, op, ErrNotConfigured, "language model is not configured")
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, buf)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", apperr.Wrapf(apperr.KindExternalUnavailable, op, err, "language model timed out")
		}
		if errors.Is(err, context.Canceled) {
			return "", apperr.Wrap(apperr.KindInternal, op, err)
		}
		return "", apperr.Wrapf(apperr.KindExternalUnavailable, op, err, "language model unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(op, resp)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", apperr.Wrapf(apperr.KindInvalidResponse, op, err, "decode completion response")
	}
	if len(response.Choices) == 0 {
		return "", apperr.Wrapf(apperr.KindInvalidResponse, op, ErrNoChoices, "no completion returned")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// decodeAPIError classifies an error status. 408, 429 and 5xx are transient.
func decodeAPIError(op string, resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := fmt.Errorf("status %d body %s", resp.StatusCode, string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		detail = fmt.Errorf("status %d type %s message %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return apperr.Wrapf(apperr.KindExternalUnavailable, op, detail, "language model unavailable (status %d)", resp.StatusCode)
	default:
		return apperr.Wrapf(apperr.KindInternal, op, detail, "language model rejected the request (status %d)", resp.StatusCode)
	}
}

// cleanCaptcha keeps the alphanumerics of the last word of the answer.
func cleanCaptcha(answer string) string {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range fields[len(fields)-1] {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
