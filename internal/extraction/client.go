// Package extraction implements the extraction stage: stored documents are
// sent to an OCR service and the cleaned text is persisted.
package extraction

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
	ErrServiceUnavailable = errors.New("extraction service unavailable")
	ErrNotConfigured      = errors.New("extraction service not configured")
	ErrEmptyResult        = errors.New("extraction returned no text")
)

// Extractor turns a document into page-segmented text.
type Extractor interface {
	Extract(ctx context.Context, document []byte) ([]string, error)
}

// OCRClient calls an OCR endpoint that accepts a base64 document URL and
// answers with markdown per page.
type OCRClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOCRClient(endpoint, apiKey, model string) *OCRClient {
	return &OCRClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *OCRClient) Extract(ctx context.Context, document []byte) ([]string, error) {
	const op = "extraction.OCRClient.Extract"

	if strings.TrimSpace(c.endpoint) == "" || strings.TrimSpace(c.apiKey) == "" {
		return nil, apperr.Wrapf(apperr.KindInternal, op, ErrNotConfigured, "ocr service is not configured")
	}

	payload := map[string]any{
		"model": c.model,
		"document": map[string]string{
			"type":         "document_url",
			"document_url": "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(document),
		},
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("encode ocr payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, buf)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("create ocr request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, apperr.Wrapf(apperr.KindExternalUnavailable, op, errors.Join(ErrServiceUnavailable, err), "ocr service timed out")
		}
		return nil, apperr.Wrapf(apperr.KindExternalUnavailable, op, errors.Join(ErrServiceUnavailable, err), "ocr service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperr.Wrapf(apperr.KindExternalUnavailable, op,
			errors.Join(ErrServiceUnavailable, fmt.Errorf("status %d body %s", resp.StatusCode, body)),
			"ocr service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperr.Wrapf(apperr.KindInvalidResponse, op,
			fmt.Errorf("status %d body %s", resp.StatusCode, body),
			"ocr service rejected the document (status %d)", resp.StatusCode)
	}

	var result struct {
		Pages []struct {
			Index    int    `json:"index"`
			Markdown string `json:"markdown"`
			Text     string `json:"text"`
		} `json:"pages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrapf(apperr.KindInvalidResponse, op, err, "decode ocr response")
	}

	pages := make([]string, 0, len(result.Pages))
	for _, p := range result.Pages {
		text := p.Markdown
		if text == "" {
			text = p.Text
		}
		pages = append(pages, text)
	}
	return pages, nil
}
