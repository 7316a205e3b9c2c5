// Package fetcher implements the retrieval stage: it downloads order
// documents from allow-listed court domains, validates them and stores them
// in the blob store.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 50 << 20
)

// Response is the raw answer of the document source.
type Response struct {
	Status int
	Body   []byte
}

// Source fetches a document URL. Implementations return a Response for any
// HTTP answer and a transport error only when no answer was received.
type Source interface {
	Fetch(ctx context.Context, target string) (*Response, error)
}

// HTTPSource fetches through the proxying fetch service when ProxyURL is
// set, and directly otherwise.
type HTTPSource struct {
	proxyURL   string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

func NewHTTPSource(proxyURL, apiKey, userAgent string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSource{
		proxyURL:  proxyURL,
		apiKey:    apiKey,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, target string) (*Response, error) {
	reqURL := target
	if s.proxyURL != "" {
		u, err := url.Parse(s.proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse fetch api url: %w", err)
		}
		q := u.Query()
		q.Set("url", target)
		q.Set("apikey", s.apiKey)
		q.Set("premium_proxy", "true")
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	if s.proxyURL == "" && s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(err)
	}

	return &Response{Status: resp.StatusCode, Body: body}, nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Wrapf(apperr.KindExternalUnavailable, "fetcher.Fetch", errors.Join(ErrTransport, err), "document source timed out")
	}
	return apperr.Wrapf(apperr.KindExternalUnavailable, "fetcher.Fetch", errors.Join(ErrTransport, err), "document source unreachable")
}
