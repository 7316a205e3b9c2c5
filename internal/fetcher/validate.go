package fetcher

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidPayload    = errors.New("invalid document payload")
	ErrTransport         = errors.New("transport error")
	ErrRetryLimitReached = errors.New("retry limit reached")
	ErrDomainNotAllowed  = errors.New("source domain not allowed")
)

var pdfSignature = []byte("%PDF")

// notFoundMarkers are phrases the court sites and the fetch service put in
// place of a missing document.
var notFoundMarkers = []string{
	"record not found",
	"no record found",
	"file not found",
	"document not found",
	"order not found",
	"404 not found",
	"the requested url was not found",
}

// CheckAllowed rejects any URL that is not http(s) on an allow-listed
// domain or one of its subdomains.
func CheckAllowed(raw string, domains []string) error {
	const op = "fetcher.CheckAllowed"

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return apperr.Wrapf(apperr.KindValidation, op, ErrDomainNotAllowed, "invalid source url")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return apperr.Wrapf(apperr.KindValidation, op, ErrDomainNotAllowed, "unsupported source url scheme")
	}

	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return apperr.Wrapf(apperr.KindValidation, op, ErrDomainNotAllowed, "source domain %s is not allowed", host)
}

// Validate classifies a document source response. A nil error means the
// body is a document of at least minBytes.
func Validate(resp *Response, minBytes int) error {
	const op = "fetcher.Validate"

	switch {
	case resp.Status == http.StatusNotFound || resp.Status == http.StatusGone:
		return apperr.Wrapf(apperr.KindNotFound, op, ErrDocumentNotFound, "document not found")
	case resp.Status == http.StatusRequestTimeout || resp.Status == http.StatusTooManyRequests || resp.Status >= 500:
		return apperr.Wrapf(apperr.KindExternalUnavailable, op, ErrTransport, "document source returned status %d", resp.Status)
	}

	if bytes.HasPrefix(resp.Body, pdfSignature) {
		if len(resp.Body) < minBytes {
			return apperr.Wrapf(apperr.KindInvalidResponse, op, ErrInvalidPayload,
				"document too small: %d bytes", len(resp.Body))
		}
		if resp.Status >= 300 {
			return apperr.Wrapf(apperr.KindInvalidResponse, op, ErrInvalidPayload, "document source returned status %d", resp.Status)
		}
		return nil
	}

	if hasNotFoundMarker(resp.Body) {
		return apperr.Wrapf(apperr.KindNotFound, op, ErrDocumentNotFound, "document not found")
	}
	return apperr.Wrapf(apperr.KindInvalidResponse, op, ErrInvalidPayload,
		"response is not a document (status %d)", resp.Status)
}

func hasNotFoundMarker(body []byte) bool {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	lower := strings.ToLower(string(head))
	for _, m := range notFoundMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
