package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/blob"
	"github.com/JustJay7/court-case-monitor/internal/database"
)

type memoryOrders struct {
	orders map[uint]*database.Order
}

func newMemoryOrders(orders ...database.Order) *memoryOrders {
	m := &memoryOrders{orders: map[uint]*database.Order{}}
	for i := range orders {
		o := orders[i]
		m.orders[o.ID] = &o
	}
	return m
}

func (m *memoryOrders) Get(id uint) (*database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "test", "order not found")
	}
	copied := *o
	return &copied, nil
}

func (m *memoryOrders) MarkRetrieved(id uint, path string, size int64) (bool, error) {
	o := m.orders[id]
	if o.DocumentRetrieved {
		return false, nil
	}
	o.DocumentRetrieved = true
	o.DocumentPath = path
	o.DocumentSize = size
	o.LastError = ""
	return true, nil
}

func (m *memoryOrders) RecordFailure(id uint, message string) error {
	o := m.orders[id]
	o.RetryCount++
	o.LastError = message
	return nil
}

type stubSource struct {
	resp  *Response
	err   error
	calls int
}

func (s *stubSource) Fetch(ctx context.Context, target string) (*Response, error) {
	s.calls++
	return s.resp, s.err
}

func pdfBody(size int) []byte {
	body := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), size)...)
	return body
}

func testOrder() database.Order {
	o := database.Order{
		CaseID:      1,
		OrderNumber: 1,
		OrderDate:   time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		SourceURL:   "https://westdelhi.dcourts.gov.in/orders/1.pdf",
	}
	o.ID = 10
	return o
}

func newTestStage(t *testing.T, orders Orders, source Source) (*Stage, blob.Store) {
	t.Helper()
	store, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	stage := NewStage(orders, store, source, Options{
		AllowedDomains: []string{"dcourts.gov.in", "ecourts.gov.in"},
		MinBytes:       1024,
		MaxRetries:     3,
	}, nil)
	return stage, store
}

func TestCheckAllowed(t *testing.T) {
	domains := []string{"dcourts.gov.in", "ecourts.gov.in"}

	tests := []struct {
		url     string
		allowed bool
	}{
		{"https://westdelhi.dcourts.gov.in/orders/1.pdf", true},
		{"https://services.ecourts.gov.in/x", true},
		{"https://dcourts.gov.in/x", true},
		{"https://evil-dcourts.gov.in.example.com/x", false},
		{"https://notdcourts.gov.in/x", false},
		{"ftp://westdelhi.dcourts.gov.in/x", false},
		{"not a url", false},
	}

	for _, tt := range tests {
		err := CheckAllowed(tt.url, domains)
		if (err == nil) != tt.allowed {
			t.Errorf("CheckAllowed(%q) = %v, want allowed=%v", tt.url, err, tt.allowed)
		}
		if err != nil && !errors.Is(err, ErrDomainNotAllowed) {
			t.Errorf("Expected ErrDomainNotAllowed for %q, got %v", tt.url, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		resp   *Response
		target error
		kind   apperr.Kind
	}{
		{"valid document", &Response{Status: 200, Body: pdfBody(2048)}, nil, ""},
		{"too small", &Response{Status: 200, Body: pdfBody(10)}, ErrInvalidPayload, apperr.KindInvalidResponse},
		{"html page", &Response{Status: 200, Body: []byte("<html>login</html>")}, ErrInvalidPayload, apperr.KindInvalidResponse},
		{"not found marker", &Response{Status: 200, Body: []byte("<html>Record Not Found</html>")}, ErrDocumentNotFound, apperr.KindNotFound},
		{"status 404", &Response{Status: 404}, ErrDocumentNotFound, apperr.KindNotFound},
		{"status 503", &Response{Status: 503}, ErrTransport, apperr.KindExternalUnavailable},
		{"status 429", &Response{Status: 429}, ErrTransport, apperr.KindExternalUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.resp, 1024)
			if tt.target == nil {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, apperr.KindOf(err))
			}
		})
	}
}

func TestRetrieveStoresDocument(t *testing.T) {
	orders := newMemoryOrders(testOrder())
	source := &stubSource{resp: &Response{Status: 200, Body: pdfBody(2048)}}
	stage, store := newTestStage(t, orders, source)

	res, err := stage.Retrieve(context.Background(), 10)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if res.Skipped || res.Path != "pdfs/2025/11/order_10_20251103.pdf" {
		t.Errorf("Unexpected result: %+v", res)
	}

	data, err := store.Get(res.Path)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("Expected stored document, err=%v", err)
	}

	// Second run is a no-op.
	res, err = stage.Retrieve(context.Background(), 10)
	if err != nil || !res.Skipped {
		t.Errorf("Expected skipped second run, got %+v err=%v", res, err)
	}
	if source.calls != 1 {
		t.Errorf("Expected one fetch, got %d", source.calls)
	}
}

func TestRetrieveRejectsDisallowedDomainWithoutFetching(t *testing.T) {
	o := testOrder()
	o.SourceURL = "https://example.com/1.pdf"
	orders := newMemoryOrders(o)
	source := &stubSource{resp: &Response{Status: 200, Body: pdfBody(2048)}}
	stage, _ := newTestStage(t, orders, source)

	_, err := stage.Retrieve(context.Background(), 10)
	if !errors.Is(err, ErrDomainNotAllowed) {
		t.Errorf("Expected ErrDomainNotAllowed, got %v", err)
	}
	if source.calls != 0 {
		t.Errorf("Expected no network call, got %d", source.calls)
	}
}

func TestRetrieveStopsAtRetryCeiling(t *testing.T) {
	orders := newMemoryOrders(testOrder())
	source := &stubSource{err: apperr.Wrapf(apperr.KindExternalUnavailable, "test", ErrTransport, "timeout")}
	stage, _ := newTestStage(t, orders, source)

	for i := 0; i < 3; i++ {
		_, err := stage.Retrieve(context.Background(), 10)
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("Attempt %d: expected transport error, got %v", i+1, err)
		}
	}

	o, _ := orders.Get(10)
	if o.RetryCount != 3 || o.DocumentRetrieved {
		t.Errorf("Expected 3 recorded failures, got retry=%d retrieved=%v", o.RetryCount, o.DocumentRetrieved)
	}
	if o.LastError == "" {
		t.Error("Expected last error to be recorded")
	}

	_, err := stage.Retrieve(context.Background(), 10)
	if !errors.Is(err, ErrRetryLimitReached) {
		t.Errorf("Expected ErrRetryLimitReached, got %v", err)
	}
	if source.calls != 3 {
		t.Errorf("Expected no fetch past the ceiling, got %d calls", source.calls)
	}
	o, _ = orders.Get(10)
	if o.RetryCount != 3 {
		t.Errorf("Expected retry count to stay at 3, got %d", o.RetryCount)
	}
}

func TestRetrieveNotFoundIsRecorded(t *testing.T) {
	orders := newMemoryOrders(testOrder())
	source := &stubSource{resp: &Response{Status: 200, Body: []byte("No record found")}}
	stage, _ := newTestStage(t, orders, source)

	_, err := stage.Retrieve(context.Background(), 10)
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
	o, _ := orders.Get(10)
	if o.RetryCount != 1 || o.LastError != "document not found" {
		t.Errorf("Unexpected failure record: retry=%d error=%q", o.RetryCount, o.LastError)
	}
}

func TestHTTPSourceUsesProxyParameters(t *testing.T) {
	var gotURL, gotKey, gotProxy string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Query().Get("url")
		gotKey = r.URL.Query().Get("apikey")
		gotProxy = r.URL.Query().Get("premium_proxy")
		w.Write(pdfBody(10))
	}))
	defer srv.Close()

	source := NewHTTPSource(srv.URL, "secret", "", 5*time.Second)
	resp, err := source.Fetch(context.Background(), "https://westdelhi.dcourts.gov.in/o.pdf")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != http.StatusOK || !bytes.HasPrefix(resp.Body, []byte("%PDF")) {
		t.Errorf("Unexpected response: %d", resp.Status)
	}
	if gotURL != "https://westdelhi.dcourts.gov.in/o.pdf" || gotKey != "secret" || gotProxy != "true" {
		t.Errorf("Unexpected proxy query: url=%s key=%s proxy=%s", gotURL, gotKey, gotProxy)
	}
}

func TestHTTPSourceTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	source := NewHTTPSource("", "", "test-agent", time.Second)
	_, err := source.Fetch(context.Background(), addr+"/o.pdf")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
	if !apperr.Retryable(err) {
		t.Error("Expected transport error to be retryable")
	}
}
