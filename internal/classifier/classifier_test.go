package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
)

type fakeStore struct {
	order    database.Order
	c        database.Case
	text     database.ExtractedText
	summary  *database.OrderSummary
	pairs    []database.OrderWithSummary
	rollup   *database.CaseRollup
	failures []string
}

func (f *fakeStore) Get(id uint) (*database.Order, error) {
	o := f.order
	return &o, nil
}

func (f *fakeStore) MarkClassified(id uint) (bool, error) {
	if !f.order.TextExtracted || f.order.Classified {
		return false, nil
	}
	f.order.Classified = true
	return true, nil
}

func (f *fakeStore) RecordFailure(id uint, message string) error {
	f.failures = append(f.failures, message)
	f.order.RetryCount++
	return nil
}

func (f *fakeStore) GetText(orderID uint) (*database.ExtractedText, error) {
	t := f.text
	return &t, nil
}

func (f *fakeStore) SaveSummary(s *database.OrderSummary) error {
	f.summary = s
	return nil
}

func (f *fakeStore) SummariesForCase(caseID uint) ([]database.OrderWithSummary, error) {
	return f.pairs, nil
}

func (f *fakeStore) SaveRollup(r *database.CaseRollup) error {
	f.rollup = r
	return nil
}

type fakeCases struct{ store *fakeStore }

func (f fakeCases) Get(id uint) (*database.Case, error) {
	c := f.store.c
	return &c, nil
}

type scriptedModel struct {
	answers []string
	errs    []error
	calls   int
	systems []string
	users   []string
}

func (m *scriptedModel) Complete(ctx context.Context, system, user string) (string, error) {
	i := m.calls
	m.calls++
	m.systems = append(m.systems, system)
	m.users = append(m.users, user)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.answers) {
		return m.answers[i], nil
	}
	return m.answers[len(m.answers)-1], nil
}

func (m *scriptedModel) Name() string { return "test-model" }

func noSleep(delays *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func newFakeStore() *fakeStore {
	f := &fakeStore{}
	f.order.ID = 3
	f.order.CaseID = 1
	f.order.TextExtracted = true
	f.c.ID = 1
	f.c.CNR = "DLWT010127152025"
	f.text = database.ExtractedText{OrderID: 3, CleanedText: "Heard. Adjourned to 10.12.2025."}
	return f
}

func newTestStage(f *fakeStore, model Model, delays *[]time.Duration) *Stage {
	return NewStage(f, fakeCases{f}, f, model, Options{
		MaxChars: 30000,
		Backoff:  Backoff{Attempts: 3, Base: 2 * time.Second, Sleep: noSleep(delays)},
	}, nil)
}

func TestParseClassificationCoercesMissingFields(t *testing.T) {
	c, err := ParseClassification(`{"summary": "Matter adjourned.", "confidence": "85", "action_items": null}`)
	if err != nil {
		t.Fatalf("ParseClassification failed: %v", err)
	}
	if c.Summary != "Matter adjourned." {
		t.Errorf("Unexpected summary %q", c.Summary)
	}
	if c.CaseTitle != "" || c.OrderType != "" || c.NextHearingDate != nil || c.IsFinalOrder {
		t.Errorf("Expected defaults for missing fields, got %+v", c)
	}
	if c.ActionItems == nil || len(c.ActionItems) != 0 {
		t.Errorf("Expected empty action items, got %v", c.ActionItems)
	}
	if c.Confidence != 0.85 {
		t.Errorf("Expected confidence 0.85, got %v", c.Confidence)
	}
}

func TestParseClassificationTypes(t *testing.T) {
	c, err := ParseClassification("```json\n{\"next_hearing_date\": \"10-12-2025\", \"is_adjournment\": \"yes\", \"action_items\": \"File reply\", \"confidence\": 7}\n```")
	if err != nil {
		t.Fatalf("ParseClassification failed: %v", err)
	}
	want := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	if c.NextHearingDate == nil || !c.NextHearingDate.Equal(want) {
		t.Errorf("Expected next hearing %v, got %v", want, c.NextHearingDate)
	}
	if !c.IsAdjournment {
		t.Error("Expected is_adjournment true")
	}
	if len(c.ActionItems) != 1 || c.ActionItems[0] != "File reply" {
		t.Errorf("Unexpected action items %v", c.ActionItems)
	}
	if c.Confidence != 0.07 {
		t.Errorf("Expected percentage confidence 0.07, got %v", c.Confidence)
	}

	c, _ = ParseClassification(`{"confidence": 250, "next_hearing_date": "soon"}`)
	if c.Confidence != 1 || c.NextHearingDate != nil {
		t.Errorf("Expected clamped confidence and no date, got %v %v", c.Confidence, c.NextHearingDate)
	}
}

func TestParseClassificationRejectsNonObject(t *testing.T) {
	for _, answer := range []string{"not json", `["a","b"]`, `"text"`, ``} {
		_, err := ParseClassification(answer)
		if !apperr.IsKind(err, apperr.KindInvalidResponse) || !errors.Is(err, ErrNotObject) {
			t.Errorf("ParseClassification(%q): expected invalid response, got %v", answer, err)
		}
	}
}

func TestParseRollupClampsCounts(t *testing.T) {
	r, err := ParseRollup(`{"adjournments": {"petitioner": 1e300, "respondent": -4, "court": "99999999999999999999"}}`)
	if err != nil {
		t.Fatalf("ParseRollup failed: %v", err)
	}
	if r.PetitionerAdjourns != maxCount || r.CourtAdjourns != maxCount {
		t.Errorf("Expected huge counts clamped to %d, got %d and %d", maxCount, r.PetitionerAdjourns, r.CourtAdjourns)
	}
	if r.RespondentAdjourns != 0 {
		t.Errorf("Expected negative count read as 0, got %d", r.RespondentAdjourns)
	}

	r, _ = ParseRollup(`{"adjournments": {"petitioner": 3, "respondent": "2", "court": 1.9}}`)
	if r.PetitionerAdjourns != 3 || r.RespondentAdjourns != 2 || r.CourtAdjourns != 1 {
		t.Errorf("Unexpected counts %+v", r)
	}
}

func TestBackoffDoublesAndStopsOnPermanentError(t *testing.T) {
	var delays []time.Duration
	transient := apperr.New(apperr.KindExternalUnavailable, "test", "busy")

	calls := 0
	err := Backoff{Attempts: 3, Base: 2 * time.Second, Sleep: noSleep(&delays)}.Do(context.Background(), func() error {
		calls++
		return transient
	})
	if !apperr.Retryable(err) || calls != 3 {
		t.Errorf("Expected 3 attempts ending in transient error, got %d calls err=%v", calls, err)
	}
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Errorf("Expected delays [2s 4s], got %v", delays)
	}

	delays = nil
	calls = 0
	permanent := apperr.New(apperr.KindInternal, "test", "bad request")
	err = Backoff{Attempts: 3, Base: time.Second, Sleep: noSleep(&delays)}.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if err != permanent || calls != 1 || len(delays) != 0 {
		t.Errorf("Expected immediate propagation, got %d calls err=%v", calls, err)
	}
}

func TestClassifyStoresCoercedSummary(t *testing.T) {
	f := newFakeStore()
	var delays []time.Duration
	model := &scriptedModel{answers: []string{`{"order_type": "adjournment"}`}}
	stage := newTestStage(f, model, &delays)

	res, err := stage.Classify(context.Background(), 3, false)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if res.Skipped {
		t.Error("Expected order to be classified")
	}
	if !f.order.Classified {
		t.Error("Expected classified flag to be set")
	}
	if f.summary == nil || f.summary.OrderType != "adjournment" || string(f.summary.ActionItems) != "[]" {
		t.Errorf("Unexpected summary: %+v", f.summary)
	}
	if f.summary.ModelName != "test-model" {
		t.Errorf("Expected model name recorded, got %q", f.summary.ModelName)
	}

	res, err = stage.Classify(context.Background(), 3, false)
	if err != nil || !res.Skipped || model.calls != 1 {
		t.Errorf("Expected second run skipped without model call, got %+v calls=%d", res, model.calls)
	}
}

func TestClassifyRetriesTransientFailures(t *testing.T) {
	f := newFakeStore()
	var delays []time.Duration
	transient := apperr.New(apperr.KindExternalUnavailable, "test", "rate limited")
	model := &scriptedModel{
		errs:    []error{transient, transient},
		answers: []string{"", "", `{"summary": "ok", "next_hearing_date": "2025-12-10"}`},
	}
	stage := newTestStage(f, model, &delays)

	res, err := stage.Classify(context.Background(), 3, false)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if model.calls != 3 {
		t.Errorf("Expected 3 model calls, got %d", model.calls)
	}
	if res.NextHearingDate == nil || res.NextHearingDate.Format("2006-01-02") != "2025-12-10" {
		t.Errorf("Expected next hearing date in result, got %v", res.NextHearingDate)
	}
	if len(f.failures) != 0 {
		t.Errorf("Expected no recorded failure, got %v", f.failures)
	}
}

func TestClassifyInvalidResponseLeavesOrderUnclassified(t *testing.T) {
	f := newFakeStore()
	var delays []time.Duration
	stage := newTestStage(f, &scriptedModel{answers: []string{"I cannot help with that."}}, &delays)

	_, err := stage.Classify(context.Background(), 3, false)
	if !apperr.IsKind(err, apperr.KindInvalidResponse) {
		t.Errorf("Expected invalid response, got %v", err)
	}
	if f.order.Classified || f.summary != nil {
		t.Error("Expected order left unclassified")
	}
	if len(f.failures) != 1 {
		t.Errorf("Expected failure recorded, got %v", f.failures)
	}
	if len(delays) != 0 {
		t.Error("Expected no retry for invalid response")
	}
}

func TestClassifyForceUsesPerspectiveAndTruncates(t *testing.T) {
	f := newFakeStore()
	f.order.Classified = true
	f.c.Perspective = database.PerspectiveRespondent
	f.text.CleanedText = strings.Repeat("a", 50)

	var delays []time.Duration
	model := &scriptedModel{answers: []string{`{"summary": "regenerated"}`}}
	stage := NewStage(f, fakeCases{f}, f, model, Options{MaxChars: 10, Backoff: Backoff{Attempts: 1, Sleep: noSleep(&delays)}}, nil)

	res, err := stage.Classify(context.Background(), 3, true)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if res.Skipped || f.summary.Summary != "regenerated" || f.summary.Perspective != database.PerspectiveRespondent {
		t.Errorf("Expected regenerated respondent summary, got %+v", f.summary)
	}
	if !strings.Contains(model.systems[0], "respondent") {
		t.Error("Expected respondent instruction in the prompt")
	}
	if len(model.users[0]) != 10 {
		t.Errorf("Expected text truncated to 10 chars, got %d", len(model.users[0]))
	}
}

func TestRollupReplacesAggregate(t *testing.T) {
	f := newFakeStore()
	f.pairs = []database.OrderWithSummary{
		{Order: database.Order{OrderNumber: 1, OrderDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}, Summary: database.OrderSummary{Summary: "Notice issued", IsAdjournment: false}},
		{Order: database.Order{OrderNumber: 2, OrderDate: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)}, Summary: database.OrderSummary{Summary: "Adjourned at request of respondent", IsAdjournment: true}},
	}
	var delays []time.Duration
	model := &scriptedModel{answers: []string{`{
		"narrative": "Notice issued, then adjourned.",
		"timeline": [{"date": "01.09.2025", "event": "Notice issued"}, {"date": "2025-10-01", "event": "Adjourned"}, "junk"],
		"current_stage": "Appearance",
		"adjournments": {"petitioner": 0, "respondent": "1", "court": 0},
		"pending_actions": ["File written statement"]
	}`}}
	stage := newTestStage(f, model, &delays)

	rollup, err := stage.Rollup(context.Background(), 1)
	if err != nil {
		t.Fatalf("Rollup failed: %v", err)
	}
	if rollup.RespondentAdjourns != 1 || rollup.OrdersConsidered != 2 {
		t.Errorf("Unexpected rollup: %+v", rollup)
	}

	var timeline []TimelineEntry
	if err := json.Unmarshal(rollup.Timeline, &timeline); err != nil {
		t.Fatalf("Timeline is not valid JSON: %v", err)
	}
	if len(timeline) != 2 || timeline[0].Date != "2025-09-01" {
		t.Errorf("Unexpected timeline: %+v", timeline)
	}
	if !strings.Contains(model.users[0], "Order 1 dated 2025-09-01") || strings.Index(model.users[0], "Order 1") > strings.Index(model.users[0], "Order 2") {
		t.Error("Expected context in order-number order")
	}
	if f.rollup != rollup {
		t.Error("Expected rollup to be saved")
	}
	if rollup.ModelName != "test-model" {
		t.Errorf("Expected model name recorded, got %q", rollup.ModelName)
	}
}

func TestRollupRequiresClassifiedOrders(t *testing.T) {
	f := newFakeStore()
	var delays []time.Duration
	stage := newTestStage(f, &scriptedModel{answers: []string{"{}"}}, &delays)

	if _, err := stage.Rollup(context.Background(), 1); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestChatClientClassifiesStatus(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
			return
		}
		w.Write([]byte(`{"choices": [{"message": {"content": " {\"summary\": \"ok\"} "}}]}`))
	}))
	defer srv.Close()

	client := NewChatClient(srv.URL, "key", "gpt-test")

	_, err := client.Complete(context.Background(), "sys", "user")
	if !apperr.Retryable(err) {
		t.Errorf("Expected retryable error for 503, got %v", err)
	}

	status = http.StatusUnauthorized
	_, err = client.Complete(context.Background(), "sys", "user")
	if err == nil || apperr.Retryable(err) {
		t.Errorf("Expected permanent error for 401, got %v", err)
	}

	status = http.StatusOK
	answer, err := client.Complete(context.Background(), "sys", "user")
	if err != nil || answer != `{"summary": "ok"}` {
		t.Errorf("Unexpected answer %q err=%v", answer, err)
	}
}

func TestChatClientSolveCaptcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": "The text is: aB3x9"}}]}`))
	}))
	defer srv.Close()

	answer, err := NewChatClient(srv.URL, "key", "gpt-test").SolveCaptcha(context.Background(), []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("SolveCaptcha failed: %v", err)
	}
	if answer != "aB3x9" {
		t.Errorf("Unexpected answer %q", answer)
	}
}

func TestChatClientNotConfigured(t *testing.T) {
	_, err := NewChatClient("https://example.invalid", "", "m").Complete(context.Background(), "s", "u")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}
