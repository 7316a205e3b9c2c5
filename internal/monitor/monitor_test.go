package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/config"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/guard"
	"github.com/JustJay7/court-case-monitor/internal/identifier"
	"github.com/JustJay7/court-case-monitor/internal/pipeline"
	"github.com/JustJay7/court-case-monitor/internal/repository"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func setupStore(t *testing.T, clk *clock) *repository.Store {
	t.Helper()
	db, err := database.Initialize("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := repository.New(db, clk.Now)
	if err := store.Cases.SeedDistricts(config.DefaultDistricts); err != nil {
		t.Fatalf("Failed to seed districts: %v", err)
	}
	return store
}

func registerCase(t *testing.T, store *repository.Store, district string, serial int) *database.Case {
	t.Helper()
	id := identifier.CaseIdentifier{State: "DL", District: district, Establishment: "01", Serial: serial, Year: 2025,
		BaseURL: "https://delhi.dcourts.gov.in"}
	c, _, err := store.Cases.Register(id, nil, "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return c
}

// fakePipeline stores whatever listing it is given for a case and records
// the orders handed to ProcessOrders.
type fakePipeline struct {
	store     *repository.Store
	listings  map[uint][]database.DiscoveredOrder
	failures  map[uint]error
	hearings  map[uint]time.Time
	processed []uint
}

func newFakePipeline(store *repository.Store) *fakePipeline {
	return &fakePipeline{
		store:    store,
		listings: map[uint][]database.DiscoveredOrder{},
		failures: map[uint]error{},
		hearings: map[uint]time.Time{},
	}
}

func (f *fakePipeline) DiscoverOrders(_ context.Context, caseID uint, _ bool) (*pipeline.Discovery, error) {
	if err := f.failures[caseID]; err != nil {
		return nil, err
	}
	created, err := f.store.Orders.AddDiscovered(caseID, f.listings[caseID])
	if err != nil {
		return nil, err
	}
	return &pipeline.Discovery{CaseID: caseID, Listed: len(f.listings[caseID]), Created: created}, nil
}

func (f *fakePipeline) ProcessOrders(_ context.Context, orders []database.Order) *pipeline.Report {
	report := &pipeline.Report{}
	for _, o := range orders {
		f.processed = append(f.processed, o.ID)
		report.Processed++
		report.Succeeded++
		if h, ok := f.hearings[o.CaseID]; ok {
			f.store.Cases.SetNextHearing(o.CaseID, h)
		}
	}
	return report
}

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	m.sent = append(m.sent, subject)
	return m.err
}

type harness struct {
	clock     *clock
	store     *repository.Store
	lifecycle *Lifecycle
	pipeline  *fakePipeline
	lock      *guard.SchedulerLock
	mailer    *fakeMailer
	scheduler *Scheduler
	delays    []time.Duration
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{clock: &clock{t: now}, mailer: &fakeMailer{}}
	h.store = setupStore(t, h.clock)
	h.lifecycle = NewLifecycle(h.store.Windows, 30, h.clock.Now, time.UTC, nil)
	h.pipeline = newFakePipeline(h.store)
	h.lock = guard.NewSchedulerLock(30*time.Minute, h.clock.Now)
	digest := NewDigest(h.store, h.mailer, "advocate@example.com", h.clock.Now, time.UTC, nil)
	h.scheduler = NewScheduler(h.lifecycle, h.store.Windows, h.store.Cases, h.pipeline, h.lock, digest,
		Options{ItemDelay: 5 * time.Second, Sleep: func(_ context.Context, d time.Duration) error {
			h.delays = append(h.delays, d)
			return nil
		}}, nil)
	return h
}

func TestOpenWindowBounds(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)

	w, err := h.lifecycle.Open(c.ID, day(2025, time.December, 10))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !w.StartDate.Equal(day(2025, time.December, 11)) {
		t.Errorf("Expected start 2025-12-11, got %v", w.StartDate)
	}
	if !w.EndDate.Equal(day(2026, time.January, 9)) {
		t.Errorf("Expected end 2026-01-09, got %v", w.EndDate)
	}
	if w.State != database.WindowActiveWaiting || !w.IsActive {
		t.Errorf("Expected active_waiting, got %s active=%v", w.State, w.IsActive)
	}
}

func TestOpenTwiceReturnsSameWindow(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)

	first, err := h.lifecycle.Open(c.ID, day(2025, time.December, 10))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	second, err := h.lifecycle.Open(c.ID, time.Date(2025, 12, 10, 15, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected window %d, got %d", first.ID, second.ID)
	}

	windows, _ := h.store.Windows.ByCase(c.ID)
	if len(windows) != 1 {
		t.Errorf("Expected 1 window, got %d", len(windows))
	}
}

func TestOpenReactivatesInactiveWindow(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)

	w, _ := h.lifecycle.Open(c.ID, day(2025, time.December, 10))
	w.CheckCount = 4
	w.LastError = "boom"
	h.store.Windows.Save(w)

	if err := h.store.Cases.Deactivate(c.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	parked, _ := h.store.Windows.Get(w.ID)
	if parked.State != database.WindowClosedReactivatable || parked.IsActive {
		t.Fatalf("Expected parked window, got %s active=%v", parked.State, parked.IsActive)
	}

	again, err := h.lifecycle.Open(c.ID, day(2025, time.December, 10))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if again.ID != w.ID {
		t.Errorf("Expected reactivated window %d, got %d", w.ID, again.ID)
	}
	if again.State != database.WindowActiveWaiting || !again.IsActive {
		t.Errorf("Expected active_waiting, got %s", again.State)
	}
	if again.CheckCount != 0 || again.LastError != "" || again.ClosedAt != nil {
		t.Errorf("Expected counters reset, got %+v", again)
	}
}

func TestExpirePass(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)

	// Ends 2025-12-01.
	w, _ := h.lifecycle.Open(c.ID, day(2025, time.November, 1))

	expired, err := h.lifecycle.Expire()
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if expired != 0 {
		t.Fatalf("Window ending today must stay open, expired %d", expired)
	}

	h.clock.t = time.Date(2025, 12, 2, 0, 30, 0, 0, time.UTC)
	active, _ := h.lifecycle.Active()
	if len(active) != 0 {
		t.Errorf("Ended window returned as active")
	}

	expired, err = h.lifecycle.Expire()
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("Expected 1 expired window, got %d", expired)
	}

	got, _ := h.store.Windows.Get(w.ID)
	if got.State != database.WindowClosedExpired || got.IsActive || got.ClosedAt == nil {
		t.Errorf("Expected closed_expired, got %s active=%v", got.State, got.IsActive)
	}
}

func TestSweepWithoutNewOrders(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 12, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)
	w, _ := h.lifecycle.Open(c.ID, day(2025, time.December, 10))

	report, err := h.scheduler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Checked != 1 || report.Found != 0 {
		t.Errorf("Unexpected report %+v", report)
	}

	got, _ := h.store.Windows.Get(w.ID)
	if got.State != database.WindowActiveWaiting || !got.IsActive {
		t.Errorf("Expected active_waiting, got %s", got.State)
	}
	if got.CheckCount != 1 || got.LastCheckAt == nil {
		t.Errorf("Expected check recorded, got count=%d", got.CheckCount)
	}
	if report.DigestSent || len(h.mailer.sent) != 0 {
		t.Error("No digest expected without found orders")
	}
}

func TestSweepSkipsWindowsNotYetStarted(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)
	h.lifecycle.Open(c.ID, day(2025, time.December, 10))

	report, err := h.scheduler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Checked != 0 {
		t.Errorf("Expected no checks before the start date, got %d", report.Checked)
	}
}

func TestSweepFoundClosesAndOpensNext(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 12, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)
	w, _ := h.lifecycle.Open(c.ID, day(2025, time.December, 10))

	h.pipeline.listings[c.ID] = []database.DiscoveredOrder{
		{OrderNumber: 3, OrderDate: day(2025, time.December, 10), SourceURL: "https://westdelhi.dcourts.gov.in/o3.pdf"},
	}
	h.pipeline.hearings[c.ID] = day(2026, time.January, 15)

	report, err := h.scheduler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Found != 1 {
		t.Fatalf("Expected 1 found window, got %+v", report)
	}
	if len(h.pipeline.processed) != 1 {
		t.Fatalf("Expected the new order to be processed, got %v", h.pipeline.processed)
	}

	got, _ := h.store.Windows.Get(w.ID)
	if got.State != database.WindowClosedFound || got.IsActive || !got.OrderFound {
		t.Errorf("Expected closed_found, got %s active=%v found=%v", got.State, got.IsActive, got.OrderFound)
	}
	if got.FoundOrderID == nil || *got.FoundOrderID != h.pipeline.processed[0] {
		t.Errorf("Expected found order %d, got %v", h.pipeline.processed[0], got.FoundOrderID)
	}

	next := report.Windows[0].NextWindowID
	if next == 0 {
		t.Fatal("Expected a follow-up window")
	}
	nw, _ := h.store.Windows.Get(next)
	if !nw.TriggerDate.Equal(day(2026, time.January, 15)) || nw.State != database.WindowActiveWaiting {
		t.Errorf("Unexpected follow-up window %+v", nw)
	}

	if !report.DigestSent || len(h.mailer.sent) != 1 {
		t.Errorf("Expected one digest, sent=%v mails=%d", report.DigestSent, len(h.mailer.sent))
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 12, 9, 0, 0, 0, time.UTC))
	failing := registerCase(t, h.store, "WT", 12715)
	healthy := registerCase(t, h.store, "CT", 4411)

	fw, _ := h.lifecycle.Open(failing.ID, day(2025, time.December, 10))
	h.lifecycle.Open(healthy.ID, day(2025, time.December, 10))

	h.pipeline.failures[failing.ID] = apperr.New(apperr.KindExternalUnavailable, "test", "source down")
	h.pipeline.listings[healthy.ID] = []database.DiscoveredOrder{
		{OrderNumber: 1, OrderDate: day(2025, time.December, 11)},
	}

	report, err := h.scheduler.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Checked != 2 || report.Failed != 1 || report.Found != 1 {
		t.Errorf("Unexpected report %+v", report)
	}

	got, _ := h.store.Windows.Get(fw.ID)
	if got.State != database.WindowActiveWaiting || got.LastError == "" || got.CheckCount != 1 {
		t.Errorf("Expected failed check recorded, got %s err=%q count=%d", got.State, got.LastError, got.CheckCount)
	}

	if len(h.delays) != 1 || h.delays[0] != 5*time.Second {
		t.Errorf("Expected one 5s delay between windows, got %v", h.delays)
	}
}

func TestSweepRefusedWhileLocked(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 12, 9, 0, 0, 0, time.UTC))
	stale, ok := h.lock.TryAcquire()
	if !ok {
		t.Fatal("Expected to acquire lock")
	}

	_, err := h.scheduler.Sweep(context.Background())
	if !errors.Is(err, ErrSweepInProgress) || !apperr.IsKind(err, apperr.KindDuplicateConflict) {
		t.Fatalf("Expected ErrSweepInProgress, got %v", err)
	}

	// An abandoned hold is reclaimed after the timeout.
	h.clock.t = h.clock.t.Add(31 * time.Minute)
	if _, err := h.scheduler.Sweep(context.Background()); err != nil {
		t.Fatalf("Expected stale lock to be reclaimed, got %v", err)
	}

	// The abandoned holder releasing late must not free a newer hold.
	if _, ok := h.lock.TryAcquire(); !ok {
		t.Fatal("Expected the sweep to release its own hold")
	}
	h.lock.Release(stale)
	if _, err := h.scheduler.Sweep(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Errorf("Expected ErrSweepInProgress after a stale release, got %v", err)
	}
}

func TestDigestNotRetriedAfterFailure(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 12, 9, 0, 0, 0, time.UTC))
	c := registerCase(t, h.store, "WT", 12715)
	h.lifecycle.Open(c.ID, day(2025, time.December, 10))
	h.pipeline.listings[c.ID] = []database.DiscoveredOrder{
		{OrderNumber: 1, OrderDate: day(2025, time.December, 11)},
	}
	h.mailer.err = apperr.New(apperr.KindExternalUnavailable, "test", "mail down")

	if _, err := h.scheduler.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(h.mailer.sent) != 1 {
		t.Fatalf("Expected one delivery attempt, got %d", len(h.mailer.sent))
	}

	digest := NewDigest(h.store, h.mailer, "advocate@example.com", h.clock.Now, time.UTC, nil)
	sent, err := digest.SendDaily(context.Background())
	if err != nil || sent {
		t.Fatalf("Expected no second attempt, sent=%v err=%v", sent, err)
	}
	if len(h.mailer.sent) != 1 {
		t.Errorf("Delivery retried, attempts=%d", len(h.mailer.sent))
	}

	// The next day starts over.
	h.clock.t = h.clock.t.Add(24 * time.Hour)
	if sent, _ := digest.SendDaily(context.Background()); sent {
		t.Error("No windows closed on the next day, expected no digest")
	}
}
