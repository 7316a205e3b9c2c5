package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/repository"
)

func setupRepo(t *testing.T) *repository.TaskRepository {
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
	return repository.NewTaskRepository(db)
}

func TestRunnerCompletesTasks(t *testing.T) {
	repo := setupRepo(t)
	runner := NewRunner(repo, 8, nil, nil)
	runner.Start(context.Background())

	ok, created, err := runner.Submit(KindProcessCase, 1, func(context.Context) (interface{}, error) {
		return map[string]int{"processed": 2}, nil
	})
	if err != nil || !created {
		t.Fatalf("Submit failed: created=%v err=%v", created, err)
	}
	bad, _, err := runner.Submit(KindRollup, 1, func(context.Context) (interface{}, error) {
		return nil, apperr.New(apperr.KindExternalUnavailable, "test", "model unavailable")
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	panicky, _, _ := runner.Submit(KindReclassify, 1, func(context.Context) (interface{}, error) {
		panic("boom")
	})

	runner.Stop()

	got, _ := runner.Get(ok.ID)
	if got.Status != database.TaskSucceeded || got.Detail != `{"processed":2}` {
		t.Errorf("Expected succeeded task with detail, got %+v", got)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("Expected timestamps recorded")
	}

	got, _ = runner.Get(bad.ID)
	if got.Status != database.TaskFailed || got.Error != "model unavailable" {
		t.Errorf("Expected failed task, got %+v", got)
	}

	got, _ = runner.Get(panicky.ID)
	if got.Status != database.TaskFailed {
		t.Errorf("Expected panicking task failed, got %s", got.Status)
	}
}

func TestSubmitReturnsOpenTask(t *testing.T) {
	repo := setupRepo(t)
	runner := NewRunner(repo, 8, nil, nil)
	noop := func(context.Context) (interface{}, error) { return nil, nil }

	first, created, err := runner.Submit(KindReclassify, 7, noop)
	if err != nil || !created {
		t.Fatalf("Submit failed: created=%v err=%v", created, err)
	}
	second, created, err := runner.Submit(KindReclassify, 7, noop)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if created || second.ID != first.ID {
		t.Errorf("Expected queued task %s returned, got %s created=%v", first.ID, second.ID, created)
	}

	other, created, _ := runner.Submit(KindReclassify, 8, noop)
	if !created || other.ID == first.ID {
		t.Error("Expected a separate task for another case")
	}
}

func TestSubmitLatestQueuesBehindRunningTask(t *testing.T) {
	repo := setupRepo(t)
	runner := NewRunner(repo, 8, nil, nil)
	runner.Start(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	first, _, err := runner.SubmitLatest(KindReclassify, 3, func(context.Context) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("First task never started")
	}

	runs := 0
	count := func(context.Context) (interface{}, error) {
		runs++
		return nil, nil
	}
	followUp, created, err := runner.SubmitLatest(KindReclassify, 3, count)
	if err != nil || !created || followUp.ID == first.ID {
		t.Fatalf("Expected a follow-up behind the running task, got %+v created=%v err=%v", followUp, created, err)
	}
	again, created, _ := runner.SubmitLatest(KindReclassify, 3, count)
	if created || again.ID != followUp.ID {
		t.Errorf("Expected queued follow-up %s reused, got %s created=%v", followUp.ID, again.ID, created)
	}

	close(release)
	runner.Stop()

	if runs != 1 {
		t.Errorf("Expected follow-up to run once, ran %d times", runs)
	}
	got, _ := runner.Get(followUp.ID)
	if got.Status != database.TaskSucceeded {
		t.Errorf("Expected follow-up succeeded, got %s", got.Status)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	repo := setupRepo(t)
	runner := NewRunner(repo, 1, nil, nil)
	noop := func(context.Context) (interface{}, error) { return nil, nil }

	if _, _, err := runner.Submit(KindProcessCase, 1, noop); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	_, _, err := runner.Submit(KindProcessCase, 2, noop)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	runner := NewRunner(setupRepo(t), 1, nil, nil)
	runner.Stop()

	_, _, err := runner.Submit(KindProcessCase, 1, func(context.Context) (interface{}, error) { return nil, nil })
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Expected ErrStopped, got %v", err)
	}
}

func TestRecoverFailsInterruptedTasks(t *testing.T) {
	repo := setupRepo(t)
	started := time.Now()
	repo.Create(&database.Task{ID: "a", Kind: KindProcessCase, CaseID: 1, Status: database.TaskRunning, StartedAt: &started})
	repo.Create(&database.Task{ID: "b", Kind: KindRollup, CaseID: 1, Status: database.TaskSucceeded})

	n, err := NewRunner(repo, 1, nil, nil).Recover()
	if err != nil || n != 1 {
		t.Fatalf("Expected 1 recovered task, got %d err=%v", n, err)
	}
	got, _ := repo.Get("a")
	if got.Status != database.TaskFailed || got.Error == "" {
		t.Errorf("Expected interrupted task failed, got %+v", got)
	}
}
