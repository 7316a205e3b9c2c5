package blob

import (
	"bytes"
	"testing"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

func TestOrderKey(t *testing.T) {
	key := OrderKey(42, time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC))
	want := "pdfs/2025/03/order_42_20250307.pdf"
	if key != want {
		t.Errorf("Expected %s, got %s", want, key)
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	data := []byte("%PDF-1.4 test document")
	key := OrderKey(1, time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC))

	if _, err := s.Get(key); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("Expected not found before Put, got %v", err)
	}

	if err := s.Put(key, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %q, got %q", data, got)
	}

	if err := s.Put(key, []byte("%PDF-replaced")); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	got, _ = s.Get(key)
	if string(got) != "%PDF-replaced" {
		t.Errorf("Expected overwritten value, got %q", got)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(key); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("Expected not found after Delete, got %v", err)
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)

	if err := s.Put("../escape.pdf", []byte("x")); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("Expected validation error for escaping key, got %v", err)
	}
}

func TestBadgerStore(t *testing.T) {
	s, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("s3", t.TempDir()); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
