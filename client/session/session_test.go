package session

import (
	"path/filepath"
	"testing"
)

func TestMemStoreLifecycle(t *testing.T) {
	s := NewMemStore()
	if _, ok := s.Token(); ok {
		t.Fatal("fresh store must be empty")
	}
	if err := s.Persist("tok-1"); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if tok, ok := s.Token(); !ok || tok != "tok-1" {
		t.Fatalf("unexpected token: %q, ok=%v", tok, ok)
	}
	if err := s.Persist("tok-2"); err != nil {
		t.Fatalf("Persist replace: %v", err)
	}
	if tok, _ := s.Token(); tok != "tok-2" {
		t.Fatalf("persist must replace, got %q", tok)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := s.Token(); ok {
		t.Fatal("cleared store must be empty")
	}
}

func TestMemStoreRejectsEmptyToken(t *testing.T) {
	s := NewMemStore()
	if err := s.Persist("   "); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	s := NewFileStore(path)

	if _, ok := s.Token(); ok {
		t.Fatal("missing file must read as no token")
	}
	if err := s.Persist("bearer-abc"); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if tok, ok := s.Token(); !ok || tok != "bearer-abc" {
		t.Fatalf("unexpected token: %q, ok=%v", tok, ok)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := s.Token(); ok {
		t.Fatal("cleared store must be empty")
	}
	// Clearing twice must stay a no-op.
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
