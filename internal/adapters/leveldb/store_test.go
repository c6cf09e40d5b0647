package leveldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/setshaba/mapdata/internal/core/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "setshaba:wards"); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := s.Set(ctx, "setshaba:wards", []byte(`{"version":"v1"}`), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "setshaba:wards")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"version":"v1"}` {
		t.Errorf("unexpected value %s", got)
	}
	if err := s.Delete(ctx, "setshaba:wards"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(ctx, "setshaba:wards"); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestStore_TTL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", []byte("v"), 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(59 * time.Second)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("expected value before ttl, got %v", err)
	}
	now = now.Add(time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after ttl, got %v", err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("persisted"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "persisted" {
		t.Errorf("expected persisted value, got %q (%v)", got, err)
	}
}
