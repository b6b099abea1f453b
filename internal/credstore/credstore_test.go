package credstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, key := range SessionKeys {
		if err := s.Set(ctx, key, "v-"+key); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := s.Set(ctx, KeyAccessToken, "rotated"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, KeyAccessToken)
	if err != nil || got != "rotated" {
		t.Fatalf("unexpected value %q (%v)", got, err)
	}

	if err := s.Delete(ctx, SessionKeys...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, key := range SessionKeys {
		if value, err := Lookup(ctx, s, key); err != nil || value != "" {
			t.Fatalf("expected %s to be gone, got %q (%v)", key, value, err)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "credentials.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")

	first, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, KeyUser, `{"id":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = first.Close()

	second, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, err := second.Get(ctx, KeyUser)
	if err != nil || got != `{"id":1}` {
		t.Fatalf("unexpected value %q (%v)", got, err)
	}
}
