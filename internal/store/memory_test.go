package store

import (
	"context"
	"errors"
	"testing"

	"github.com/mycloud-app/mycloud/types"
)

func TestMemoryUniqueLoginAndEmail(t *testing.T) {
	ctx := context.Background()
	users := NewMemory().Users()

	if _, err := users.Create(ctx, types.User{Login: "jane1", Email: "jane@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := users.Create(ctx, types.User{Login: "jane1", Email: "other@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for login, got %v", err)
	}
	if _, err := users.Create(ctx, types.User{Login: "other1", Email: "jane@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for email, got %v", err)
	}
	if _, err := users.GetByLogin(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryFileDeleteClearsAvatar(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	user, _ := m.Users().Create(ctx, types.User{Login: "jane1", Email: "jane@example.com"})
	rec, err := m.Files().Create(ctx, types.FileRecord{UserID: user.ID, FileName: "me.png", ObjectKey: "user_files/1/x_me.png"})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	url := rec.URL("http://cloud.test")
	user.Avatar = url
	if _, err := m.Users().Update(ctx, user); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := m.Files().Delete(ctx, rec.ID, url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := m.Users().GetByID(ctx, user.ID)
	if got.Avatar != "" {
		t.Fatalf("expected avatar cleared, got %q", got.Avatar)
	}
	if err := m.Files().Delete(ctx, rec.ID, url); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryUserDeleteCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	user, _ := m.Users().Create(ctx, types.User{Login: "jane1", Email: "jane@example.com"})
	_, _ = m.Files().Create(ctx, types.FileRecord{UserID: user.ID, FileName: "a.txt"})

	if err := m.Users().Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	files, _ := m.Files().ListByUser(ctx, user.ID)
	if len(files) != 0 {
		t.Fatalf("expected files removed with owner, got %d", len(files))
	}
}
