package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/mycloud-app/mycloud/internal/directory"
	"github.com/mycloud-app/mycloud/types"
)

type stubUsers struct{}

func (stubUsers) Get(ctx context.Context, path string, out any) error { return nil }

func (stubUsers) Delete(ctx context.Context, path string, out any) error { return nil }

type stubSession struct {
	current types.User
}

func (s stubSession) CurrentUser() *types.User { return &s.current }

func (s stubSession) UpdateUser(_ context.Context, update types.UserUpdate) (types.User, error) {
	return update.Apply(types.User{ID: *update.ID}), nil
}

func TestStageEditsRefusesOwnAdminFlag(t *testing.T) {
	dir := directory.New(stubUsers{}, stubSession{current: types.User{ID: 1, Login: "admin1", IsAdmin: true}}, nil)

	err := stageEdits(dir, 1, []string{"fullname=Boss", "is_admin=false"})
	if !errors.Is(err, errOwnAdminFlag) {
		t.Fatalf("expected own admin flag error, got %v", err)
	}
	if staged, _ := dir.Staged(1); staged.IsAdmin != nil {
		t.Fatalf("own admin flag must not be staged: %+v", staged)
	}

	if err := stageEdits(dir, 2, []string{"is_admin=true", "login=bob123"}); err != nil {
		t.Fatalf("stage edits: %v", err)
	}
	staged, ok := dir.Staged(2)
	if !ok || staged.IsAdmin == nil || !*staged.IsAdmin || staged.Login == nil || *staged.Login != "bob123" {
		t.Fatalf("unexpected staged edits %+v", staged)
	}

	if err := stageEdits(dir, 2, []string{"login"}); err == nil {
		t.Fatalf("expected malformed pair to fail")
	}
}
