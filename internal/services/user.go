package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mycloud-app/mycloud/internal/mq"
	"github.com/mycloud-app/mycloud/internal/store"
	"github.com/mycloud-app/mycloud/internal/validate"
	"github.com/mycloud-app/mycloud/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByLogin(ctx context.Context, login string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo   UserRepository
	files  *FileService
	events *mq.MQ
	logger *zap.Logger
}

func NewUserService(repo UserRepository, files *FileService, events *mq.MQ, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, files: files, events: events, logger: logger}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Register validates and creates a regular account.
func (s *UserService) Register(ctx context.Context, reg types.Registration) (types.User, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Fullname = strings.TrimSpace(reg.Fullname)
	if err := validate.Registration(reg); err != nil {
		return types.User{}, err
	}
	if err := s.checkUnique(ctx, 0, &reg.Login, &reg.Email); err != nil {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Login:        reg.Login,
		Fullname:     reg.Fullname,
		Email:        reg.Email,
		PasswordHash: string(hashed),
	})
	if errors.Is(err, store.ErrConflict) {
		return types.User{}, ErrLoginTaken
	}
	return user, err
}

// Authenticate checks a login and password pair.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (types.User, error) {
	user, err := s.repo.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// List returns every account with its files. Admin only.
func (s *UserService) List(ctx context.Context, actor types.User) ([]types.User, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.files.AllByOwner(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Files = files[users[i].ID]
		if users[i].Files == nil {
			users[i].Files = []types.File{}
		}
	}
	return users, nil
}

// Update applies a partial change to the actor or, for admins, to the
// account named by upd.ID.
func (s *UserService) Update(ctx context.Context, actor types.User, upd types.UserUpdate) (types.User, error) {
	targetID := actor.ID
	if upd.ID != nil {
		targetID = *upd.ID
	}
	if targetID != actor.ID && !actor.IsAdmin {
		return types.User{}, ErrForbidden
	}
	if upd.IsAdmin != nil && !actor.IsAdmin {
		return types.User{}, ErrForbidden
	}
	if targetID == actor.ID && upd.IsAdmin != nil && !*upd.IsAdmin && actor.IsAdmin {
		return types.User{}, ErrSelfDemote
	}
	if upd.Empty() {
		return types.User{}, ErrNoChanges
	}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(*upd.Email)
		upd.Email = &trimmed
	}
	if err := validate.Update(upd); err != nil {
		return types.User{}, err
	}

	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return types.User{}, err
	}
	if err := s.checkUnique(ctx, target.ID, upd.Login, upd.Email); err != nil {
		return types.User{}, err
	}

	updated := upd.Apply(target)
	if upd.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return types.User{}, err
		}
		updated.PasswordHash = string(hashed)
	}

	saved, err := s.repo.Update(ctx, updated)
	if errors.Is(err, store.ErrConflict) {
		return types.User{}, ErrLoginTaken
	}
	return saved, err
}

// Delete removes an account and its stored objects. Admins only, never
// themselves.
func (s *UserService) Delete(ctx context.Context, actor types.User, id int) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	if actor.ID == id {
		return ErrSelfDelete
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	keys, err := s.files.ObjectKeys(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.files.RemoveObjects(ctx, keys)

	if err := s.events.PublishEvent(ctx, mq.Event{Type: mq.EventUserDeleted, UserID: id, ActorID: actor.ID}); err != nil {
		s.logger.Warn("publish event failed", zap.String("event", mq.EventUserDeleted), zap.Error(err))
	}
	return nil
}

func (s *UserService) checkUnique(ctx context.Context, selfID int, login, email *string) error {
	if login != nil {
		existing, err := s.repo.GetByLogin(ctx, *login)
		if err == nil && existing.ID != selfID {
			return ErrLoginTaken
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if email != nil {
		existing, err := s.repo.GetByEmail(ctx, *email)
		if err == nil && existing.ID != selfID {
			return ErrEmailTaken
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}
