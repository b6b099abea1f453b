// Package directory is the admin view of all accounts: the user list, staged
// per-row edits with field errors, saving and deleting.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/internal/apiclient"
	"github.com/mycloud-app/mycloud/internal/validate"
	"github.com/mycloud-app/mycloud/types"
)

// Field names a user column an admin can edit.
type Field string

const (
	FieldLogin    Field = "login"
	FieldFullname Field = "fullname"
	FieldEmail    Field = "email"
	FieldIsAdmin  Field = "is_admin"
)

// RowState is where a user row is in the edit cycle.
type RowState int

const (
	Viewing RowState = iota
	Editing
	EditingWithErrors
)

func (s RowState) String() string {
	switch s {
	case Editing:
		return "editing"
	case EditingWithErrors:
		return "editing (invalid)"
	default:
		return "viewing"
	}
}

const (
	msgFetchFailed  = "Failed to load users"
	msgDeleteFailed = "Failed to delete user"
	msgSaveFailed   = "Failed to update user"
)

// ErrUnknownField is returned by EditField for columns that cannot be edited.
var ErrUnknownField = errors.New("field cannot be edited")

// API is the subset of the API client the directory needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// Session provides the acting admin and the update call.
type Session interface {
	CurrentUser() *types.User
	UpdateUser(ctx context.Context, update types.UserUpdate) (types.User, error)
}

// Directory holds the admin user list and staged edits.
type Directory struct {
	api     API
	session Session
	logger  *zap.Logger

	mu      sync.RWMutex
	users   []types.User
	staged  map[int]types.UserUpdate
	errs    map[int]map[Field]string
	loading bool
	err     string
}

// New constructs a Directory.
func New(api API, session Session, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		api:     api,
		session: session,
		logger:  logger,
		staged:  make(map[int]types.UserUpdate),
		errs:    make(map[int]map[Field]string),
	}
}

// Users returns a copy of the list.
func (d *Directory) Users() []types.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.User, len(d.users))
	copy(out, d.users)
	return out
}

// User returns the row for userID.
func (d *Directory) User(userID int) (types.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i := d.index(userID)
	if i < 0 {
		return types.User{}, false
	}
	return d.users[i], true
}

// Loading reports whether a directory request is outstanding.
func (d *Directory) Loading() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loading
}

// Err returns the display string of the last directory failure.
func (d *Directory) Err() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// Staged returns the unsaved edits for userID.
func (d *Directory) Staged(userID int) (types.UserUpdate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.staged[userID]
	return u, ok
}

// FieldErrors returns the validation messages of userID's row.
func (d *Directory) FieldErrors(userID int) map[Field]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[Field]string, len(d.errs[userID]))
	for k, v := range d.errs[userID] {
		out[k] = v
	}
	return out
}

// RowState reports the edit state of userID's row.
func (d *Directory) RowState(userID int) RowState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case len(d.errs[userID]) > 0:
		return EditingWithErrors
	case hasStaged(d.staged, userID):
		return Editing
	default:
		return Viewing
	}
}

// CanDelete reports whether the acting admin may delete userID.
func (d *Directory) CanDelete(userID int) bool {
	return !d.isSelf(userID)
}

// CanToggleAdmin reports whether the acting admin may change userID's admin
// flag.
func (d *Directory) CanToggleAdmin(userID int) bool {
	return !d.isSelf(userID)
}

// Reset drops all state.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = nil
	d.staged = make(map[int]types.UserUpdate)
	d.errs = make(map[int]map[Field]string)
	d.loading = false
	d.err = ""
}

// FetchUsers loads every account.
func (d *Directory) FetchUsers(ctx context.Context) ([]types.User, error) {
	d.begin()
	var resp types.UserListResponse
	if err := d.api.Get(ctx, "users/", &resp); err != nil {
		d.fail(err, msgFetchFailed)
		return nil, err
	}

	d.mu.Lock()
	d.users = append([]types.User(nil), resp.Users...)
	d.loading = false
	d.mu.Unlock()
	return resp.Users, nil
}

// EditField stages value for field on userID's row. The acting admin's own
// admin flag cannot be staged; that call is a no-op.
func (d *Directory) EditField(userID int, field Field, value string) error {
	if field == FieldIsAdmin && d.isSelf(userID) {
		d.logger.Debug("ignoring admin flag edit on own row", zap.Int("user_id", userID))
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	update := d.staged[userID]
	switch field {
	case FieldLogin:
		update.Login = &value
	case FieldFullname:
		update.Fullname = &value
	case FieldEmail:
		update.Email = &value
	case FieldIsAdmin:
		flag, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("is_admin must be true or false: %w", err)
		}
		update.IsAdmin = &flag
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	d.staged[userID] = update
	delete(d.errs, userID)
	return nil
}

// SaveField validates the staged edits of userID and saves them. Invalid
// edits stay staged with per-field messages. Nothing staged is a no-op.
func (d *Directory) SaveField(ctx context.Context, userID int) error {
	d.mu.Lock()
	update, ok := d.staged[userID]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	delete(d.errs, userID)

	if fieldErrs := checkStaged(update); len(fieldErrs) > 0 {
		d.errs[userID] = fieldErrs
		d.mu.Unlock()
		return &validate.ValidationError{Fields: toStrings(fieldErrs)}
	}
	d.mu.Unlock()

	id := userID
	update.ID = &id
	d.begin()
	updated, err := d.session.UpdateUser(ctx, update)
	if err != nil {
		d.fail(err, msgSaveFailed)
		return err
	}

	d.mu.Lock()
	if i := d.index(userID); i >= 0 {
		files := d.users[i].Files
		d.users[i] = updated
		if updated.Files == nil {
			d.users[i].Files = files
		}
	}
	delete(d.staged, userID)
	delete(d.errs, userID)
	d.loading = false
	d.mu.Unlock()
	return nil
}

// DeleteUser removes userID. Deleting the acting admin is a no-op.
func (d *Directory) DeleteUser(ctx context.Context, userID int) error {
	if d.isSelf(userID) {
		d.logger.Debug("ignoring delete of own account", zap.Int("user_id", userID))
		return nil
	}

	d.begin()
	if err := d.api.Delete(ctx, fmt.Sprintf("users/%d/", userID), nil); err != nil {
		d.fail(err, msgDeleteFailed)
		return err
	}

	d.mu.Lock()
	if i := d.index(userID); i >= 0 {
		d.users = append(d.users[:i], d.users[i+1:]...)
	}
	delete(d.staged, userID)
	delete(d.errs, userID)
	d.loading = false
	d.mu.Unlock()
	return nil
}

// ForgetAvatar clears the avatar of userID's row if it equals url.
func (d *Directory) ForgetAvatar(userID int, url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.index(userID); i >= 0 && url != "" && d.users[i].Avatar == url {
		d.users[i].Avatar = ""
	}
}

func (d *Directory) isSelf(userID int) bool {
	current := d.session.CurrentUser()
	return current != nil && current.ID == userID
}

func (d *Directory) index(userID int) int {
	for i, u := range d.users {
		if u.ID == userID {
			return i
		}
	}
	return -1
}

func (d *Directory) begin() {
	d.mu.Lock()
	d.loading = true
	d.err = ""
	d.mu.Unlock()
}

func (d *Directory) fail(err error, fallback string) {
	d.mu.Lock()
	d.loading = false
	d.err = apiclient.Message(err, fallback)
	d.mu.Unlock()
}

// checkStaged applies the admin form rules. Password is not editable here.
func checkStaged(u types.UserUpdate) map[Field]string {
	errs := make(map[Field]string)
	if u.Login != nil && !validate.Login(*u.Login) {
		errs[FieldLogin] = validate.LoginMessage
	}
	if u.Email != nil && !validate.Email(strings.TrimSpace(*u.Email)) {
		errs[FieldEmail] = validate.EmailMessage
	}
	if u.Fullname != nil && !validate.Fullname(*u.Fullname) {
		errs[FieldFullname] = validate.FullnameMessage
	}
	return errs
}

func toStrings(errs map[Field]string) map[string]string {
	out := make(map[string]string, len(errs))
	for k, v := range errs {
		out[string(k)] = v
	}
	return out
}

func hasStaged(staged map[int]types.UserUpdate, userID int) bool {
	_, ok := staged[userID]
	return ok
}
