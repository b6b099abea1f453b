// Package session owns the current user: registration, login, logout,
// restoring a saved session at startup and profile updates.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/internal/apiclient"
	"github.com/mycloud-app/mycloud/internal/credstore"
	"github.com/mycloud-app/mycloud/internal/validate"
	"github.com/mycloud-app/mycloud/types"
)

// Mode selects how credentials travel to the server.
type Mode string

const (
	// ModeBearer persists a token pair and sends the access token as a
	// bearer header.
	ModeBearer Mode = "bearer"
	// ModeCSRF relies on a session cookie plus a CSRF token fetched before
	// every mutating request.
	ModeCSRF Mode = "csrf"
)

// ParseMode validates a configured mode name.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeBearer:
		return ModeBearer, nil
	case ModeCSRF:
		return ModeCSRF, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q (want %q or %q)", raw, ModeBearer, ModeCSRF)
	}
}

const (
	pathRegister  = "users/register/"
	pathLogin     = "users/login/"
	pathLogout    = "users/logout/"
	pathCheckAuth = "users/check-auth/"
	pathUpdate    = "users/update/"
)

const (
	msgRegisterFailed = "Registration failed"
	msgLoginFailed    = "Login failed"
	msgUpdateFailed   = "Failed to update user"
	msgCheckFailed    = "Failed to restore session"
)

// API is the subset of the API client the session needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

// CookieClearer forgets session cookies on logout.
type CookieClearer interface {
	Clear(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	API     API
	Store   credstore.Store
	Mode    Mode
	Cookies CookieClearer
	Logger  *zap.Logger
	// Now is used for token expiry checks; defaults to time.Now.
	Now func() time.Time
}

// Manager is the single writer of persisted credential material.
type Manager struct {
	api     API
	store   credstore.Store
	mode    Mode
	cookies CookieClearer
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	current *types.User
	loading bool
	err     string
}

// New constructs a Manager.
func New(opts Options) (*Manager, error) {
	if opts.API == nil {
		return nil, errors.New("session: api client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("session: credential store is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeBearer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		api:     opts.API,
		store:   opts.Store,
		mode:    mode,
		cookies: opts.Cookies,
		logger:  logger,
		now:     now,
	}, nil
}

// Mode returns the active credential mode.
func (m *Manager) Mode() Mode {
	return m.mode
}

// CurrentUser returns a copy of the logged-in user, or nil.
func (m *Manager) CurrentUser() *types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	u := *m.current
	return &u
}

// Loading reports whether an auth request is outstanding.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Err returns the display string of the last auth failure.
func (m *Manager) Err() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Register validates the form locally, creates the account and logs in.
func (m *Manager) Register(ctx context.Context, reg types.Registration) (types.User, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Fullname = strings.TrimSpace(reg.Fullname)
	if err := validate.Registration(reg); err != nil {
		m.setErr(apiclient.Message(err, msgRegisterFailed))
		return types.User{}, err
	}

	m.begin()
	var resp types.AuthResponse
	err := m.api.Post(ctx, pathRegister, reg, &resp)
	if err != nil {
		m.fail(err, msgRegisterFailed)
		m.clearCurrent()
		return types.User{}, err
	}
	if err := m.persist(ctx, resp, false); err != nil {
		m.fail(err, msgRegisterFailed)
		return types.User{}, err
	}
	m.succeed(&resp.User)
	m.logger.Info("registered", zap.String("login", resp.User.Login), zap.Int("user_id", resp.User.ID))
	return resp.User, nil
}

// Login exchanges credentials for a session.
func (m *Manager) Login(ctx context.Context, login, password string) (types.User, error) {
	m.begin()
	var resp types.AuthResponse
	err := m.api.Post(ctx, pathLogin, types.Credentials{Login: strings.TrimSpace(login), Password: password}, &resp)
	if err != nil {
		m.fail(err, msgLoginFailed)
		return types.User{}, err
	}
	if err := m.persist(ctx, resp, m.mode == ModeBearer); err != nil {
		m.fail(err, msgLoginFailed)
		return types.User{}, err
	}
	m.succeed(&resp.User)
	m.logger.Info("logged in", zap.String("login", resp.User.Login), zap.Int("user_id", resp.User.ID))
	return resp.User, nil
}

// Logout tells the server (best effort) and clears every piece of local
// credential material.
func (m *Manager) Logout(ctx context.Context) error {
	if m.CurrentUser() != nil {
		if err := m.api.Post(ctx, pathLogout, nil, nil); err != nil {
			m.logger.Debug("server logout failed", zap.Error(err))
		}
	}

	err := m.clearCredentials(ctx)
	m.mu.Lock()
	m.current = nil
	m.err = ""
	m.loading = false
	m.mu.Unlock()
	return err
}

// CheckAuth restores a saved session. It returns nil when there is none or
// the server no longer accepts it.
func (m *Manager) CheckAuth(ctx context.Context) (*types.User, error) {
	if m.mode == ModeBearer {
		token, err := credstore.Lookup(ctx, m.store, credstore.KeyAccessToken)
		if err != nil {
			return nil, err
		}
		if token == "" || m.tokenExpired(token) {
			return nil, m.Logout(ctx)
		}
	}

	if cached, err := m.cachedUser(ctx); err != nil {
		m.logger.Debug("ignoring unreadable cached user", zap.Error(err))
	} else if cached != nil {
		m.mu.Lock()
		m.current = cached
		m.mu.Unlock()
	}

	m.begin()
	var resp types.AuthResponse
	if err := m.api.Get(ctx, pathCheckAuth, &resp); err != nil {
		if apiclient.IsAuth(err) {
			m.finish()
			return nil, m.Logout(ctx)
		}
		m.fail(err, msgCheckFailed)
		return m.CurrentUser(), err
	}
	if err := m.cacheUser(ctx, resp.User); err != nil {
		m.fail(err, msgCheckFailed)
		return nil, err
	}
	m.succeed(&resp.User)
	return m.CurrentUser(), nil
}

// UpdateUser validates and sends a partial update. The answer is merged into
// the current user when it targets them.
func (m *Manager) UpdateUser(ctx context.Context, update types.UserUpdate) (types.User, error) {
	if err := validate.Update(update); err != nil {
		m.setErr(apiclient.Message(err, msgUpdateFailed))
		return types.User{}, err
	}

	m.begin()
	var resp types.UserResponse
	if err := m.api.Patch(ctx, pathUpdate, update, &resp); err != nil {
		m.fail(err, msgUpdateFailed)
		return types.User{}, err
	}

	current := m.CurrentUser()
	if current != nil && current.ID == resp.User.ID {
		if err := m.cacheUser(ctx, resp.User); err != nil {
			m.fail(err, msgUpdateFailed)
			return types.User{}, err
		}
		m.succeed(&resp.User)
	} else {
		m.finish()
	}
	return resp.User, nil
}

// ForgetAvatar clears the current user's avatar locally if it equals url.
// The server clears its copy when the avatar file is deleted.
func (m *Manager) ForgetAvatar(ctx context.Context, url string) error {
	m.mu.Lock()
	if m.current == nil || url == "" || m.current.Avatar != url {
		m.mu.Unlock()
		return nil
	}
	m.current.Avatar = ""
	user := *m.current
	m.mu.Unlock()
	return m.cacheUser(ctx, user)
}

func (m *Manager) persist(ctx context.Context, resp types.AuthResponse, requireTokens bool) error {
	if m.mode == ModeBearer {
		if resp.Tokens == nil || resp.Tokens.Access == "" {
			if requireTokens {
				return errors.New("server response did not include tokens")
			}
		} else {
			if err := m.store.Set(ctx, credstore.KeyAccessToken, resp.Tokens.Access); err != nil {
				return fmt.Errorf("save access token: %w", err)
			}
			if err := m.store.Set(ctx, credstore.KeyRefreshToken, resp.Tokens.Refresh); err != nil {
				return fmt.Errorf("save refresh token: %w", err)
			}
		}
	}
	return m.cacheUser(ctx, resp.User)
}

func (m *Manager) cacheUser(ctx context.Context, user types.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, credstore.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("save current user: %w", err)
	}
	return nil
}

func (m *Manager) cachedUser(ctx context.Context) (*types.User, error) {
	raw, err := credstore.Lookup(ctx, m.store, credstore.KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var user types.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (m *Manager) clearCredentials(ctx context.Context) error {
	var errs []error
	if err := m.store.Delete(ctx, credstore.SessionKeys...); err != nil {
		errs = append(errs, err)
	}
	if m.cookies != nil {
		if err := m.cookies.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// tokenExpired reads the exp claim without verifying the signature; the
// server remains the authority, this only avoids a doomed round trip.
func (m *Manager) tokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(m.now())
}

func (m *Manager) begin() {
	m.mu.Lock()
	m.loading = true
	m.err = ""
	m.mu.Unlock()
}

func (m *Manager) finish() {
	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()
}

func (m *Manager) succeed(user *types.User) {
	u := *user
	m.mu.Lock()
	m.current = &u
	m.loading = false
	m.err = ""
	m.mu.Unlock()
}

func (m *Manager) fail(err error, fallback string) {
	m.mu.Lock()
	m.loading = false
	m.err = apiclient.Message(err, fallback)
	m.mu.Unlock()
}

func (m *Manager) setErr(msg string) {
	m.mu.Lock()
	m.err = msg
	m.mu.Unlock()
}

func (m *Manager) clearCurrent() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}
