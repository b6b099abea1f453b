package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mycloud-app/mycloud/internal/apiclient"
	"github.com/mycloud-app/mycloud/internal/credstore"
	"github.com/mycloud-app/mycloud/internal/validate"
	"github.com/mycloud-app/mycloud/types"
)

type fakeBackend struct {
	requests atomic.Int32
	user     types.User
	token    string
	authOK   bool
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.requests.Add(1)
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register/", func(w http.ResponseWriter, r *http.Request) {
			var reg types.Registration
			_ = json.NewDecoder(r.Body).Decode(&reg)
			if reg.Login == f.user.Login {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "login already exists"})
				return
			}
			f.user = types.User{ID: 2, Login: reg.Login, Fullname: reg.Fullname, Email: reg.Email}
			writeJSON(w, http.StatusCreated, types.AuthResponse{
				Message: "Registration successful",
				User:    f.user,
				Tokens:  &types.Tokens{Access: f.token, Refresh: "refresh-" + reg.Login},
			})
		})
		r.Post("/login/", func(w http.ResponseWriter, r *http.Request) {
			var creds types.Credentials
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds.Login != f.user.Login || creds.Password != "Abc123!" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
				return
			}
			writeJSON(w, http.StatusOK, types.AuthResponse{
				User:   f.user,
				Tokens: &types.Tokens{Access: f.token, Refresh: "refresh"},
			})
		})
		r.Post("/logout/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful."})
		})
		r.Get("/check-auth/", func(w http.ResponseWriter, r *http.Request) {
			if !f.authOK || r.Header.Get("Authorization") != "Bearer "+f.token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
				return
			}
			writeJSON(w, http.StatusOK, types.AuthResponse{Message: "Authenticated", User: f.user})
		})
		r.Patch("/update/", func(w http.ResponseWriter, r *http.Request) {
			var upd types.UserUpdate
			_ = json.NewDecoder(r.Body).Decode(&upd)
			target := f.user
			if upd.ID != nil && *upd.ID != f.user.ID {
				target = types.User{ID: *upd.ID, Login: "other1"}
			}
			target = upd.Apply(target)
			if target.ID == f.user.ID {
				f.user = target
			}
			writeJSON(w, http.StatusOK, types.UserResponse{User: target})
		})
	})
	return r
}

func newManager(t *testing.T, f *fakeBackend) (*Manager, *credstore.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)

	store := credstore.NewMemoryStore()
	client, err := apiclient.New(apiclient.Options{
		BaseURL: srv.URL + "/api/",
		Auth:    apiclient.BearerAuth{Tokens: apiclient.StoredToken{Store: store}},
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	m, err := New(Options{API: client, Store: store, Mode: ModeBearer})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m, store
}

func TestRegisterRejectsShortLoginWithoutNetwork(t *testing.T) {
	f := &fakeBackend{}
	m, _ := newManager(t, f)

	_, err := m.Register(context.Background(), types.Registration{
		Login: "ab1", Fullname: "Ann", Email: "ann@example.com", Password: "Abc123!",
	})
	var verr *validate.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Message(validate.FieldLogin) != validate.LoginMessage {
		t.Fatalf("unexpected login message %q", verr.Message(validate.FieldLogin))
	}
	if n := f.requests.Load(); n != 0 {
		t.Fatalf("expected no network calls, got %d", n)
	}
	if m.CurrentUser() != nil {
		t.Fatalf("expected no current user")
	}
}

func TestRegisterRejectsPaddedLoginWithoutNetwork(t *testing.T) {
	f := &fakeBackend{}
	m, _ := newManager(t, f)

	_, err := m.Register(context.Background(), types.Registration{
		Login: " abcd", Fullname: "Ann", Email: "ann@example.com", Password: "Abc123!",
	})
	var verr *validate.ValidationError
	if !errors.As(err, &verr) || verr.Message(validate.FieldLogin) != validate.LoginMessage {
		t.Fatalf("expected login ValidationError, got %v", err)
	}
	if n := f.requests.Load(); n != 0 {
		t.Fatalf("expected no network calls, got %d", n)
	}
	if m.Err() == "" {
		t.Fatalf("expected the validation failure to be recorded")
	}
}

func TestRegisterPersistsCredentials(t *testing.T) {
	f := &fakeBackend{token: signedToken(t, time.Now().Add(time.Hour))}
	m, store := newManager(t, f)
	ctx := context.Background()

	user, err := m.Register(ctx, types.Registration{
		Login: "annie1", Fullname: "Ann", Email: "ann@example.com", Password: "Abc123!",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Login != "annie1" || m.CurrentUser() == nil || m.CurrentUser().ID != user.ID {
		t.Fatalf("unexpected current user %+v", m.CurrentUser())
	}
	for _, key := range []string{credstore.KeyAccessToken, credstore.KeyRefreshToken, credstore.KeyUser} {
		if v, _ := credstore.Lookup(ctx, store, key); v == "" {
			t.Fatalf("expected %s to be stored", key)
		}
	}
	if m.Loading() {
		t.Fatalf("expected loading to be cleared")
	}
}

func TestLoginFailureSetsAuthError(t *testing.T) {
	f := &fakeBackend{user: types.User{ID: 1, Login: "jane1"}, token: "tok"}
	m, store := newManager(t, f)

	_, err := m.Login(context.Background(), "jane1", "wrong")
	if !apiclient.IsAuth(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if m.Err() != "Invalid credentials" {
		t.Fatalf("unexpected error string %q", m.Err())
	}
	if v, _ := credstore.Lookup(context.Background(), store, credstore.KeyAccessToken); v != "" {
		t.Fatalf("expected no token stored")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	f := &fakeBackend{user: types.User{ID: 1, Login: "jane1"}, token: signedToken(t, time.Now().Add(time.Hour))}
	m, store := newManager(t, f)
	ctx := context.Background()

	if _, err := m.Login(ctx, "jane1", "Abc123!"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	for _, key := range []string{credstore.KeyAccessToken, credstore.KeyRefreshToken, credstore.KeyUser} {
		if _, err := store.Get(ctx, key); !errors.Is(err, credstore.ErrNotFound) {
			t.Fatalf("expected %s to be absent, got %v", key, err)
		}
	}
	if m.CurrentUser() != nil {
		t.Fatalf("expected current user to be absent")
	}
}

func TestCheckAuthRestoresSession(t *testing.T) {
	f := &fakeBackend{user: types.User{ID: 1, Login: "jane1"}, token: signedToken(t, time.Now().Add(time.Hour)), authOK: true}
	m, _ := newManager(t, f)
	ctx := context.Background()

	if _, err := m.Login(ctx, "jane1", "Abc123!"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// A fresh manager over the same store simulates a restart.
	restarted, err := New(Options{API: m.api, Store: m.store, Mode: ModeBearer})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	user, err := restarted.CheckAuth(ctx)
	if err != nil {
		t.Fatalf("check auth: %v", err)
	}
	if user == nil || user.Login != "jane1" {
		t.Fatalf("unexpected restored user %+v", user)
	}
}

func TestCheckAuthDropsRejectedSession(t *testing.T) {
	f := &fakeBackend{user: types.User{ID: 1, Login: "jane1"}, token: signedToken(t, time.Now().Add(time.Hour))}
	m, store := newManager(t, f)
	ctx := context.Background()

	if _, err := m.Login(ctx, "jane1", "Abc123!"); err != nil {
		t.Fatalf("login: %v", err)
	}
	user, err := m.CheckAuth(ctx)
	if err != nil || user != nil {
		t.Fatalf("expected no user and no error, got %+v %v", user, err)
	}
	if v, _ := credstore.Lookup(ctx, store, credstore.KeyAccessToken); v != "" {
		t.Fatalf("expected token to be cleared")
	}
}

func TestCheckAuthSkipsNetworkForExpiredToken(t *testing.T) {
	f := &fakeBackend{authOK: true}
	m, store := newManager(t, f)
	ctx := context.Background()
	_ = store.Set(ctx, credstore.KeyAccessToken, signedToken(t, time.Now().Add(-time.Minute)))
	_ = store.Set(ctx, credstore.KeyUser, `{"id":1,"login":"jane1"}`)

	user, err := m.CheckAuth(ctx)
	if err != nil || user != nil {
		t.Fatalf("expected no user, got %+v %v", user, err)
	}
	if n := f.requests.Load(); n != 0 {
		t.Fatalf("expected no network calls, got %d", n)
	}
	if v, _ := credstore.Lookup(ctx, store, credstore.KeyUser); v != "" {
		t.Fatalf("expected cached user to be cleared")
	}
}

func TestUpdateUserMergesCurrentUser(t *testing.T) {
	f := &fakeBackend{user: types.User{ID: 1, Login: "jane1", Fullname: "Jane"}, token: "tok"}
	m, _ := newManager(t, f)
	ctx := context.Background()
	if _, err := m.Login(ctx, "jane1", "Abc123!"); err != nil {
		t.Fatalf("login: %v", err)
	}

	name := "Jane Doe"
	updated, err := m.UpdateUser(ctx, types.UserUpdate{Fullname: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Fullname != "Jane Doe" || m.CurrentUser().Fullname != "Jane Doe" {
		t.Fatalf("expected merged fullname, got %+v", m.CurrentUser())
	}

	// Updating someone else leaves the current user alone.
	otherID := 5
	otherName := "Other"
	if _, err := m.UpdateUser(ctx, types.UserUpdate{ID: &otherID, Fullname: &otherName}); err != nil {
		t.Fatalf("update other: %v", err)
	}
	if m.CurrentUser().Fullname != "Jane Doe" {
		t.Fatalf("current user changed: %+v", m.CurrentUser())
	}

	bad := "not-an-email"
	before := f.requests.Load()
	if _, err := m.UpdateUser(ctx, types.UserUpdate{Email: &bad}); err == nil {
		t.Fatalf("expected validation error")
	}
	if f.requests.Load() != before {
		t.Fatalf("expected no network call for invalid update")
	}
}

func TestForgetAvatar(t *testing.T) {
	f := &fakeBackend{user: types.User{ID: 1, Login: "jane1", Avatar: "http://x/media/a.png"}, token: "tok"}
	m, _ := newManager(t, f)
	ctx := context.Background()
	if _, err := m.Login(ctx, "jane1", "Abc123!"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := m.ForgetAvatar(ctx, "http://x/media/other.png"); err != nil || m.CurrentUser().Avatar == "" {
		t.Fatalf("unrelated url must not clear avatar")
	}
	if err := m.ForgetAvatar(ctx, "http://x/media/a.png"); err != nil {
		t.Fatalf("forget avatar: %v", err)
	}
	if m.CurrentUser().Avatar != "" {
		t.Fatalf("expected avatar to be cleared")
	}
}

func TestParseMode(t *testing.T) {
	if mode, err := ParseMode(""); err != nil || mode != ModeBearer {
		t.Fatalf("unexpected default mode %q %v", mode, err)
	}
	if mode, err := ParseMode("CSRF"); err != nil || mode != ModeCSRF {
		t.Fatalf("unexpected csrf mode %q %v", mode, err)
	}
	if _, err := ParseMode("basic"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}

// blockingAPI holds every request until release is closed.
type blockingAPI struct {
	started chan string
	release chan struct{}
	user    types.User
}

func (b *blockingAPI) wait(path string) {
	b.started <- path
	<-b.release
}

func (b *blockingAPI) Get(ctx context.Context, path string, out any) error {
	b.wait(path)
	*(out.(*types.AuthResponse)) = types.AuthResponse{User: b.user}
	return nil
}

func (b *blockingAPI) Post(ctx context.Context, path string, body, out any) error {
	b.wait(path)
	if resp, ok := out.(*types.AuthResponse); ok {
		*resp = types.AuthResponse{User: b.user}
	}
	return nil
}

func (b *blockingAPI) Patch(ctx context.Context, path string, body, out any) error {
	b.wait(path)
	*(out.(*types.UserResponse)) = types.UserResponse{User: b.user}
	return nil
}

func TestLoadingWhileLoginInFlight(t *testing.T) {
	api := &blockingAPI{
		started: make(chan string),
		release: make(chan struct{}),
		user:    types.User{ID: 3, Login: "annie1"},
	}
	m, err := New(Options{API: api, Store: credstore.NewMemoryStore(), Mode: ModeCSRF})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), "annie1", "Abc123!")
		done <- err
	}()

	if path := <-api.started; path != pathLogin {
		t.Fatalf("unexpected request %q", path)
	}
	if !m.Loading() {
		t.Fatalf("expected loading while login is in flight")
	}
	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("login: %v", err)
	}
	if m.Loading() {
		t.Fatalf("expected loading to be cleared after login")
	}
	if m.CurrentUser() == nil || m.CurrentUser().ID != 3 {
		t.Fatalf("unexpected current user %+v", m.CurrentUser())
	}
}
