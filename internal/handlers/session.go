package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	sessionName     = "mycloud_session"
	sessionUserKey  = "user_id"
	sessionCSRFKey  = "csrf_token"
	csrfHeader      = "X-CSRFToken"
	sessionLifetime = 14 * 24 * time.Hour
)

// SessionStore keeps the logged-in user id and the CSRF token in a signed
// cookie.
type SessionStore struct {
	store *sessions.CookieStore
}

func NewSessionStore(secret string, secure bool) *SessionStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(int(sessionLifetime / time.Second))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return &SessionStore{store: store}
}

func (s *SessionStore) get(r *http.Request) *sessions.Session {
	// A cookie that fails to decode yields a fresh session; that is fine.
	sess, _ := s.store.Get(r, sessionName)
	return sess
}

// UserID returns the session user, or 0.
func (s *SessionStore) UserID(r *http.Request) int {
	id, _ := s.get(r).Values[sessionUserKey].(int)
	return id
}

// Login binds userID to the session.
func (s *SessionStore) Login(w http.ResponseWriter, r *http.Request, userID int) error {
	sess := s.get(r)
	sess.Values[sessionUserKey] = userID
	return sess.Save(r, w)
}

// Logout drops the session cookie.
func (s *SessionStore) Logout(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// CSRFToken returns the session's token, creating one if needed.
func (s *SessionStore) CSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	sess := s.get(r)
	if token, ok := sess.Values[sessionCSRFKey].(string); ok && token != "" {
		return token, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	sess.Values[sessionCSRFKey] = token
	return token, sess.Save(r, w)
}

// CheckCSRF compares the request header against the session token.
func (s *SessionStore) CheckCSRF(r *http.Request) bool {
	want, _ := s.get(r).Values[sessionCSRFKey].(string)
	got := r.Header.Get(csrfHeader)
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// CSRF answers GET /csrf/ with the session's token.
func (s *SessionStore) CSRF(w http.ResponseWriter, r *http.Request) {
	token, err := s.CSRFToken(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue csrf token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}
