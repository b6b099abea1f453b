package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/internal/services"
	"github.com/mycloud-app/mycloud/internal/store"
	"github.com/mycloud-app/mycloud/internal/validate"
	"github.com/mycloud-app/mycloud/types"
)

const (
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	tokenTypeAccess   = "access"
	tokenTypeRefresh  = "refresh"

	msgUnauthenticated = "Authentication credentials were not provided."
	msgCSRFFailed      = "CSRF Failed: CSRF token missing or incorrect."
)

// AuthConfig carries the secrets and limits of the account routes.
type AuthConfig struct {
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	LoginRateLimit int
}

// AuthHandler provides the account endpoints and the auth middleware.
type AuthHandler struct {
	userService *services.UserService
	sessions    *SessionStore
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	rateLimit   int
	logger      *zap.Logger
}

func NewAuthHandler(userService *services.UserService, sessions *SessionStore, cfg AuthConfig, logger *zap.Logger) *AuthHandler {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		userService: userService,
		sessions:    sessions,
		secret:      []byte(cfg.JWTSecret),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		rateLimit:   cfg.LoginRateLimit,
		logger:      logger,
	}
}

// UserRouter registers the /users routes.
func UserRouter(r chi.Router, h *AuthHandler) {
	r.Group(func(r chi.Router) {
		if h.rateLimit > 0 {
			r.Use(httprate.Limit(
				h.rateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
			))
		}
		r.Post("/register/", h.Register)
		r.Post("/login/", h.Login)
	})
	r.Post("/logout/", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate, h.RequireAuth)
		r.Get("/check-auth/", h.CheckAuth)
		r.Get("/", h.ListUsers)
		r.Patch("/update/", h.UpdateUser)
		r.Delete("/{userID}/", h.DeleteUser)
	})
}

// Authenticate resolves the caller from a bearer token or the session
// cookie and stores it in the context. Session-authenticated mutating
// requests must carry the CSRF header. Anonymous requests pass through;
// RequireAuth rejects them.
func (h *AuthHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID int
		if tokenString, err := bearerToken(r); err == nil {
			subject, err := parseTokenSubject(tokenString, h.secret, tokenTypeAccess)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "Given token not valid for any token type")
				return
			}
			userID, _ = strconv.Atoi(subject)
		} else if id := h.sessions.UserID(r); id > 0 {
			if isMutating(r.Method) && !h.sessions.CheckCSRF(r) {
				writeMessage(w, http.StatusForbidden, msgCSRFFailed)
				return
			}
			userID = id
		}

		if userID < 1 {
			next.ServeHTTP(w, r)
			return
		}
		user, err := h.userService.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeMessage(w, http.StatusUnauthorized, "User not found")
				return
			}
			writeMessage(w, http.StatusInternalServerError, "failed to load user")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// RequireAuth rejects anonymous requests. It expects Authenticate upstream.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(r.Context()); !ok {
			writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register creates an account, opens a session and returns tokens.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		h.writeUserError(w, err, "Registration failed")
		return
	}
	h.respondWithSession(w, r, http.StatusCreated, "Registration successful", user)
}

// Login verifies credentials, opens a session and returns tokens.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Login and password are required")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeMessage(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}
	h.respondWithSession(w, r, http.StatusOK, "Login successful", user)
}

// Logout ends the cookie session. Bearer tokens simply expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.logger.Warn("clear session failed", zap.Error(err))
	}
	writeMessage(w, http.StatusOK, "Logout successful")
}

func (h *AuthHandler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	writeJSON(w, http.StatusOK, types.AuthResponse{Message: "Authenticated", User: user})
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := currentUser(r.Context())
	users, err := h.userService.List(r.Context(), actor)
	if err != nil {
		h.writeUserError(w, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, types.UserListResponse{Users: users})
}

func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req types.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request")
		return
	}

	actor, _ := currentUser(r.Context())
	user, err := h.userService.Update(r.Context(), actor, req)
	if err != nil {
		h.writeUserError(w, err, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, types.UserResponse{User: user})
}

func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	actor, _ := currentUser(r.Context())
	if err := h.userService.Delete(r.Context(), actor, id); err != nil {
		h.writeUserError(w, err, "failed to delete user")
		return
	}
	h.logger.Info("user deleted", zap.Int("user_id", id), zap.Int("actor_id", actor.ID))
	writeMessage(w, http.StatusOK, "User deleted successfully")
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, message string, user types.User) {
	tokens, err := h.issueTokens(user.ID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	if err := h.sessions.Login(w, r, user.ID); err != nil {
		writeMessage(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, status, types.AuthResponse{Message: message, User: user, Tokens: &tokens})
}

func (h *AuthHandler) writeUserError(w http.ResponseWriter, err error, fallback string) {
	var verr *validate.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: verr.Error(), Errors: verr.Fields})
	case errors.Is(err, services.ErrLoginTaken),
		errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrNoChanges):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "You do not have permission to perform this action.")
	case errors.Is(err, services.ErrSelfDelete),
		errors.Is(err, services.ErrSelfDemote):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, fallback)
	}
}

// tokenClaims are the registered claims plus the token kind.
type tokenClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (h *AuthHandler) issueTokens(userID int) (types.Tokens, error) {
	access, err := issueToken(userID, h.secret, h.accessTTL, tokenTypeAccess)
	if err != nil {
		return types.Tokens{}, err
	}
	refresh, err := issueToken(userID, h.secret, h.refreshTTL, tokenTypeRefresh)
	if err != nil {
		return types.Tokens{}, err
	}
	return types.Tokens{Access: access, Refresh: refresh}, nil
}

func issueToken(userID int, secret []byte, ttl time.Duration, tokenType string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte, tokenType string) (string, error) {
	claims := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.TokenType != tokenType {
		return "", errors.New("wrong token type")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
