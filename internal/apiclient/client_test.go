package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mycloud-app/mycloud/internal/credstore"
)

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func newTestClient(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.BaseURL = srv.URL + "/api/"
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestURLJoinsUnderBase(t *testing.T) {
	c, err := New(Options{BaseURL: "http://localhost:8000/api/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	for path, want := range map[string]string{
		"users/login/": "http://localhost:8000/api/users/login/",
		"/files/7/":    "http://localhost:8000/api/files/7/",
	} {
		if got := c.URL(path); got != want {
			t.Fatalf("URL(%q) = %q, want %q", path, got, want)
		}
	}

	if _, err := New(Options{BaseURL: "localhost:8000"}); err == nil {
		t.Fatalf("expected relative base url to be rejected")
	}
}

func TestBearerAuthAttachesStoredToken(t *testing.T) {
	var seen []string
	r := chi.NewRouter()
	r.Get("/api/users/check-auth/", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	store := credstore.NewMemoryStore()
	c := newTestClient(t, srv, Options{Auth: BearerAuth{Tokens: StoredToken{Store: store}}})
	ctx := context.Background()

	if err := c.Get(ctx, "users/check-auth/", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = store.Set(ctx, credstore.KeyAccessToken, "tok-1")
	if err := c.Get(ctx, "users/check-auth/", nil); err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(seen) != 2 || seen[0] != "" || seen[1] != "Bearer tok-1" {
		t.Fatalf("unexpected authorization headers: %q", seen)
	}
}

func TestCSRFAuthFetchesTokenBeforeMutations(t *testing.T) {
	var csrfFetches int
	var patchHeader string
	var patchCookie bool

	r := chi.NewRouter()
	r.Get("/api/csrf/", func(w http.ResponseWriter, r *http.Request) {
		csrfFetches++
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s1", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": "csrf-1"})
	})
	r.Get("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"users": []any{}})
	})
	r.Patch("/api/users/update/", func(w http.ResponseWriter, r *http.Request) {
		patchHeader = r.Header.Get(CSRFHeader)
		_, err := r.Cookie("sessionid")
		patchCookie = err == nil
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 1}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx := context.Background()
	jar, err := NewPersistentJar(ctx, credstore.NewMemoryStore(), srv.URL+"/api/")
	if err != nil {
		t.Fatalf("jar: %v", err)
	}
	c := newTestClient(t, srv, Options{Auth: CSRFAuth{}, Jar: jar})

	if err := c.Get(ctx, "users/", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if csrfFetches != 0 {
		t.Fatalf("expected no csrf fetch for GET, got %d", csrfFetches)
	}

	if err := c.Patch(ctx, "users/update/", map[string]string{"fullname": "x"}, nil); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if csrfFetches != 1 {
		t.Fatalf("expected one csrf fetch, got %d", csrfFetches)
	}
	if patchHeader != "csrf-1" {
		t.Fatalf("unexpected csrf header %q", patchHeader)
	}
	if !patchCookie {
		t.Fatalf("expected session cookie on mutating request")
	}
}

func TestErrorMapping(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/users/login/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
	})
	r.Get("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin access required"})
	})
	r.Post("/api/users/register/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "login already exists"})
	})
	r.Get("/api/boom/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(r)
	c := newTestClient(t, srv, Options{})
	ctx := context.Background()

	err := c.Post(ctx, "users/login/", map[string]string{}, nil)
	var aerr *AuthError
	if !errors.As(err, &aerr) || aerr.Message != "Invalid credentials" {
		t.Fatalf("expected AuthError with message, got %v", err)
	}

	err = c.Get(ctx, "users/", nil)
	if !IsAuth(err) || Message(err, "fallback") != "admin access required" {
		t.Fatalf("expected 403 AuthError, got %v", err)
	}

	err = c.Post(ctx, "users/register/", map[string]string{}, nil)
	var serr *ServerError
	if !errors.As(err, &serr) || serr.Status != http.StatusBadRequest || serr.Message != "login already exists" {
		t.Fatalf("expected ServerError, got %v", err)
	}

	err = c.Get(ctx, "boom/", nil)
	if Message(err, "Something went wrong") != "Something went wrong" {
		t.Fatalf("expected fallback message, got %q", Message(err, "Something went wrong"))
	}

	srv.Close()
	err = c.Get(ctx, "users/", nil)
	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !strings.HasPrefix(Message(err, ""), "Network error") {
		t.Fatalf("unexpected network message %q", Message(err, ""))
	}
}

func TestPostMultipartSendsRepeatedFiles(t *testing.T) {
	var names []string
	var types []string
	var comment string

	r := chi.NewRouter()
	r.Post("/api/files/7/upload/", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		for _, fh := range r.MultipartForm.File["file"] {
			names = append(names, fh.Filename)
			types = append(types, fh.Header.Get("Content-Type"))
		}
		comment = r.FormValue("comment")
		writeJSON(w, http.StatusCreated, map[string]any{"uploaded_files": []any{}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := newTestClient(t, srv, Options{})
	uploads := []Upload{
		{Name: "a.txt", ContentType: "text/plain", Content: strings.NewReader("aaa")},
		{Name: `we"ird.bin`, Content: strings.NewReader("bbb")},
	}
	if err := c.PostMultipart(context.Background(), "/files/7/upload/", map[string]string{"comment": "shared"}, uploads, nil); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if len(names) != 2 || names[0] != "a.txt" || names[1] != `we"ird.bin` {
		t.Fatalf("unexpected file names %q", names)
	}
	if types[0] != "text/plain" || types[1] != "application/octet-stream" {
		t.Fatalf("unexpected content types %q", types)
	}
	if comment != "shared" {
		t.Fatalf("unexpected comment %q", comment)
	}
}

func TestDownloadReadsDisposition(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/files/{id}/download/", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "1" {
			w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := newTestClient(t, srv, Options{})

	dl, err := c.Download(context.Background(), "/files/1/download/")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(dl.Body)
	_ = dl.Body.Close()
	if dl.Filename != "report.pdf" || string(body) != "%PDF" {
		t.Fatalf("unexpected download %q %q", dl.Filename, body)
	}

	dl, err = c.Download(context.Background(), "/files/2/download/")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	_ = dl.Body.Close()
	if dl.Filename != "" {
		t.Fatalf("expected no filename, got %q", dl.Filename)
	}
}

func TestFilenameFromDispositionFallback(t *testing.T) {
	if got := filenameFromDisposition(`attachment; filename=my report.txt`); got != "my report.txt" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestPersistentJarRestoresAndClears(t *testing.T) {
	ctx := context.Background()
	store := credstore.NewMemoryStore()
	base := "http://cloud.test/api/"

	jar, err := NewPersistentJar(ctx, store, base)
	if err != nil {
		t.Fatalf("jar: %v", err)
	}
	u := jar.base
	jar.SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: "abc", Path: "/"}})

	restored, err := NewPersistentJar(ctx, store, base)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	cookies := restored.Cookies(u)
	if len(cookies) != 1 || cookies[0].Value != "abc" {
		t.Fatalf("unexpected restored cookies %v", cookies)
	}

	if err := restored.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(restored.Cookies(u)) != 0 {
		t.Fatalf("expected no cookies after clear")
	}
	if v, _ := credstore.Lookup(ctx, store, credstore.KeySessionCookies); v != "" {
		t.Fatalf("expected saved cookies to be removed, got %q", v)
	}
}
