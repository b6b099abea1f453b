package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mycloud-app/mycloud/internal/services"
	"github.com/mycloud-app/mycloud/internal/storage"
	"github.com/mycloud-app/mycloud/internal/store"
	"github.com/mycloud-app/mycloud/types"
)

const testSecret = "test-secret"

type testAPI struct {
	srv *httptest.Server
	mem *store.Memory
}

func newTestAPI(t *testing.T, maxBytes int64) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	fileService := services.NewFileService(mem.Files(), storage.NewMemory("test"), nil, nil, "http://cloud.test", maxBytes)
	userService := services.NewUserService(mem.Users(), fileService, nil, nil)
	sessions := NewSessionStore(testSecret, false)
	auth := NewAuthHandler(userService, sessions, AuthConfig{JWTSecret: testSecret}, nil)
	files := NewFileHandler(fileService, nil)

	r := chi.NewRouter()
	r.Get("/media/*", files.Media)
	r.Route("/api", func(r chi.Router) {
		r.Get("/csrf/", sessions.CSRF)
		r.Route("/users", func(r chi.Router) { UserRouter(r, auth) })
		r.Route("/files", func(r chi.Router) { FileRouter(r, files, auth) })
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, mem: mem}
}

type call struct {
	method string
	path   string
	body   any
	token  string
	csrf   string
	client *http.Client
}

func (a *testAPI) do(t *testing.T, c call) *http.Response {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		data, _ := json.Marshal(c.body)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(c.method, a.srv.URL+c.path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set(csrfHeader, c.csrf)
	}
	client := c.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func (a *testAPI) register(t *testing.T, login string, admin bool) types.AuthResponse {
	t.Helper()
	resp := a.do(t, call{method: http.MethodPost, path: "/api/users/register/", body: types.Registration{
		Login: login, Fullname: "Test " + login, Email: login + "@example.com", Password: "Abc123!",
	}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", login, resp.StatusCode)
	}
	out := decode[types.AuthResponse](t, resp)
	if admin {
		u, err := a.mem.Users().GetByID(context.Background(), out.User.ID)
		if err != nil {
			t.Fatalf("load user: %v", err)
		}
		u.IsAdmin = true
		if _, err := a.mem.Users().Update(context.Background(), u); err != nil {
			t.Fatalf("promote: %v", err)
		}
		out.User.IsAdmin = true
	}
	return out
}

func (a *testAPI) upload(t *testing.T, token string, userID int, comment string, files map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = io.WriteString(fw, content)
	}
	if comment != "" {
		_ = mw.WriteField("comment", comment)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, a.srv.URL+"/api/files/"+strconv.Itoa(userID)+"/upload/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}


func TestRegisterLoginAndCheckAuth(t *testing.T) {
	api := newTestAPI(t, 0)
	reg := api.register(t, "jane1", false)
	if reg.Tokens == nil || reg.Tokens.Access == "" || reg.Message != "Registration successful" {
		t.Fatalf("unexpected register response %+v", reg)
	}

	resp := api.do(t, call{method: http.MethodPost, path: "/api/users/register/", body: types.Registration{
		Login: "jane1", Fullname: "Again", Email: "again@example.com", Password: "Abc123!",
	}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate login, got %d", resp.StatusCode)
	}

	resp = api.do(t, call{method: http.MethodPost, path: "/api/users/login/", body: types.Credentials{Login: "jane1", Password: "nope"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if msg := decode[MessageResponse](t, resp); msg.Message != "Invalid credentials" {
		t.Fatalf("unexpected message %q", msg.Message)
	}

	resp = api.do(t, call{method: http.MethodGet, path: "/api/users/check-auth/"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}

	resp = api.do(t, call{method: http.MethodGet, path: "/api/users/check-auth/", token: reg.Tokens.Refresh})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected refresh token to be rejected, got %d", resp.StatusCode)
	}

	resp = api.do(t, call{method: http.MethodGet, path: "/api/users/check-auth/", token: reg.Tokens.Access})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check-auth: status %d", resp.StatusCode)
	}
	if out := decode[types.AuthResponse](t, resp); out.User.Login != "jane1" || out.Message != "Authenticated" {
		t.Fatalf("unexpected check-auth response %+v", out)
	}
}

func TestSessionRequiresCSRF(t *testing.T) {
	api := newTestAPI(t, 0)
	api.register(t, "jane1", false)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}
	resp := api.do(t, call{method: http.MethodPost, path: "/api/users/login/", client: client,
		body: types.Credentials{Login: "jane1", Password: "Abc123!"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}

	resp = api.do(t, call{method: http.MethodGet, path: "/api/users/check-auth/", client: client})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session check-auth: status %d", resp.StatusCode)
	}

	name := "Jane Doe"
	resp = api.do(t, call{method: http.MethodPatch, path: "/api/users/update/", client: client,
		body: types.UserUpdate{Fullname: &name}})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", resp.StatusCode)
	}

	resp = api.do(t, call{method: http.MethodGet, path: "/api/csrf/", client: client})
	token := decode[map[string]string](t, resp)["csrfToken"]
	if token == "" {
		t.Fatalf("expected csrf token")
	}
	resp = api.do(t, call{method: http.MethodPatch, path: "/api/users/update/", client: client, csrf: token,
		body: types.UserUpdate{Fullname: &name}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update with csrf: status %d", resp.StatusCode)
	}
	if out := decode[types.UserResponse](t, resp); out.User.Fullname != "Jane Doe" {
		t.Fatalf("unexpected user %+v", out.User)
	}

	resp = api.do(t, call{method: http.MethodPost, path: "/api/users/logout/", client: client})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp = api.do(t, call{method: http.MethodGet, path: "/api/users/check-auth/", client: client})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestFileLifecycle(t *testing.T) {
	api := newTestAPI(t, 0)
	jane := api.register(t, "jane1", false)
	token := jane.Tokens.Access

	resp := api.upload(t, token, jane.User.ID, "shared", map[string]string{"a.txt": "alpha", "report.pdf": "pdf"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
	uploaded := decode[types.UploadResponse](t, resp)
	if len(uploaded.UploadedFiles) != 2 || uploaded.UploadedFiles[0].Comment != "shared" {
		t.Fatalf("unexpected upload response %+v", uploaded)
	}
	var txt types.File
	for _, f := range uploaded.UploadedFiles {
		if f.FileName == "a.txt" {
			txt = f
		}
	}

	resp = api.do(t, call{method: http.MethodGet, path: "/api/files/" + strconv.Itoa(jane.User.ID) + "/", token: token})
	if list := decode[[]types.File](t, resp); len(list) != 2 {
		t.Fatalf("expected two files, got %d", len(list))
	}

	resp = api.do(t, call{method: http.MethodGet, path: "/api/files/" + strconv.Itoa(txt.ID) + "/download/", token: token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: status %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="a.txt"` {
		t.Fatalf("unexpected content-disposition %q", cd)
	}
	if data, _ := io.ReadAll(resp.Body); string(data) != "alpha" {
		t.Fatalf("unexpected content %q", data)
	}

	resp = api.do(t, call{method: http.MethodPatch, path: "/api/files/" + strconv.Itoa(txt.ID) + "/update/", token: token,
		body: types.FileUpdate{NewName: "notes.txt"}})
	if renamed := decode[types.File](t, resp); renamed.FileName != "notes.txt" || renamed.LastDownloaded == "" {
		t.Fatalf("unexpected rename result %+v", renamed)
	}
	resp = api.do(t, call{method: http.MethodPatch, path: "/api/files/" + strconv.Itoa(txt.ID) + "/update/", token: token,
		body: map[string]string{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", resp.StatusCode)
	}

	resp = api.do(t, call{method: http.MethodGet, path: strings.TrimPrefix(txt.URL, "http://cloud.test")})
	if data, _ := io.ReadAll(resp.Body); string(data) != "alpha" {
		t.Fatalf("media: unexpected content %q", data)
	}

	bob := api.register(t, "bob123", false)
	resp = api.do(t, call{method: http.MethodGet, path: "/api/files/" + strconv.Itoa(jane.User.ID) + "/", token: bob.Tokens.Access})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 listing foreign files, got %d", resp.StatusCode)
	}
	resp = api.do(t, call{method: http.MethodGet, path: "/api/files/" + strconv.Itoa(txt.ID) + "/download/", token: bob.Tokens.Access})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 downloading foreign file, got %d", resp.StatusCode)
	}

	resp = api.do(t, call{method: http.MethodDelete,
		path: "/api/files/" + strconv.Itoa(jane.User.ID) + "/delete/" + strconv.Itoa(txt.ID) + "/", token: token})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
}

func TestUploadOverLimitIsPartial(t *testing.T) {
	api := newTestAPI(t, 4)
	jane := api.register(t, "jane1", false)

	resp := api.upload(t, jane.Tokens.Access, jane.User.ID, "", map[string]string{"ok.txt": "ok", "big.txt": "too big"})
	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", resp.StatusCode)
	}
	out := decode[types.UploadResponse](t, resp)
	if len(out.UploadedFiles) != 1 || len(out.Errors) != 1 {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestAdminUserRoutes(t *testing.T) {
	api := newTestAPI(t, 0)
	admin := api.register(t, "admin1", true)
	jane := api.register(t, "jane1", false)

	resp := api.do(t, call{method: http.MethodGet, path: "/api/users/", token: jane.Tokens.Access})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin list, got %d", resp.StatusCode)
	}
	resp = api.do(t, call{method: http.MethodGet, path: "/api/users/", token: admin.Tokens.Access})
	if list := decode[types.UserListResponse](t, resp); len(list.Users) != 2 {
		t.Fatalf("expected two users, got %+v", list)
	}

	resp = api.do(t, call{method: http.MethodDelete, path: "/api/users/" + strconv.Itoa(admin.User.ID) + "/", token: admin.Tokens.Access})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for self delete, got %d", resp.StatusCode)
	}
	resp = api.do(t, call{method: http.MethodDelete, path: "/api/users/9/", token: admin.Tokens.Access})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", resp.StatusCode)
	}
	resp = api.do(t, call{method: http.MethodDelete, path: "/api/users/" + strconv.Itoa(jane.User.ID) + "/", token: admin.Tokens.Access})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete user: status %d", resp.StatusCode)
	}
	resp = api.do(t, call{method: http.MethodGet, path: "/api/users/check-auth/", token: jane.Tokens.Access})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected deleted user's token to be rejected, got %d", resp.StatusCode)
	}
}
