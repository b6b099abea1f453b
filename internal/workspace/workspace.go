// Package workspace turns user intents into calls on the session, file and
// directory stores, and wires those stores to one API client.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/internal/apiclient"
	"github.com/mycloud-app/mycloud/internal/credstore"
	"github.com/mycloud-app/mycloud/internal/directory"
	"github.com/mycloud-app/mycloud/internal/files"
	"github.com/mycloud-app/mycloud/internal/session"
	"github.com/mycloud-app/mycloud/types"
)

var (
	// ErrNotLoggedIn is returned by intents that need a current user.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrNotAdmin is returned by admin-only intents.
	ErrNotAdmin = errors.New("admin rights required")
	// ErrNotImage is returned by SetAvatar for non-image files.
	ErrNotImage = errors.New("avatar must be an image")
)

const sniffLen = 512

// Options configures Open.
type Options struct {
	APIURL string
	Mode   session.Mode
	// StatePath is the SQLite credential database. Empty keeps credentials
	// in memory for the life of the process.
	StatePath   string
	DownloadDir string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Workspace groups the client stores.
type Workspace struct {
	Session   *session.Manager
	Files     *files.Store
	Directory *directory.Directory

	store  credstore.Store
	logger *zap.Logger
}

// Open builds the credential store, API client and stores.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var store credstore.Store
	if opts.StatePath != "" {
		s, err := credstore.OpenSQLite(ctx, opts.StatePath)
		if err != nil {
			return nil, err
		}
		store = s
	} else {
		store = credstore.NewMemoryStore()
	}

	// Exactly one credential model is active: bearer mode keeps no cookies,
	// so a session cookie the server sets on login is never stored or sent.
	var (
		auth    apiclient.Authenticator
		jar     http.CookieJar
		cookies session.CookieClearer
	)
	switch opts.Mode {
	case session.ModeCSRF:
		persistent, err := apiclient.NewPersistentJar(ctx, store, opts.APIURL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		auth, jar, cookies = apiclient.CSRFAuth{}, persistent, persistent
	default:
		auth = apiclient.BearerAuth{Tokens: apiclient.StoredToken{Store: store}}
	}

	client, err := apiclient.New(apiclient.Options{
		BaseURL: opts.APIURL,
		Timeout: opts.Timeout,
		Auth:    auth,
		Jar:     jar,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sess, err := session.New(session.Options{
		API:     client,
		Store:   store,
		Mode:    opts.Mode,
		Cookies: cookies,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Workspace{
		Session:   sess,
		Files:     files.New(client, files.DirSaver{Dir: opts.DownloadDir}, logger),
		Directory: directory.New(client, sess, logger),
		store:     store,
		logger:    logger,
	}, nil
}

// Close releases the credential store.
func (w *Workspace) Close() error {
	return w.store.Close()
}

func (w *Workspace) Register(ctx context.Context, reg types.Registration) (types.User, error) {
	return w.Session.Register(ctx, reg)
}

func (w *Workspace) Login(ctx context.Context, login, password string) (types.User, error) {
	return w.Session.Login(ctx, login, password)
}

// Logout ends the session and drops every cached list.
func (w *Workspace) Logout(ctx context.Context) error {
	err := w.Session.Logout(ctx)
	w.Files.Reset()
	w.Directory.Reset()
	return err
}

// Restore brings back a saved session; it returns ErrNotLoggedIn when there
// is none.
func (w *Workspace) Restore(ctx context.Context) (types.User, error) {
	user, err := w.Session.CheckAuth(ctx)
	if err != nil {
		return types.User{}, err
	}
	if user == nil {
		return types.User{}, ErrNotLoggedIn
	}
	return *user, nil
}

// ListFiles refreshes the file list for userID.
func (w *Workspace) ListFiles(ctx context.Context, userID int) ([]types.File, error) {
	list, err := w.Files.FetchFiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FilesOf(list, userID), nil
}

// FilesOf keeps the files owned by userID.
func FilesOf(list []types.File, userID int) []types.File {
	out := make([]types.File, 0, len(list))
	for _, f := range list {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out
}

// ViewUserFiles lists another account's files. Only admins may do this.
func (w *Workspace) ViewUserFiles(ctx context.Context, userID int) ([]types.File, error) {
	current := w.Session.CurrentUser()
	if current == nil {
		return nil, ErrNotLoggedIn
	}
	if !current.IsAdmin && current.ID != userID {
		return nil, ErrNotAdmin
	}
	return w.ListFiles(ctx, userID)
}

// UploadPaths uploads local files to the current user with a shared comment.
func (w *Workspace) UploadPaths(ctx context.Context, paths []string, comment string) ([]types.File, error) {
	current := w.Session.CurrentUser()
	if current == nil {
		return nil, ErrNotLoggedIn
	}

	uploads := make([]apiclient.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll(uploads)
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		contentType, content, err := detectType(f, p)
		if err != nil {
			_ = f.Close()
			closeAll(uploads)
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		uploads = append(uploads, apiclient.Upload{
			Name:        filepath.Base(p),
			ContentType: contentType,
			Content:     readCloser{Reader: content, Closer: f},
		})
	}
	defer closeAll(uploads)

	return w.Files.UploadFile(ctx, current.ID, uploads, comment)
}

// DeleteFile deletes fileID of userID and forgets it as an avatar wherever it
// was one.
func (w *Workspace) DeleteFile(ctx context.Context, userID, fileID int) error {
	file, ok := w.Files.Find(fileID)
	if !ok {
		if _, err := w.Files.FetchFiles(ctx, userID); err != nil {
			return err
		}
		file, ok = w.Files.Find(fileID)
	}

	if _, err := w.Files.DeleteFile(ctx, userID, fileID); err != nil {
		return err
	}
	if !ok || file.URL == "" {
		return nil
	}

	if err := w.Session.ForgetAvatar(ctx, file.URL); err != nil {
		return err
	}
	w.Directory.ForgetAvatar(userID, file.URL)
	return nil
}

// SetAvatar uploads an image file and makes it the current user's avatar.
func (w *Workspace) SetAvatar(ctx context.Context, path string) (types.User, error) {
	current := w.Session.CurrentUser()
	if current == nil {
		return types.User{}, ErrNotLoggedIn
	}

	f, err := os.Open(path)
	if err != nil {
		return types.User{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return types.User{}, fmt.Errorf("read %s: %w", path, err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return types.User{}, fmt.Errorf("%w: %s is %s", ErrNotImage, filepath.Base(path), contentType)
	}

	created, err := w.Files.UploadFile(ctx, current.ID, []apiclient.Upload{{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Content:     io.MultiReader(bytes.NewReader(head), f),
	}}, "")
	if err != nil {
		return types.User{}, err
	}
	if len(created) == 0 {
		return types.User{}, errors.New("avatar upload returned no file")
	}

	avatar := created[0].URL
	return w.Session.UpdateUser(ctx, types.UserUpdate{Avatar: &avatar})
}

// detectType picks the content type from the extension, else from the
// leading bytes. The returned reader yields the whole file.
func detectType(f *os.File, path string) (string, io.Reader, error) {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t, f, nil
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	return http.DetectContentType(head), io.MultiReader(bytes.NewReader(head), f), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func closeAll(uploads []apiclient.Upload) {
	for _, u := range uploads {
		if c, ok := u.Content.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
