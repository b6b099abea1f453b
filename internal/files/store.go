// Package files holds the file list of the user being viewed and applies
// upload, rename, comment and delete results to it.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/internal/apiclient"
	"github.com/mycloud-app/mycloud/types"
)

const (
	msgFetchFailed    = "Failed to load files"
	msgUploadFailed   = "Failed to upload files"
	msgDeleteFailed   = "Failed to delete file"
	msgRenameFailed   = "Failed to rename file"
	msgCommentFailed  = "Failed to update comment"
	msgDownloadFailed = "Failed to download file"
)

// API is the subset of the API client the store needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
	PostMultipart(ctx context.Context, path string, fields map[string]string, uploads []apiclient.Upload, out any) error
	Download(ctx context.Context, path string) (*apiclient.Download, error)
}

// Saver writes downloaded content somewhere local and returns where.
type Saver interface {
	Save(name string, r io.Reader) (string, error)
}

// DirSaver saves into a directory.
type DirSaver struct {
	Dir string
}

func (s DirSaver) Save(name string, r io.Reader) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// PartialUploadError reports files the server refused during an upload
// that otherwise succeeded.
type PartialUploadError struct {
	Errors []string
}

func (e *PartialUploadError) Error() string {
	return "some files were not uploaded: " + strings.Join(e.Errors, "; ")
}

// Store is the client-side file list.
type Store struct {
	api    API
	saver  Saver
	logger *zap.Logger

	mu       sync.RWMutex
	files    []types.File
	loading  bool
	err      string
	fetchSeq uint64
}

// New constructs a Store. A nil saver saves into the working directory.
func New(api API, saver Saver, logger *zap.Logger) *Store {
	if saver == nil {
		saver = DirSaver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, saver: saver, logger: logger}
}

// Files returns a copy of the current list.
func (s *Store) Files() []types.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.File, len(s.files))
	copy(out, s.files)
	return out
}

// Find returns the file with id from the local list.
func (s *Store) Find(fileID int) (types.File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.ID == fileID {
			return f, true
		}
	}
	return types.File{}, false
}

// Loading reports whether a file request is outstanding.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the display string of the last file failure.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Reset drops the list and any error.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
	s.loading = false
	s.err = ""
	s.fetchSeq++
}

// FetchFiles replaces the local list with the server's list for userID.
// An answer to a fetch that has since been superseded by a newer fetch is
// returned but not applied.
func (s *Store) FetchFiles(ctx context.Context, userID int) ([]types.File, error) {
	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	var list []types.File
	if err := s.api.Get(ctx, fmt.Sprintf("/files/%d/", userID), &list); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.fetchSeq {
			s.logger.Debug("dropping stale fetch failure", zap.Int("user_id", userID), zap.Error(err))
			return nil, err
		}
		s.loading = false
		s.err = apiclient.Message(err, msgFetchFailed)
		return nil, err
	}
	if list == nil {
		list = []types.File{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.fetchSeq {
		s.logger.Debug("dropping stale file list", zap.Int("user_id", userID))
		return list, nil
	}
	s.files = append([]types.File(nil), list...)
	s.loading = false
	return list, nil
}

// UploadFile uploads files to userID with an optional shared comment and
// appends what the server created.
func (s *Store) UploadFile(ctx context.Context, userID int, uploads []apiclient.Upload, comment string) ([]types.File, error) {
	if len(uploads) == 0 {
		return nil, s.reject("no files to upload")
	}
	s.begin()

	var fields map[string]string
	if comment != "" {
		fields = map[string]string{"comment": comment}
	}
	var resp types.UploadResponse
	if err := s.api.PostMultipart(ctx, fmt.Sprintf("/files/%d/upload/", userID), fields, uploads, &resp); err != nil {
		s.fail(err, msgUploadFailed)
		return nil, err
	}

	s.mu.Lock()
	s.files = append(s.files, resp.UploadedFiles...)
	s.loading = false
	if len(resp.Errors) > 0 {
		s.err = strings.Join(resp.Errors, "; ")
	}
	s.mu.Unlock()

	if len(resp.Errors) > 0 {
		return resp.UploadedFiles, &PartialUploadError{Errors: resp.Errors}
	}
	return resp.UploadedFiles, nil
}

// RenameFile sets a new name and replaces the entry in place.
func (s *Store) RenameFile(ctx context.Context, fileID int, newName string) (types.File, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return types.File{}, s.reject("new name is required")
	}
	return s.patch(ctx, fileID, types.FileUpdate{NewName: newName}, msgRenameFailed)
}

// UpdateComment sets a new comment and replaces the entry in place.
func (s *Store) UpdateComment(ctx context.Context, fileID int, comment string) (types.File, error) {
	if strings.TrimSpace(comment) == "" {
		return types.File{}, s.reject("comment is required")
	}
	return s.patch(ctx, fileID, types.FileUpdate{Comment: comment}, msgCommentFailed)
}

// DeleteFile removes the file on the server and from the list. Clearing the
// owner's avatar reference is left to the caller.
func (s *Store) DeleteFile(ctx context.Context, userID, fileID int) (int, error) {
	s.begin()
	if err := s.api.Delete(ctx, fmt.Sprintf("/files/%d/delete/%d/", userID, fileID), nil); err != nil {
		s.fail(err, msgDeleteFailed)
		return 0, err
	}

	s.mu.Lock()
	kept := s.files[:0]
	for _, f := range s.files {
		if f.ID != fileID {
			kept = append(kept, f)
		}
	}
	s.files = kept
	s.loading = false
	s.mu.Unlock()
	return fileID, nil
}

// DownloadFile saves the content of fileID locally. The name is
// suggestedName, else the server's content-disposition name, else
// file_<id>. The list is not touched.
func (s *Store) DownloadFile(ctx context.Context, fileID int, suggestedName string) (string, error) {
	s.begin()
	dl, err := s.api.Download(ctx, fmt.Sprintf("/files/%d/download/", fileID))
	if err != nil {
		s.fail(err, msgDownloadFailed)
		return "", err
	}
	defer dl.Body.Close()

	name := downloadName(fileID, suggestedName, dl.Filename)
	path, err := s.saver.Save(name, dl.Body)
	if err != nil {
		err = fmt.Errorf("save %s: %w", name, err)
		s.fail(err, msgDownloadFailed)
		return "", err
	}
	s.finish()
	s.logger.Debug("file downloaded", zap.Int("file_id", fileID), zap.String("path", path))
	return path, nil
}

func (s *Store) patch(ctx context.Context, fileID int, update types.FileUpdate, fallback string) (types.File, error) {
	s.begin()
	var updated types.File
	if err := s.api.Patch(ctx, fmt.Sprintf("/files/%d/update/", fileID), update, &updated); err != nil {
		s.fail(err, fallback)
		return types.File{}, err
	}

	s.mu.Lock()
	for i := range s.files {
		if s.files[i].ID == updated.ID {
			s.files[i] = updated
			break
		}
	}
	s.loading = false
	s.mu.Unlock()
	return updated, nil
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *Store) finish() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Store) fail(err error, fallback string) {
	s.mu.Lock()
	s.loading = false
	s.err = apiclient.Message(err, fallback)
	s.mu.Unlock()
}

// reject records a request refused before reaching the server.
func (s *Store) reject(msg string) error {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
	return errors.New(msg)
}

func downloadName(fileID int, suggested, fromServer string) string {
	for _, candidate := range []string{suggested, fromServer} {
		name := filepath.Base(strings.TrimSpace(candidate))
		if name != "" && name != "." && name != ".." && name != string(filepath.Separator) {
			return name
		}
	}
	return fmt.Sprintf("file_%d", fileID)
}
