package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/internal/mq"
	"github.com/mycloud-app/mycloud/internal/storage"
	"github.com/mycloud-app/mycloud/internal/store"
	"github.com/mycloud-app/mycloud/types"
)

// DefaultMaxUploadBytes is the per-file upload limit.
const DefaultMaxUploadBytes = 10 << 20

// FileRepository defines persistence operations for file metadata.
type FileRepository interface {
	Get(ctx context.Context, id int) (types.FileRecord, error)
	List(ctx context.Context) ([]types.FileRecord, error)
	ListByUser(ctx context.Context, userID int) ([]types.FileRecord, error)
	Create(ctx context.Context, rec types.FileRecord) (types.FileRecord, error)
	Update(ctx context.Context, rec types.FileRecord) (types.FileRecord, error)
	MarkDownloaded(ctx context.Context, id int, at time.Time) error
	Delete(ctx context.Context, id int, url string) error
}

// UploadPart is one file of a multipart upload.
type UploadPart struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FileService encapsulates file use-cases.
type FileService struct {
	repo      FileRepository
	storage   storage.ObjectStorage
	events    *mq.MQ
	logger    *zap.Logger
	publicURL string
	maxBytes  int64
}

func NewFileService(
	repo FileRepository,
	objects storage.ObjectStorage,
	events *mq.MQ,
	logger *zap.Logger,
	publicURL string,
	maxBytes int64,
) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &FileService{
		repo:      repo,
		storage:   objects,
		events:    events,
		logger:    logger,
		publicURL: publicURL,
		maxBytes:  maxBytes,
	}
}

// List returns every file for admins and the owner's files otherwise.
func (s *FileService) List(ctx context.Context, actor types.User, ownerID int) ([]types.File, error) {
	var (
		records []types.FileRecord
		err     error
	)
	switch {
	case actor.IsAdmin:
		records, err = s.repo.List(ctx)
	case actor.ID == ownerID:
		records, err = s.repo.ListByUser(ctx, ownerID)
	default:
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	return s.render(records), nil
}

// AllByOwner groups every file by owner id.
func (s *FileService) AllByOwner(ctx context.Context) (map[int][]types.File, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]types.File)
	for _, rec := range records {
		out[rec.UserID] = append(out[rec.UserID], rec.ToFile(s.publicURL))
	}
	return out, nil
}

// Upload stores parts for ownerID. Parts over the size limit or failing to
// store are reported in the returned messages; the rest are created.
func (s *FileService) Upload(ctx context.Context, actor types.User, ownerID int, parts []UploadPart, comment string) ([]types.File, []string, error) {
	if actor.ID != ownerID && !actor.IsAdmin {
		return nil, nil, ErrForbidden
	}

	created := []types.File{}
	var problems []string
	for _, part := range parts {
		name := path.Base(strings.ReplaceAll(part.Name, "\\", "/"))
		if part.Size > s.maxBytes {
			problems = append(problems, fmt.Sprintf("%s: file exceeds the %s limit", name, types.HumanSize(s.maxBytes)))
			continue
		}
		rec, err := s.store(ctx, ownerID, name, part, comment)
		if err != nil {
			s.logger.Error("store upload failed", zap.String("file_name", name), zap.Int("user_id", ownerID), zap.Error(err))
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		created = append(created, rec.ToFile(s.publicURL))
		s.publish(ctx, mq.Event{Type: mq.EventFileUploaded, UserID: ownerID, FileID: rec.ID, FileName: rec.FileName, ActorID: actor.ID})
	}
	return created, problems, nil
}

func (s *FileService) store(ctx context.Context, ownerID int, name string, part UploadPart, comment string) (types.FileRecord, error) {
	content, err := part.Open()
	if err != nil {
		return types.FileRecord{}, err
	}
	defer content.Close()

	contentType := part.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("user_files/%d/%s_%s", ownerID, uuid.NewString(), name)
	if err := s.storage.Put(ctx, key, content, part.Size, contentType); err != nil {
		return types.FileRecord{}, err
	}

	rec, err := s.repo.Create(ctx, types.FileRecord{
		UserID:      ownerID,
		FileName:    name,
		ObjectKey:   key,
		FileSize:    part.Size,
		ContentType: contentType,
		Comment:     comment,
	})
	if err != nil {
		_ = s.storage.Delete(ctx, key)
		return types.FileRecord{}, err
	}
	return rec, nil
}

// Open returns the record and content of fileID and stamps the download
// time.
func (s *FileService) Open(ctx context.Context, actor types.User, fileID int) (types.FileRecord, io.ReadCloser, error) {
	rec, err := s.authorized(ctx, actor, fileID)
	if err != nil {
		return types.FileRecord{}, nil, err
	}
	content, err := s.storage.Get(ctx, rec.ObjectKey)
	if err != nil {
		return types.FileRecord{}, nil, err
	}
	now := time.Now()
	if err := s.repo.MarkDownloaded(ctx, rec.ID, now); err != nil {
		s.logger.Warn("mark downloaded failed", zap.Int("file_id", rec.ID), zap.Error(err))
	} else {
		rec.LastDownloaded = &now
	}
	return rec, content, nil
}

// OpenObject serves stored content by key for public media links.
func (s *FileService) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if !strings.HasPrefix(key, "user_files/") || strings.Contains(key, "..") {
		return nil, storage.ErrObjectNotFound
	}
	return s.storage.Get(ctx, key)
}

// Update renames fileID and/or changes its comment.
func (s *FileService) Update(ctx context.Context, actor types.User, fileID int, upd types.FileUpdate) (types.File, error) {
	newName := strings.TrimSpace(upd.NewName)
	if newName == "" && upd.Comment == "" {
		return types.File{}, ErrNoChanges
	}
	rec, err := s.authorized(ctx, actor, fileID)
	if err != nil {
		return types.File{}, err
	}
	if newName != "" {
		rec.FileName = path.Base(newName)
	}
	if upd.Comment != "" {
		rec.Comment = upd.Comment
	}
	saved, err := s.repo.Update(ctx, rec)
	if err != nil {
		return types.File{}, err
	}
	return saved.ToFile(s.publicURL), nil
}

// Delete removes fileID of ownerID, its content and any avatar reference
// to it.
func (s *FileService) Delete(ctx context.Context, actor types.User, ownerID, fileID int) error {
	if actor.ID != ownerID && !actor.IsAdmin {
		return ErrForbidden
	}
	rec, err := s.authorized(ctx, actor, fileID)
	if err != nil {
		return err
	}
	if rec.UserID != ownerID {
		return store.ErrNotFound
	}
	if err := s.repo.Delete(ctx, rec.ID, rec.URL(s.publicURL)); err != nil {
		return err
	}
	s.RemoveObjects(ctx, []string{rec.ObjectKey})
	s.publish(ctx, mq.Event{Type: mq.EventFileDeleted, UserID: rec.UserID, FileID: rec.ID, FileName: rec.FileName, ActorID: actor.ID})
	return nil
}

// ObjectKeys lists the storage keys owned by userID.
func (s *FileService) ObjectKeys(ctx context.Context, userID int) ([]string, error) {
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.ObjectKey)
	}
	return keys, nil
}

// RemoveObjects deletes stored content. Failures are logged, not returned:
// the metadata is already gone.
func (s *FileService) RemoveObjects(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("delete object failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *FileService) authorized(ctx context.Context, actor types.User, fileID int) (types.FileRecord, error) {
	rec, err := s.repo.Get(ctx, fileID)
	if err != nil {
		return types.FileRecord{}, err
	}
	if rec.UserID != actor.ID && !actor.IsAdmin {
		return types.FileRecord{}, ErrForbidden
	}
	return rec, nil
}

func (s *FileService) render(records []types.FileRecord) []types.File {
	out := make([]types.File, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ToFile(s.publicURL))
	}
	return out
}

func (s *FileService) publish(ctx context.Context, ev mq.Event) {
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		s.logger.Warn("publish event failed", zap.String("event", ev.Type), zap.Error(err))
	}
}
