package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mycloud-app/mycloud/internal/services"
	"github.com/mycloud-app/mycloud/internal/storage"
	"github.com/mycloud-app/mycloud/internal/store"
	"github.com/mycloud-app/mycloud/types"
)

const (
	maxMultipartMemory = 32 << 20
	formFieldFile      = "file"
	formFieldComment   = "comment"
)

// FileHandler provides the file endpoints.
type FileHandler struct {
	fileService *services.FileService
	logger      *zap.Logger
}

func NewFileHandler(fileService *services.FileService, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{fileService: fileService, logger: logger}
}

// FileRouter registers the /files routes. The first segment is a user id for
// list, upload and delete, and a file id for update and download.
func FileRouter(r chi.Router, h *FileHandler, auth *AuthHandler) {
	r.Use(auth.Authenticate, auth.RequireAuth)
	r.Get("/{id}/", h.ListFiles)
	r.Post("/{id}/upload/", h.UploadFiles)
	r.Delete("/{id}/delete/{fileID}/", h.DeleteFile)
	r.Patch("/{id}/update/", h.UpdateFile)
	r.Get("/{id}/download/", h.DownloadFile)
}

func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	actor, _ := currentUser(r.Context())
	files, err := h.fileService.List(r.Context(), actor, userID)
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			writeError(w, http.StatusForbidden, "not allowed to view this user's files")
			return
		}
		h.writeFileError(w, err, "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *FileHandler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[formFieldFile]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}
	parts := make([]services.UploadPart, 0, len(headers))
	for _, fh := range headers {
		parts = append(parts, uploadPart(fh))
	}

	actor, _ := currentUser(r.Context())
	created, problems, err := h.fileService.Upload(r.Context(), actor, userID, parts, r.FormValue(formFieldComment))
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			writeError(w, http.StatusForbidden, "not allowed to upload for this user")
			return
		}
		h.writeFileError(w, err, "failed to upload files")
		return
	}

	status := http.StatusCreated
	if len(problems) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, types.UploadResponse{UploadedFiles: created, Errors: problems})
}

func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}
	actor, _ := currentUser(r.Context())
	rec, content, err := h.fileService.Open(r.Context(), actor, fileID)
	if err != nil {
		h.writeFileError(w, err, "failed to download file")
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(rec.FileName))
	w.Header().Set("Content-Length", strconv.FormatInt(rec.FileSize, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		h.logger.Warn("stream download failed", zap.Int("file_id", fileID), zap.Error(err))
	}
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	fileID, err := parseIDParam(r, "fileID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := currentUser(r.Context())
	if err := h.fileService.Delete(r.Context(), actor, userID, fileID); err != nil {
		if errors.Is(err, services.ErrForbidden) {
			writeError(w, http.StatusForbidden, "not allowed to delete this file")
			return
		}
		h.writeFileError(w, err, "failed to delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}
	var req types.FileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	actor, _ := currentUser(r.Context())
	file, err := h.fileService.Update(r.Context(), actor, fileID, req)
	if err != nil {
		if errors.Is(err, services.ErrNoChanges) {
			writeError(w, http.StatusBadRequest, "no new name or comment provided")
			return
		}
		h.writeFileError(w, err, "failed to update file")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// Media serves stored content by object key under /media/.
func (h *FileHandler) Media(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	content, err := h.fileService.OpenObject(r.Context(), key)
	if err != nil {
		h.writeFileError(w, err, "failed to open file")
		return
	}
	defer content.Close()

	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		w.Header().Set("Content-Type", t)
	}
	if _, err := io.Copy(w, content); err != nil {
		h.logger.Warn("stream media failed", zap.String("key", key), zap.Error(err))
	}
}

// writeFileError hides other users' files behind 404.
func (h *FileHandler) writeFileError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, services.ErrForbidden),
		errors.Is(err, storage.ErrObjectNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func uploadPart(fh *multipart.FileHeader) services.UploadPart {
	return services.UploadPart{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// contentDisposition quotes plain ASCII names and falls back to the RFC 2231
// form for anything else.
func contentDisposition(name string) string {
	plain := true
	for _, c := range name {
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			plain = false
			break
		}
	}
	if plain {
		return fmt.Sprintf(`attachment; filename="%s"`, name)
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
