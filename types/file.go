package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of file timestamps.
const DateLayout = "02.01.2006 15:04:05"

// File is a stored file as seen by clients.
type File struct {
	ID             int    `json:"id"`
	FileName       string `json:"file_name"`
	FileSize       string `json:"file_size"`
	Type           string `json:"type"`
	URL            string `json:"url"`
	UploadDate     string `json:"upload_date"`
	LastDownloaded string `json:"last_downloaded"`
	UpdatedAt      string `json:"updated_at"`
	UserID         int    `json:"user_id"`
	Comment        string `json:"comment"`
}

// FileRecord is the persisted form of a file.
type FileRecord struct {
	ID             int        `db:"id"`
	UserID         int        `db:"user_id"`
	FileName       string     `db:"file_name"`
	ObjectKey      string     `db:"object_key"`
	FileSize       int64      `db:"file_size"`
	ContentType    string     `db:"content_type"`
	Comment        string     `db:"comment"`
	UploadDate     time.Time  `db:"upload_date"`
	UpdatedAt      time.Time  `db:"updated_at"`
	LastDownloaded *time.Time `db:"last_downloaded"`
}

// URL returns the public content location of the record.
func (r FileRecord) URL(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/media/" + r.ObjectKey
}

// ToFile renders the record the way clients receive it.
func (r FileRecord) ToFile(publicURL string) File {
	f := File{
		ID:         r.ID,
		FileName:   r.FileName,
		FileSize:   HumanSize(r.FileSize),
		Type:       r.ContentType,
		URL:        r.URL(publicURL),
		UploadDate: r.UploadDate.Local().Format(DateLayout),
		UpdatedAt:  r.UpdatedAt.Local().Format(DateLayout),
		UserID:     r.UserID,
		Comment:    r.Comment,
	}
	if r.LastDownloaded != nil {
		f.LastDownloaded = r.LastDownloaded.Local().Format(DateLayout)
	}
	return f
}

// HumanSize formats a byte count with a binary unit.
func HumanSize(size int64) string {
	const unit = 1024
	switch {
	case size < unit:
		return fmt.Sprintf("%d B", size)
	case size < unit*unit:
		return fmt.Sprintf("%.2f KB", float64(size)/unit)
	case size < unit*unit*unit:
		return fmt.Sprintf("%.2f MB", float64(size)/(unit*unit))
	default:
		return fmt.Sprintf("%.2f GB", float64(size)/(unit*unit*unit))
	}
}

// FileUpdate is the rename/comment request payload.
type FileUpdate struct {
	NewName string `json:"new_name,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// UploadResponse is returned by the upload endpoint. Errors is only set on a
// partial upload.
type UploadResponse struct {
	UploadedFiles []File   `json:"uploaded_files"`
	Errors        []string `json:"errors,omitempty"`
}
