package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mycloud-app/mycloud/types"
)

const fileColumns = `id, user_id, file_name, object_key, file_size, content_type, comment, upload_date, updated_at, last_downloaded`

// FileRepository handles persistence for file metadata.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func scanFile(row rowScanner) (types.FileRecord, error) {
	var (
		rec          types.FileRecord
		lastDownload sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.FileName,
		&rec.ObjectKey,
		&rec.FileSize,
		&rec.ContentType,
		&rec.Comment,
		&rec.UploadDate,
		&rec.UpdatedAt,
		&lastDownload,
	)
	if lastDownload.Valid {
		t := lastDownload.Time
		rec.LastDownloaded = &t
	}
	return rec, err
}

func (r *FileRepository) Get(ctx context.Context, id int) (types.FileRecord, error) {
	rec, err := scanFile(r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.FileRecord{}, ErrNotFound
		}
		return types.FileRecord{}, err
	}
	return rec, nil
}

func (r *FileRepository) list(ctx context.Context, query string, args ...any) ([]types.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []types.FileRecord{}
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// List returns every file, oldest first.
func (r *FileRepository) List(ctx context.Context) ([]types.FileRecord, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files ORDER BY id`)
}

func (r *FileRepository) ListByUser(ctx context.Context, userID int) ([]types.FileRecord, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *FileRepository) Create(ctx context.Context, rec types.FileRecord) (types.FileRecord, error) {
	now := time.Now()
	rec.UploadDate = now
	rec.UpdatedAt = now

	const query = `
		INSERT INTO files (user_id, file_name, object_key, file_size, content_type, comment, upload_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		rec.UserID,
		rec.FileName,
		rec.ObjectKey,
		rec.FileSize,
		rec.ContentType,
		rec.Comment,
		rec.UploadDate,
		rec.UpdatedAt,
	).Scan(&rec.ID); err != nil {
		return types.FileRecord{}, mapError(err)
	}
	return rec, nil
}

// Update saves the name and comment of rec.
func (r *FileRepository) Update(ctx context.Context, rec types.FileRecord) (types.FileRecord, error) {
	rec.UpdatedAt = time.Now()

	const query = `
		UPDATE files
		SET file_name = $1,
			comment = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, rec.FileName, rec.Comment, rec.UpdatedAt, rec.ID)
	if err != nil {
		return types.FileRecord{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.FileRecord{}, err
	}
	if affected == 0 {
		return types.FileRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *FileRepository) MarkDownloaded(ctx context.Context, id int, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE files SET last_downloaded = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the file row and clears the owner's avatar when it pointed
// at url, in one transaction.
func (r *FileRepository) Delete(ctx context.Context, id int, url string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var userID int
	err = tx.QueryRowContext(ctx, `DELETE FROM files WHERE id = $1 RETURNING user_id`, id).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if url != "" {
		const clearAvatar = `UPDATE users SET avatar = '', updated_at = $1 WHERE id = $2 AND avatar = $3`
		if _, err := tx.ExecContext(ctx, clearAvatar, time.Now(), userID, url); err != nil {
			return err
		}
	}
	return tx.Commit()
}
