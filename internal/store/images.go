package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const imageColumns = `id, user_id, conversation_id, filename, content_type, image_data, storage_key, created_at`

func insertImage(ctx context.Context, ext sqlx.ExtContext, img *Image) error {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := sqlx.NamedExecContext(ctx, ext, `INSERT INTO images (`+imageColumns+`)
		VALUES (:id, :user_id, :conversation_id, :filename, :content_type, :image_data, :storage_key, :created_at)`, img)
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}
	return nil
}

func (s *Store) CreateImage(ctx context.Context, img *Image) error {
	return insertImage(ctx, s.db, img)
}

func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	var img Image
	err := s.db.GetContext(ctx, &img, s.q(`SELECT `+imageColumns+` FROM images WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", notFound(err))
	}
	return &img, nil
}

// ListImages pages through a user's images, newest first, optionally limited to one conversation.
func (s *Store) ListImages(ctx context.Context, userID string, conversationID *string, limit, offset int) ([]Image, int, error) {
	where := `WHERE user_id = ?`
	args := []any{userID}
	if conversationID != nil {
		where += ` AND conversation_id = ?`
		args = append(args, *conversationID)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(*) FROM images `+where), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count images: %w", err)
	}

	images := []Image{}
	err := s.db.SelectContext(ctx, &images, s.q(`SELECT `+imageColumns+` FROM images `+where+`
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query images: %w", err)
	}
	return images, total, nil
}

func (s *Store) DeleteImage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM images WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
