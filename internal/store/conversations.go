package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const conversationColumns = `id, user_id, title, description, created_at, updated_at`

func (s *Store) CreateConversation(ctx context.Context, userID, title, description string) (*Conversation, error) {
	now := time.Now().UTC()
	c := &Conversation{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO conversations (`+conversationColumns+`)
		VALUES (:id, :user_id, :title, :description, :created_at, :updated_at)`, c)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return c, nil
}

// GetConversation loads a conversation regardless of owner; callers check ownership.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.GetContext(ctx, &c, s.q(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", notFound(err))
	}
	return &c, nil
}

// ListConversations returns a page of the user's conversations, most recently active first,
// and the user's total conversation count.
func (s *Store) ListConversations(ctx context.Context, userID string, limit, offset int) ([]Conversation, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(*) FROM conversations WHERE user_id = ?`), userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	convs := []Conversation{}
	err := s.db.SelectContext(ctx, &convs, s.q(`SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`), userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query conversations: %w", err)
	}
	return convs, total, nil
}

func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE conversations SET title = ? WHERE id = ?`), title, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation with its messages and images in one transaction.
// It returns the storage keys of deleted blob-backed images so callers can remove the objects.
func (s *Store) DeleteConversation(ctx context.Context, id string) ([]string, error) {
	var keys []string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &keys, tx.Rebind(`SELECT storage_key FROM images
			WHERE conversation_id = ? AND storage_key <> ''`), id); err != nil {
			return fmt.Errorf("failed to collect image keys: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM images WHERE conversation_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete images: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM conversations WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
