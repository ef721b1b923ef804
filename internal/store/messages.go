package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"pnj.com/jewelry-designer/internal/artifact"
)

const messageColumns = `id, conversation_id, seq, role, content, images, tool_calls, artifact, meta, created_at`

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	Seq            int64          `db:"seq"`
	Role           string         `db:"role"`
	Content        string         `db:"content"`
	Images         sql.NullString `db:"images"`
	ToolCalls      sql.NullString `db:"tool_calls"`
	Artifact       sql.NullString `db:"artifact"`
	Meta           sql.NullString `db:"meta"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r *messageRow) message() (*Message, error) {
	m := &Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           Role(r.Role),
		Content:        r.Content,
		Seq:            r.Seq,
		CreatedAt:      r.CreatedAt,
	}
	if err := unmarshalColumn(r.Images, &m.Images); err != nil {
		return nil, fmt.Errorf("message %s images: %w", r.ID, err)
	}
	if err := unmarshalColumn(r.ToolCalls, &m.ToolCalls); err != nil {
		return nil, fmt.Errorf("message %s tool_calls: %w", r.ID, err)
	}
	if err := unmarshalColumn(r.Artifact, &m.Artifact); err != nil {
		return nil, fmt.Errorf("message %s artifact: %w", r.ID, err)
	}
	if err := unmarshalColumn(r.Meta, &m.Meta); err != nil {
		return nil, fmt.Errorf("message %s meta: %w", r.ID, err)
	}
	return m, nil
}

func newMessageRow(m *Message) (*messageRow, error) {
	r := &messageRow{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		Role:           string(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
	var err error
	if len(m.Images) > 0 {
		if r.Images, err = marshalColumn(m.Images); err != nil {
			return nil, err
		}
	}
	if len(m.ToolCalls) > 0 {
		if r.ToolCalls, err = marshalColumn(m.ToolCalls); err != nil {
			return nil, err
		}
	}
	if m.Artifact != nil {
		if r.Artifact, err = marshalColumn(m.Artifact); err != nil {
			return nil, err
		}
	}
	if len(m.Meta) > 0 {
		if r.Meta, err = marshalColumn(m.Meta); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ListMessages returns the conversation's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? ORDER BY seq ASC`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	messages := make([]Message, 0, len(rows))
	for i := range rows {
		m, err := rows[i].message()
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, nil
}

// LatestArtifact returns the artifact of the most recent message that carries one, or nil.
func (s *Store) LatestArtifact(ctx context.Context, conversationID string) (*artifact.Artifact, error) {
	var raw sql.NullString
	err := s.db.GetContext(ctx, &raw, s.q(`SELECT artifact FROM messages
		WHERE conversation_id = ? AND artifact IS NOT NULL ORDER BY seq DESC LIMIT 1`), conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest artifact: %w", err)
	}
	var a *artifact.Artifact
	if err := unmarshalColumn(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode latest artifact: %w", err)
	}
	return a, nil
}

// AppendTurn atomically stores the turn's pending images and messages and touches the
// conversation's updated_at. Messages get IDs, timestamps and sequence numbers in order.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, images []*Image, messages ...*Message) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, img := range images {
			if err := insertImage(ctx, tx, img); err != nil {
				return err
			}
		}

		var seq int64
		if err := tx.GetContext(ctx, &seq, tx.Rebind(`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?`), conversationID); err != nil {
			return fmt.Errorf("failed to read message sequence: %w", err)
		}

		now := time.Now().UTC()
		for i, m := range messages {
			seq++
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			m.ConversationID = conversationID
			m.Seq = seq
			// keep replay order visible in timestamps too
			m.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)

			row, err := newMessageRow(m)
			if err != nil {
				return fmt.Errorf("failed to encode message: %w", err)
			}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO messages (`+messageColumns+`)
				VALUES (:id, :conversation_id, :seq, :role, :content, :images, :tool_calls, :artifact, :meta, :created_at)`, row); err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`), now, conversationID)
		if err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func marshalColumn(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalColumn(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
