package store

import (
	"time"

	"pnj.com/jewelry-designer/internal/artifact"
)

type User struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	PasswordHash  string    `db:"password_hash" json:"-"` // Do not expose this in JSON responses
	Name          string    `db:"name" json:"name"`
	Gender        string    `db:"gender" json:"gender,omitempty"`
	Age           *int      `db:"age" json:"age,omitempty"`
	MaritalStatus string    `db:"marital_status" json:"marital_status,omitempty"`
	Segment       string    `db:"segment" json:"segment,omitempty"`
	Region        string    `db:"region" json:"region,omitempty"`
	Nationality   string    `db:"nationality" json:"nationality,omitempty"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type Conversation struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolCallRecord is the audit entry kept for every tool invocation of a turn.
type ToolCallRecord struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// Message is immutable once stored. Seq is the replay order within a conversation.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Role           Role               `json:"role"`
	Content        string             `json:"content"`
	Images         []string           `json:"images,omitempty"`
	ToolCalls      []ToolCallRecord   `json:"tool_calls,omitempty"`
	Artifact       *artifact.Artifact `json:"artifact,omitempty"`
	Meta           map[string]any     `json:"meta,omitempty"`
	Seq            int64              `json:"-"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Image holds either base64 Data inline or a StorageKey into the blob store.
type Image struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ConversationID *string   `db:"conversation_id" json:"conversation_id"`
	Filename       string    `db:"filename" json:"filename"`
	ContentType    string    `db:"content_type" json:"content_type"`
	Data           string    `db:"image_data" json:"image_data"`
	StorageKey     string    `db:"storage_key" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type Product struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Properties  artifact.Properties `json:"properties"`
	Images      []string            `json:"images,omitempty"`
	Price       float64             `json:"price"`
}

func (p Product) Artifact() artifact.Product {
	return artifact.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Properties:  p.Properties,
		Images:      append([]string(nil), p.Images...),
		Price:       p.Price,
	}
}
