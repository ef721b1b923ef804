package core

import (
	"context"
	"fmt"
	"strings"

	"pnj.com/jewelry-designer/internal/store"
)

const (
	DefaultConversationLimit = 50
	MaxConversationLimit     = 100
	maxTitleLength           = 200
)

type ConversationService struct {
	dbStore *store.Store
	images  *ImageService
}

func NewConversationService(db *store.Store, images *ImageService) *ConversationService {
	return &ConversationService{dbStore: db, images: images}
}

type ConversationDetail struct {
	store.Conversation
	Messages []store.Message `json:"messages"`
}

type ConversationPage struct {
	Conversations []store.Conversation `json:"conversations"`
	Total         int                  `json:"total"`
}

func (s *ConversationService) Create(ctx context.Context, userID, title, description string) (*store.Conversation, error) {
	title = strings.TrimSpace(title)
	if len(title) > maxTitleLength {
		return nil, invalid("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	return s.dbStore.CreateConversation(ctx, userID, title, strings.TrimSpace(description))
}

func (s *ConversationService) List(ctx context.Context, userID string, limit, offset int) (*ConversationPage, error) {
	verr := &ValidationError{}
	if limit < 1 || limit > MaxConversationLimit {
		verr.add("limit", fmt.Sprintf("must be between 1 and %d", MaxConversationLimit))
	}
	if offset < 0 {
		verr.add("offset", "must not be negative")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	convs, total, err := s.dbStore.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &ConversationPage{Conversations: convs, Total: total}, nil
}

// Owned loads a conversation and checks that userID owns it.
func (s *ConversationService) Owned(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	conv, err := s.dbStore.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapStoreError(err, "conversation")
	}
	if conv.UserID != userID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrForbidden)
	}
	return conv, nil
}

func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*ConversationDetail, error) {
	conv, err := s.Owned(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.dbStore.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for conversation: %w", err)
	}
	return &ConversationDetail{Conversation: *conv, Messages: messages}, nil
}

// Delete removes the conversation together with its messages and images.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := s.Owned(ctx, userID, conversationID); err != nil {
		return err
	}
	keys, err := s.dbStore.DeleteConversation(ctx, conversationID)
	if err != nil {
		return mapStoreError(err, "conversation")
	}
	if s.images != nil {
		s.images.RemoveObjects(keys)
	}
	return nil
}
