package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/store"
	"pnj.com/jewelry-designer/internal/tools"
)

const (
	titleTimeout = 30 * time.Second

	unavailableReply = "I'm sorry, the design assistant is unavailable right now. Your message has been saved; please try again in a moment."
)

type ChatService struct {
	dbStore       *store.Store
	conversations *ConversationService
	images        *ImageService
	orchestrator  *Orchestrator
	titler        Titler // For title generation, optional
}

func NewChatService(db *store.Store, conversations *ConversationService, images *ImageService, orchestrator *Orchestrator, titler Titler) *ChatService {
	return &ChatService{
		dbStore:       db,
		conversations: conversations,
		images:        images,
		orchestrator:  orchestrator,
		titler:        titler,
	}
}

type ChatRequest struct {
	ConversationID string          `json:"conversation_id"`
	Message        string          `json:"message"`
	ImageIDs       []string        `json:"images,omitempty"`
	Artifact       json.RawMessage `json:"artifact,omitempty"`
}

type ChatResult struct {
	ConversationID   string         `json:"conversation_id"`
	UserMessage      *store.Message `json:"user_message"`
	AssistantMessage *store.Message `json:"assistant_message"`
}

// Chat runs one turn for user. Request problems, missing or foreign resources are reported
// before the model is contacted. A model failure still records the user message together with
// an "unavailable" reply and returns *UpstreamError.
func (s *ChatService) Chat(ctx context.Context, user *store.User, req ChatRequest) (*ChatResult, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(req.ConversationID) == "" {
		verr.add("conversation_id", "is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		verr.add("message", "must not be empty")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	conv, err := s.conversations.Owned(ctx, user.ID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	imageIDs := dedupe(req.ImageIDs)
	inline := make([]InlineImage, 0, len(imageIDs))
	for _, id := range imageIDs {
		img, data, err := s.images.Load(ctx, user.ID, id)
		if err != nil {
			return nil, err
		}
		inline = append(inline, InlineImage{MIMEType: img.ContentType, Data: data})
	}

	patch, err := artifact.ParsePatch(req.Artifact)
	if err != nil {
		return nil, fromArtifactError(err)
	}
	current, err := s.dbStore.LatestArtifact(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	working := current
	if patch != nil {
		if working, err = patch.Apply(current); err != nil {
			return nil, fromArtifactError(err)
		}
	}

	history, err := s.dbStore.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	userMsg := &store.Message{
		Role:    store.RoleUser,
		Content: req.Message,
		Images:  imageIDs,
	}
	if patch != nil {
		userMsg.Artifact = working
	}

	// The turn runs to completion even if the caller goes away.
	turnCtx := context.WithoutCancel(ctx)
	turn, err := s.orchestrator.Run(turnCtx, TurnInput{
		SystemPrompt: BuildSystemPrompt(user, working),
		History:      history,
		UserText:     req.Message,
		UserImages:   inline,
		Invocation: &tools.Invocation{
			UserID:         user.ID,
			ConversationID: conv.ID,
			Profile:        DescribeUser(user),
			ImageIDs:       imageIDs,
			Current:        working,
		},
	})
	if err != nil {
		if errors.Is(err, ErrUpstream) {
			return nil, s.recordFailure(turnCtx, conv.ID, userMsg, err)
		}
		return nil, err
	}

	// without a tool artifact the turn ends on the patched snapshot the user message carries
	final := userMsg.Artifact.Clone()
	if turn.Artifact != nil {
		if final, err = artifact.Merge(current, patch, turn.Artifact); err != nil {
			return nil, fmt.Errorf("failed to merge turn artifact: %w", fromArtifactError(err))
		}
	}

	generated, err := s.images.PrepareGenerated(turnCtx, user.ID, conv.ID, turn.Images)
	if err != nil {
		return nil, err
	}
	assistantMsg := &store.Message{
		Role:      store.RoleAssistant,
		Content:   turn.Text,
		ToolCalls: turn.ToolCalls,
		Artifact:  final,
		Meta:      map[string]any{"iterations": turn.Iterations},
	}
	for _, img := range generated {
		assistantMsg.Images = append(assistantMsg.Images, img.ID)
	}
	if turn.Warning != "" {
		assistantMsg.Meta["warning"] = turn.Warning
	}

	if err := s.dbStore.AppendTurn(turnCtx, conv.ID, generated, userMsg, assistantMsg); err != nil {
		s.images.Discard(generated)
		return nil, mapStoreError(err, "conversation")
	}

	if conv.Title == "" && s.titler != nil {
		go s.generateAndSaveChatTitle(conv.ID, req.Message)
	}

	return &ChatResult{ConversationID: conv.ID, UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

func (s *ChatService) recordFailure(ctx context.Context, conversationID string, userMsg *store.Message, cause error) error {
	log.Printf("Chat turn for conversation %s failed upstream: %v", conversationID, cause)
	assistantMsg := &store.Message{
		Role:    store.RoleAssistant,
		Content: unavailableReply,
		Meta:    map[string]any{"error": cause.Error()},
	}
	if err := s.dbStore.AppendTurn(ctx, conversationID, nil, userMsg, assistantMsg); err != nil {
		log.Printf("Failed to record failed turn for conversation %s: %v", conversationID, err)
		return fmt.Errorf("%w (and failed to record it: %v)", upstream(cause), err)
	}
	return &UpstreamError{
		Cause:            cause,
		ConversationID:   conversationID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}
}

func (s *ChatService) generateAndSaveChatTitle(conversationID, basisContent string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	log.Printf("Attempting to generate title for conversation %s", conversationID)
	title, err := s.titler.GenerateTitleForChat(ctx, basisContent)
	if err != nil {
		log.Printf("Failed to generate title for conversation %s: %v", conversationID, err)
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}

	if err := s.dbStore.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		log.Printf("Failed to save generated title '%s' for conversation %s: %v", title, conversationID, err)
	} else {
		log.Printf("Successfully generated and saved title '%s' for conversation %s", title, conversationID)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
