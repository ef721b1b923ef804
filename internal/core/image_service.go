package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"pnj.com/jewelry-designer/internal/blob"
	"pnj.com/jewelry-designer/internal/store"
	"pnj.com/jewelry-designer/internal/tools"
)

const (
	MaxImageSize    = 10 * 1024 * 1024
	imageCacheSize  = 256
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// ObjectStore holds image bytes outside the database.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type ImageService struct {
	dbStore *store.Store
	objects ObjectStore // nil keeps bytes inline as base64
	cache   *lru.Cache[string, []byte]
}

func NewImageService(db *store.Store, objects ObjectStore) (*ImageService, error) {
	cache, err := lru.New[string, []byte](imageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	return &ImageService{dbStore: db, objects: objects, cache: cache}, nil
}

type UploadRequest struct {
	Filename       string
	ContentType    string
	Data           []byte
	ConversationID string
}

// ValidateUpload checks content type and size before anything is stored.
func ValidateUpload(contentType string, size int) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if !allowedContentTypes[ct] {
		return invalid("file", fmt.Sprintf("unsupported content type %q", contentType))
	}
	if size == 0 {
		return invalid("file", "file is empty")
	}
	if size > MaxImageSize {
		return invalid("file", fmt.Sprintf("file exceeds the %d MB limit", MaxImageSize/(1024*1024)))
	}
	return nil
}

func (s *ImageService) Upload(ctx context.Context, userID string, req UploadRequest) (*store.Image, error) {
	if err := ValidateUpload(req.ContentType, len(req.Data)); err != nil {
		return nil, err
	}
	var convID *string
	if req.ConversationID != "" {
		if _, err := s.ownedConversation(ctx, userID, req.ConversationID); err != nil {
			return nil, err
		}
		convID = &req.ConversationID
	}

	img, err := s.prepare(ctx, "", userID, convID, req.Filename, strings.ToLower(req.ContentType), req.Data)
	if err != nil {
		return nil, err
	}
	if err := s.dbStore.CreateImage(ctx, img); err != nil {
		s.discard(img)
		return nil, err
	}
	return s.withData(img, req.Data), nil
}

// PrepareGenerated turns tool output into image rows ready to be written with the turn.
func (s *ImageService) PrepareGenerated(ctx context.Context, userID, conversationID string, generated []tools.GeneratedImage) ([]*store.Image, error) {
	images := make([]*store.Image, 0, len(generated))
	for _, g := range generated {
		convID := conversationID
		// keep the id the tool already referenced in its artifact
		img, err := s.prepare(ctx, g.ID, userID, &convID, g.Filename, g.ContentType, g.Data)
		if err != nil {
			s.Discard(images)
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// Discard removes blobs written for images that never made it into the database.
func (s *ImageService) Discard(images []*store.Image) {
	for _, img := range images {
		s.discard(img)
	}
}

func (s *ImageService) discard(img *store.Image) {
	if s.objects == nil || img.StorageKey == "" {
		return
	}
	if err := s.objects.Delete(context.Background(), img.StorageKey); err != nil {
		log.Printf("Failed to remove orphaned blob %s: %v", img.StorageKey, err)
	}
}

func (s *ImageService) prepare(ctx context.Context, id, userID string, convID *string, filename, contentType string, data []byte) (*store.Image, error) {
	if id == "" {
		id = uuid.NewString()
	}
	img := &store.Image{
		ID:             id,
		UserID:         userID,
		ConversationID: convID,
		Filename:       filename,
		ContentType:    contentType,
	}
	if s.objects == nil {
		img.Data = base64.StdEncoding.EncodeToString(data)
		return img, nil
	}
	img.StorageKey = blob.ObjectKey(userID, img.ID)
	if err := s.objects.Put(ctx, img.StorageKey, contentType, data); err != nil {
		return nil, fmt.Errorf("failed to store image bytes: %w", err)
	}
	s.cache.Add(img.ID, data)
	return img, nil
}

// Get returns an image owned by userID with its data populated as base64.
func (s *ImageService) Get(ctx context.Context, userID, imageID string) (*store.Image, error) {
	img, err := s.dbStore.GetImage(ctx, imageID)
	if err != nil {
		return nil, mapStoreError(err, "image")
	}
	if img.UserID != userID {
		return nil, fmt.Errorf("image %s: %w", imageID, ErrForbidden)
	}
	if img.Data == "" && img.StorageKey != "" {
		data, err := s.bytesFor(ctx, img)
		if err != nil {
			return nil, err
		}
		img.Data = base64.StdEncoding.EncodeToString(data)
	}
	return img, nil
}

// Load returns the raw bytes of an owned image, for sending to the model.
func (s *ImageService) Load(ctx context.Context, userID, imageID string) (*store.Image, []byte, error) {
	img, err := s.dbStore.GetImage(ctx, imageID)
	if err != nil {
		return nil, nil, mapStoreError(err, "image "+imageID)
	}
	if img.UserID != userID {
		return nil, nil, fmt.Errorf("image %s: %w", imageID, ErrForbidden)
	}
	data, err := s.bytesFor(ctx, img)
	if err != nil {
		return nil, nil, err
	}
	return img, data, nil
}

func (s *ImageService) bytesFor(ctx context.Context, img *store.Image) ([]byte, error) {
	if data, ok := s.cache.Get(img.ID); ok {
		return data, nil
	}
	var data []byte
	if img.StorageKey != "" {
		if s.objects == nil {
			return nil, fmt.Errorf("image %s is in object storage but no object store is configured", img.ID)
		}
		b, err := s.objects.Get(ctx, img.StorageKey)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				return nil, fmt.Errorf("image %s content %w", img.ID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to load image bytes: %w", err)
		}
		data = b
	} else {
		b, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, fmt.Errorf("image %s has corrupt data: %w", img.ID, err)
		}
		data = b
	}
	s.cache.Add(img.ID, data)
	return data, nil
}

type ImagePage struct {
	Images   []store.Image `json:"images"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

func (s *ImageService) List(ctx context.Context, userID string, conversationID string, page, pageSize int) (*ImagePage, error) {
	if page < 1 {
		return nil, invalid("page", "must be at least 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, invalid("page_size", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}
	var convID *string
	if conversationID != "" {
		if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
			return nil, err
		}
		convID = &conversationID
	}

	images, total, err := s.dbStore.ListImages(ctx, userID, convID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	for i := range images {
		if images[i].Data == "" && images[i].StorageKey != "" {
			data, err := s.bytesFor(ctx, &images[i])
			if err != nil {
				log.Printf("Failed to load bytes for image %s: %v", images[i].ID, err)
				continue
			}
			images[i].Data = base64.StdEncoding.EncodeToString(data)
		}
	}
	return &ImagePage{Images: images, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *ImageService) Delete(ctx context.Context, userID, imageID string) error {
	img, err := s.dbStore.GetImage(ctx, imageID)
	if err != nil {
		return mapStoreError(err, "image")
	}
	if img.UserID != userID {
		return fmt.Errorf("image %s: %w", imageID, ErrForbidden)
	}
	if err := s.dbStore.DeleteImage(ctx, imageID); err != nil {
		return mapStoreError(err, "image")
	}
	s.cache.Remove(imageID)
	s.discard(img)
	return nil
}

// RemoveObjects deletes blobs left behind by a cascading delete.
func (s *ImageService) RemoveObjects(keys []string) {
	if s.objects == nil {
		return
	}
	for _, key := range keys {
		if err := s.objects.Delete(context.Background(), key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			log.Printf("Failed to remove blob %s: %v", key, err)
		}
	}
}

func (s *ImageService) ownedConversation(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	conv, err := s.dbStore.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, mapStoreError(err, "conversation")
	}
	if conv.UserID != userID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrForbidden)
	}
	return conv, nil
}

func (s *ImageService) withData(img *store.Image, data []byte) *store.Image {
	if img.Data == "" {
		img.Data = base64.StdEncoding.EncodeToString(data)
	}
	return img
}
