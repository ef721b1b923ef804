package core

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnj.com/jewelry-designer/internal/tools"
)

func TestValidateUpload(t *testing.T) {
	assert.NoError(t, ValidateUpload("image/PNG", 10))
	assert.ErrorIs(t, ValidateUpload("application/pdf", 10), ErrValidation)
	assert.ErrorIs(t, ValidateUpload("image/png", 0), ErrValidation)
	assert.ErrorIs(t, ValidateUpload("image/png", MaxImageSize+1), ErrValidation)
	assert.NoError(t, ValidateUpload("image/jpeg", MaxImageSize))
}

func TestImageService_InlineRoundTrip(t *testing.T) {
	db := newTestStore(t)
	svc, err := NewImageService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")

	img, err := svc.Upload(ctx, owner.ID, UploadRequest{Filename: "ring.png", ContentType: "image/png", Data: []byte("png-bytes")})
	require.NoError(t, err)

	got, err := svc.Get(ctx, owner.ID, img.ID)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), got.Data)
	assert.Equal(t, "ring.png", got.Filename)

	_, err = svc.Get(ctx, other.ID, img.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, owner.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, other.ID, img.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, owner.ID, img.ID))
	_, err = svc.Get(ctx, owner.ID, img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageService_UploadToForeignConversation(t *testing.T) {
	db := newTestStore(t)
	svc, err := NewImageService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")
	conv, err := db.CreateConversation(ctx, owner.ID, "", "")
	require.NoError(t, err)

	_, err = svc.Upload(ctx, other.ID, UploadRequest{Filename: "a.png", ContentType: "image/png", Data: []byte("x"), ConversationID: conv.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Upload(ctx, owner.ID, UploadRequest{Filename: "a.png", ContentType: "image/png", Data: []byte("x"), ConversationID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageService_ObjectStore(t *testing.T) {
	db := newTestStore(t)
	objects := newMemObjects()
	svc, err := NewImageService(db, objects)
	require.NoError(t, err)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	conv, err := db.CreateConversation(ctx, owner.ID, "", "")
	require.NoError(t, err)

	img, err := svc.Upload(ctx, owner.ID, UploadRequest{Filename: "a.webp", ContentType: "image/webp", Data: []byte("webp"), ConversationID: conv.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, objects.len())

	stored, err := db.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Data, "bytes live in the object store")
	assert.NotEmpty(t, stored.StorageKey)

	// a fresh service has a cold cache and must read through the object store
	cold, err := NewImageService(db, objects)
	require.NoError(t, err)
	_, data, err := cold.Load(ctx, owner.ID, img.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), data)

	generated, err := svc.PrepareGenerated(ctx, owner.ID, conv.ID, []tools.GeneratedImage{{ID: "gen-1", Filename: "g.png", ContentType: "image/png", Data: []byte("g")}})
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, "gen-1", generated[0].ID)
	assert.Equal(t, 2, objects.len())
	svc.Discard(generated)
	assert.Equal(t, 1, objects.len())

	convs := NewConversationService(db, svc)
	require.NoError(t, convs.Delete(ctx, owner.ID, conv.ID))
	assert.Equal(t, 0, objects.len())
}

func TestImageService_List(t *testing.T) {
	db := newTestStore(t)
	svc, err := NewImageService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()
	owner := createTestUser(t, db, "owner@example.com")
	for i := 0; i < 3; i++ {
		_, err := svc.Upload(ctx, owner.ID, UploadRequest{Filename: "a.png", ContentType: "image/png", Data: []byte{byte(i + 1)}})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, owner.ID, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Images, 1)
	assert.Equal(t, 2, page.Page)

	_, err = svc.List(ctx, owner.ID, "", 0, 10)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.List(ctx, owner.ID, "", 1, MaxPageSize+1)
	assert.ErrorIs(t, err, ErrValidation)
}
