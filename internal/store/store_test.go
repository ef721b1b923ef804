package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnj.com/jewelry-designer/internal/artifact"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, email string) *User {
	t.Helper()
	u := &User{Email: email, PasswordHash: "hash", Name: "Lan"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createUser(t, s, "Lan@Example.com ")
	assert.Equal(t, "lan@example.com", u.Email)
	assert.True(t, u.IsActive)

	err := s.CreateUser(ctx, &User{Email: "lan@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.GetUserByEmail(ctx, "LAN@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUpdateAndDeactivateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	age := 31
	u.Age = &age
	u.Region = "south"
	require.NoError(t, s.UpdateUser(ctx, u))
	require.NoError(t, s.DeactivateUser(ctx, u.ID))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Age)
	assert.Equal(t, 31, *got.Age)
	assert.Equal(t, "south", got.Region)
	assert.False(t, got.IsActive)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendTurn_OrderAndLatestArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	conv, err := s.CreateConversation(ctx, u.ID, "", "")
	require.NoError(t, err)

	latest, err := s.LatestArtifact(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	design := artifact.NewDesign(artifact.Design{Name: "Lotus", Properties: artifact.Properties{Metal: "silver"}})
	pending := &Image{UserID: u.ID, ConversationID: &conv.ID, Filename: "front.png", ContentType: "image/png", Data: "aGk="}
	require.NoError(t, s.AppendTurn(ctx, conv.ID, []*Image{pending},
		&Message{Role: RoleUser, Content: "a silver ring"},
		&Message{Role: RoleAssistant, Content: "here it is", Artifact: design, Images: []string{pending.ID},
			ToolCalls: []ToolCallRecord{{Name: "generate_design", Arguments: map[string]any{"description": "ring"}, Success: true}},
			Meta:      map[string]any{"iterations": 2}},
	))
	require.NoError(t, s.AppendTurn(ctx, conv.ID, nil,
		&Message{Role: RoleUser, Content: "thanks"},
		&Message{Role: RoleAssistant, Content: "welcome"},
	))

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "generate_design", msgs[1].ToolCalls[0].Name)
	assert.Equal(t, []string{pending.ID}, msgs[1].Images)

	latest, err = s.LatestArtifact(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, design.ID, latest.ID)

	img, err := s.GetImage(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "aGk=", img.Data)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.Before(conv.UpdatedAt))
}

func TestAppendTurn_RollsBackOnMissingConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AppendTurn(ctx, "missing", nil, &Message{Role: RoleUser, Content: "hi"})
	assert.True(t, errors.Is(err, ErrNotFound))

	msgs, err := s.ListMessages(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	conv, err := s.CreateConversation(ctx, u.ID, "t", "")
	require.NoError(t, err)

	img := &Image{UserID: u.ID, ConversationID: &conv.ID, Filename: "a.png", ContentType: "image/png", StorageKey: "images/a"}
	require.NoError(t, s.CreateImage(ctx, img))
	require.NoError(t, s.AppendTurn(ctx, conv.ID, nil, &Message{Role: RoleUser, Content: "hi"}))

	keys, err := s.DeleteConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"images/a"}, keys)

	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetImage(ctx, img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.DeleteConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsAndImages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	other := createUser(t, s, "b@example.com")

	var convID string
	for i := 0; i < 3; i++ {
		c, err := s.CreateConversation(ctx, u.ID, "", "")
		require.NoError(t, err)
		convID = c.ID
	}
	_, err := s.CreateConversation(ctx, other.ID, "", "")
	require.NoError(t, err)

	convs, total, err := s.ListConversations(ctx, u.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, convs, 2)

	require.NoError(t, s.CreateImage(ctx, &Image{UserID: u.ID, ConversationID: &convID, Filename: "a.png", ContentType: "image/png", Data: "x"}))
	require.NoError(t, s.CreateImage(ctx, &Image{UserID: u.ID, Filename: "b.png", ContentType: "image/png", Data: "y"}))

	all, total, err := s.ListImages(ctx, u.ID, nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	filtered, total, err := s.ListImages(ctx, u.ID, &convID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a.png", filtered[0].Filename)
}

func TestIngestProductsFromDir(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("a.json", `{"id":"p1","name":"Silver band","description":"plain","properties":{"jewelry_type":"ring","metal":"silver"},"price":990000}`)
	write("b.json", `[{"id":"p2","name":"Pearl drop","properties":{"jewelry_type":"earring","gemstone":"pearl"},"price":1500000},
		{"id":"p3","name":"Bronze cuff","properties":{"metal":"bronze"}}]`)
	write("c.json", `not json`)
	write("notes.txt", `ignored`)

	n, err := s.IngestProductsFromDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	products, err := s.GetAllProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "silver", products[0].Properties.Metal)
	assert.Equal(t, "pearl", products[1].Properties.Gemstone)
}
