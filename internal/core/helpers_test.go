package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/blob"
	"pnj.com/jewelry-designer/internal/config"
	"pnj.com/jewelry-designer/internal/render"
	"pnj.com/jewelry-designer/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func withJWTSecret(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig.JWTSecret = "test-secret"
	t.Cleanup(func() { config.AppConfig = prev })
}

func createTestUser(t *testing.T, s *store.Store, email string) *store.User {
	t.Helper()
	u := &store.User{Email: email, PasswordHash: "hash", Name: "Lan"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

// scriptedGateway replays responses in order; the last one repeats. It records every request.
type scriptedGateway struct {
	mu        sync.Mutex
	responses []*Response
	err       error
	requests  []*Request
}

func (g *scriptedGateway) Generate(ctx context.Context, req *Request) (*Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snapshot := *req
	snapshot.History = append([]Turn(nil), req.History...)
	g.requests = append(g.requests, &snapshot)
	if g.err != nil {
		return nil, g.err
	}
	i := len(g.requests) - 1
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func textReply(text string) *Response {
	return &Response{Text: text}
}

func callReply(name string, args map[string]any) *Response {
	return &Response{Calls: []ToolCall{{Name: name, Args: args}}}
}

type stubDesigner struct {
	design *artifact.Design
	err    error
	briefs []DesignBrief
}

func (d *stubDesigner) ConceptDesign(ctx context.Context, brief DesignBrief) (*artifact.Design, error) {
	d.briefs = append(d.briefs, brief)
	if d.err != nil {
		return nil, d.err
	}
	out := *d.design
	return &out, nil
}

type stubRenderer struct {
	images []render.Image
	err    error
	refs   int
}

func (r *stubRenderer) Render(ctx context.Context, design *artifact.Design, refs []render.Reference) ([]render.Image, error) {
	r.refs = len(refs)
	return r.images, r.err
}

type stubTitler struct {
	title string
	done  chan struct{}
}

func (s *stubTitler) GenerateTitleForChat(ctx context.Context, summary string) (string, error) {
	defer close(s.done)
	return s.title, nil
}

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Put(ctx context.Context, key, contentType string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), content...)
	return nil
}

func (m *memObjects) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return b, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return blob.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memObjects) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var errModelDown = errors.New("connection refused")
