package episodic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

// fakeLLM answers entity and relationship prompts through separate hooks.
// A nil hook replies with an empty list.
type fakeLLM struct {
	mu            sync.Mutex
	entities      func(ctx context.Context, prompt string) (string, error)
	relationships func(ctx context.Context, prompt string) (string, error)
	entityCalls   int
	relCalls      int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return f.ChatWithStructuredOutput(ctx, messages, nil)
}

func (f *fakeLLM) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	isRel := strings.Contains(messages[0].Content, "relationships between entities")
	prompt := messages[len(messages)-1].Content

	f.mu.Lock()
	hook, empty := f.entities, `{"entities": []}`
	if isRel {
		f.relCalls++
		hook, empty = f.relationships, `{"relationships": []}`
	} else {
		f.entityCalls++
	}
	f.mu.Unlock()

	if hook == nil {
		return &types.Response{Content: empty}, nil
	}
	content, err := hook(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &types.Response{Content: content}, nil
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entityCalls, f.relCalls
}

func reply(content string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return content, nil }
}

// waitForCancel blocks until ctx ends, signalling entered first.
func waitForCancel(entered chan<- struct{}) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		if entered != nil {
			entered <- struct{}{}
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
}

const testDims = 16

// axisEmbedder returns preset vectors, and a fresh orthogonal axis for any
// other text.
type axisEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	next    int
	err     error
}

func newAxisEmbedder(preset map[string][]float32) *axisEmbedder {
	if preset == nil {
		preset = make(map[string][]float32)
	}
	return &axisEmbedder{vectors: preset, next: 2}
}

func (a *axisEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := a.vectors[t]
		if !ok {
			v = make([]float32, testDims)
			v[a.next%testDims] = 1
			a.next++
			a.vectors[t] = v
		}
		out[i] = v
	}
	return out, nil
}

func (a *axisEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := a.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (a *axisEmbedder) Dimensions() int { return testDims }
func (a *axisEmbedder) Close() error    { return nil }

func axis(i int, extra ...float32) []float32 {
	v := make([]float32, testDims)
	v[i] = 1
	copy(v[i+1:], extra)
	return v
}

// failingStore rejects writes of one vertex label or edge label.
type failingStore struct {
	*driver.MemoryDriver
	vertexLabel string
	edgeLabel   string
}

var errStoreDown = errors.New("store unavailable")

func (f *failingStore) UpsertVertex(ctx context.Context, v *driver.Vertex) (string, error) {
	if v.Label == f.vertexLabel {
		return "", errStoreDown
	}
	return f.MemoryDriver.UpsertVertex(ctx, v)
}

func (f *failingStore) UpsertEdge(ctx context.Context, e *driver.Edge) (string, error) {
	if e.Label == f.edgeLabel {
		return "", errStoreDown
	}
	return f.MemoryDriver.UpsertEdge(ctx, e)
}

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, store driver.GraphStore, llm *fakeLLM, emb *axisEmbedder, configure func(*Config)) *Client {
	t.Helper()
	cfg := &Config{
		LLMTimeout:      time.Second,
		GraphRetryDelay: time.Millisecond,
	}
	if configure != nil {
		configure(cfg)
	}
	c, err := newClientWith(store, llm, emb, cfg)
	require.NoError(t, err)
	c.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// newClientWith keeps a nil *axisEmbedder from becoming a non-nil interface.
func newClientWith(store driver.GraphStore, llm *fakeLLM, emb *axisEmbedder, cfg *Config) (*Client, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if emb == nil {
		return NewClient(store, llm, nil, cfg, logger)
	}
	return NewClient(store, llm, emb, cfg, logger)
}

func storedEntities(t *testing.T, store driver.GraphStore) []*types.Entity {
	t.Helper()
	entities, err := maintenance.NewMaintenanceUtils(store).GetEntities(context.Background(), DefaultGroupID)
	require.NoError(t, err)
	return entities
}

func entityNamed(t *testing.T, entities []*types.Entity, name string) *types.Entity {
	t.Helper()
	for _, e := range entities {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("entity %q not found", name)
	return nil
}

func edgesLabelled(t *testing.T, store driver.GraphStore, label string) []*driver.Edge {
	t.Helper()
	edges, err := store.FindEdges(context.Background(), label, driver.GroupFilter(DefaultGroupID))
	require.NoError(t, err)
	return edges
}
