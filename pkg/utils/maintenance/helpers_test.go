package maintenance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/types"
)

// scriptedClient replies with canned content in order.
type scriptedClient struct {
	replies []string
	err     error
	calls   int
	seen    [][]types.Message
}

func (s *scriptedClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return s.ChatWithStructuredOutput(ctx, messages, nil)
}

func (s *scriptedClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	s.calls++
	s.seen = append(s.seen, messages)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &types.Response{Content: reply}, nil
}

func (s *scriptedClient) Close() error { return nil }

const testDims = 8

// axisEmbedder returns preset vectors and a fresh orthogonal axis for any
// other text, so unrelated texts never look similar.
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
	return &axisEmbedder{vectors: preset}
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

// brokenFinder fails every lookup.
type brokenFinder struct {
	*driver.MemoryDriver
}

func (b brokenFinder) FindVertices(ctx context.Context, label string, filters *types.Properties) ([]*driver.Vertex, error) {
	return nil, errors.New("store unavailable")
}

var (
	day1 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
	day3 = day2.Add(24 * time.Hour)
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func storeEntity(ctx context.Context, store driver.GraphStore, e *types.Entity) error {
	v, err := driver.EntityToVertex(e)
	if err != nil {
		return err
	}
	_, err = store.UpsertVertex(ctx, v)
	return err
}
