package driver

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
)

// MemoryDriver is a GraphStore held in process memory. It backs tests and
// the "memory" database driver; data does not survive a restart.
type MemoryDriver struct {
	mu       sync.RWMutex
	vertices map[string]*Vertex
	edges    map[string]*Edge
	order    []string // edge ids in insertion order
	closed   bool
}

// NewMemoryDriver returns an empty in-memory store.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		vertices: make(map[string]*Vertex),
		edges:    make(map[string]*Edge),
	}
}

func (m *MemoryDriver) Provider() GraphProvider {
	return GraphProviderMemory
}

func (m *MemoryDriver) UpsertVertex(ctx context.Context, v *Vertex) (string, error) {
	if err := validateVertex(v); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrStoreClosed
	}

	id := v.ID
	if id == "" {
		id = utils.GenerateUUID()
	}
	stored := cloneVertex(v)
	stored.ID = id
	m.vertices[id] = stored
	return id, nil
}

func (m *MemoryDriver) GetVertex(ctx context.Context, id string) (*Vertex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	v, ok := m.vertices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	return cloneVertex(v), nil
}

func (m *MemoryDriver) FindVertices(ctx context.Context, label string, filters *types.Properties) ([]*Vertex, error) {
	if !ValidLabel(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Vertex
	for _, v := range m.vertices {
		if v.Label != label {
			continue
		}
		if matchesFilters(filters, func(k string) (types.PropertyValue, bool) { return filterValue(v, k) }) {
			out = append(out, cloneVertex(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDriver) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	v, ok := m.vertices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	v.Embedding = slices.Clone(embedding)
	return nil
}

func (m *MemoryDriver) DeleteVertex(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.vertices, id)
	m.order = slices.DeleteFunc(m.order, func(eid string) bool {
		e := m.edges[eid]
		if e.From == id || e.To == id {
			delete(m.edges, eid)
			return true
		}
		return false
	})
	return nil
}

func (m *MemoryDriver) UpsertEdge(ctx context.Context, e *Edge) (string, error) {
	if err := validateEdge(e); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrStoreClosed
	}
	if _, ok := m.vertices[e.From]; !ok {
		return "", fmt.Errorf("%w: %s", ErrVertexNotFound, e.From)
	}
	if _, ok := m.vertices[e.To]; !ok {
		return "", fmt.Errorf("%w: %s", ErrVertexNotFound, e.To)
	}

	id := e.ID
	if id == "" {
		id = utils.GenerateUUID()
	}
	if _, exists := m.edges[id]; !exists {
		m.order = append(m.order, id)
	}
	stored := cloneEdge(e)
	stored.ID = id
	m.edges[id] = stored
	return id, nil
}

func (m *MemoryDriver) FindEdges(ctx context.Context, label string, filters *types.Properties) ([]*Edge, error) {
	if !ValidLabel(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Edge
	for _, id := range m.order {
		e := m.edges[id]
		if e.Label != label {
			continue
		}
		if matchesFilters(filters, func(k string) (types.PropertyValue, bool) { return edgeFilterValue(e, k) }) {
			out = append(out, cloneEdge(e))
		}
	}
	return out, nil
}

func (m *MemoryDriver) RedirectEdges(ctx context.Context, fromID, toID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.vertices[toID]; !ok {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, toID)
	}

	m.order = slices.DeleteFunc(m.order, func(eid string) bool {
		e := m.edges[eid]
		if e.From == fromID {
			e.From = toID
		}
		if e.To == fromID {
			e.To = toID
		}
		if e.From == e.To && e.From == toID {
			delete(m.edges, eid)
			return true
		}
		return false
	})
	return nil
}

func (m *MemoryDriver) Traverse(ctx context.Context, startID string, maxHops int, edgeLabels []string) (*Subgraph, error) {
	if maxHops < 1 {
		maxHops = 1
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	start, ok := m.vertices[startID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, startID)
	}

	adjacent := make(map[string][]*Edge)
	for _, id := range m.order {
		e := m.edges[id]
		if len(edgeLabels) > 0 && !slices.Contains(edgeLabels, e.Label) {
			continue
		}
		adjacent[e.From] = append(adjacent[e.From], e)
		adjacent[e.To] = append(adjacent[e.To], e)
	}

	sg := &Subgraph{Start: cloneVertex(start)}
	seenVertex := map[string]bool{startID: true}
	seenEdge := make(map[string]bool)

	type frontier struct {
		id   string
		path []string
	}
	level := []frontier{{id: startID}}
	for hop := 0; hop < maxHops && len(level) > 0; hop++ {
		var nextLevel []frontier
		for _, f := range level {
			for _, e := range adjacent[f.id] {
				if slices.Contains(f.path, e.ID) {
					continue
				}
				other := e.To
				if other == f.id {
					other = e.From
				}
				path := append(slices.Clone(f.path), e.ID)
				if len(sg.Paths) < MaxTraversalPaths {
					sg.Paths = append(sg.Paths, path)
				}
				if !seenEdge[e.ID] {
					seenEdge[e.ID] = true
					sg.Edges = append(sg.Edges, cloneEdge(e))
				}
				if !seenVertex[other] {
					seenVertex[other] = true
					sg.Vertices = append(sg.Vertices, cloneVertex(m.vertices[other]))
					nextLevel = append(nextLevel, frontier{id: other, path: path})
				}
			}
		}
		level = nextLevel
	}
	return sg, nil
}

func (m *MemoryDriver) CreateIndices(ctx context.Context) error {
	return nil
}

func (m *MemoryDriver) GetStats(ctx context.Context, groupID string) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	stats := &GraphStats{
		VerticesByLabel: make(map[string]int64),
		EdgesByLabel:    make(map[string]int64),
		LastUpdated:     time.Now(),
	}
	for _, v := range m.vertices {
		if v.GroupID == groupID {
			stats.VerticesByLabel[v.Label]++
		}
	}
	for _, e := range m.edges {
		if e.GroupID == groupID {
			stats.EdgesByLabel[e.Label]++
		}
	}
	return stats, nil
}

func (m *MemoryDriver) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

func (m *MemoryDriver) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneVertex(v *Vertex) *Vertex {
	c := *v
	c.Properties = v.Properties.Clone()
	c.Embedding = slices.Clone(v.Embedding)
	return &c
}

func cloneEdge(e *Edge) *Edge {
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}
