package driver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/soundprediction/episodic/pkg/types"
	"github.com/soundprediction/episodic/pkg/utils"
)

// Neo4jDriver implements GraphStore for Neo4j databases.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jDriver creates a new Neo4j driver instance.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:   driver,
		database: database,
	}, nil
}

func (n *Neo4jDriver) Provider() GraphProvider {
	return GraphProviderNeo4j
}

func (n *Neo4jDriver) session(ctx context.Context) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
}

// UpsertVertex merges on uuid and overwrites the given properties.
func (n *Neo4jDriver) UpsertVertex(ctx context.Context, v *Vertex) (string, error) {
	if err := validateVertex(v); err != nil {
		return "", err
	}
	id := v.ID
	if id == "" {
		id = utils.GenerateUUID()
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MERGE (n:%s {uuid: $uuid})
			SET n += $properties, n.group_id = $group_id
		`, v.Label)
		params := map[string]any{
			"uuid":       id,
			"group_id":   v.GroupID,
			"properties": v.Properties.ToMap(),
		}
		if len(v.Embedding) > 0 {
			query += ", n.embedding = $embedding"
			params["embedding"] = float32sToAny(v.Embedding)
		}
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert vertex %s: %w", id, err)
	}
	return id, nil
}

func (n *Neo4jDriver) GetVertex(ctx context.Context, id string) (*Vertex, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n {uuid: $uuid}) RETURN n LIMIT 1`, map[string]any{"uuid": id})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, err := MustRecordSlice(result, "vertex")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	value, _ := records[0].Get("n")
	node, err := MustDBNode(value, "n")
	if err != nil {
		return nil, err
	}
	return vertexFromDBNode(node)
}

// SetEmbedding writes only n.embedding, leaving properties that other
// writers may have changed since the vector was computed.
func (n *Neo4jDriver) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n {uuid: $uuid})
			SET n.embedding = $embedding
			RETURN n.uuid AS uuid
		`, map[string]any{
			"uuid":      id,
			"embedding": float32sToAny(embedding),
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to set embedding of %s: %w", id, err)
	}

	records, err := MustRecordSlice(result, "embedding")
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	return nil
}

// FindVertices matches filters with dynamic property access so keys never
// end up in the query text.
func (n *Neo4jDriver) FindVertices(ctx context.Context, label string, filters *types.Properties) ([]*Vertex, error) {
	if !ValidLabel(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	where, params := filterClause("n", filters)

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`MATCH (n:%s) %s RETURN n ORDER BY n.uuid`, label, where)
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find %s vertices: %w", label, err)
	}

	records, err := MustRecordSlice(result, "vertices")
	if err != nil {
		return nil, err
	}
	out := make([]*Vertex, 0, len(records))
	for _, record := range records {
		value, _ := record.Get("n")
		node, ok := AsDBNode(value)
		if !ok {
			continue
		}
		v, err := vertexFromDBNode(node)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (n *Neo4jDriver) DeleteVertex(ctx context.Context, id string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n {uuid: $uuid}) DETACH DELETE n`, map[string]any{"uuid": id})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// UpsertEdge creates a new relationship, or updates one matched by uuid.
func (n *Neo4jDriver) UpsertEdge(ctx context.Context, e *Edge) (string, error) {
	if err := validateEdge(e); err != nil {
		return "", err
	}
	id := e.ID
	if id == "" {
		id = utils.GenerateUUID()
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (s {uuid: $from})
			MATCH (t {uuid: $to})
			MERGE (s)-[r:%s {uuid: $uuid}]->(t)
			SET r += $properties, r.group_id = $group_id
			RETURN r.uuid AS uuid
		`, e.Label)
		res, err := tx.Run(ctx, query, map[string]any{
			"from":       e.From,
			"to":         e.To,
			"uuid":       id,
			"group_id":   e.GroupID,
			"properties": e.Properties.ToMap(),
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert edge %s: %w", id, err)
	}

	records, err := MustRecordSlice(result, "edge")
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w: edge endpoints %s -> %s", ErrVertexNotFound, e.From, e.To)
	}
	return id, nil
}

func (n *Neo4jDriver) FindEdges(ctx context.Context, label string, filters *types.Properties) ([]*Edge, error) {
	if !ValidLabel(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	where, params := filterClause("r", filters)

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (s)-[r:%s]->(t) %s
			RETURN r, s.uuid AS source, t.uuid AS target
			ORDER BY r.created_at
		`, label, where)
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find %s edges: %w", label, err)
	}

	records, err := MustRecordSlice(result, "edges")
	if err != nil {
		return nil, err
	}
	out := make([]*Edge, 0, len(records))
	for _, record := range records {
		value, _ := record.Get("r")
		rel, ok := AsDBRelationship(value)
		if !ok {
			continue
		}
		source, _ := record.Get("source")
		target, _ := record.Get("target")
		from, _ := AsString(source)
		to, _ := AsString(target)
		edge, err := edgeFromDBRelationship(rel, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, edge)
	}
	return out, nil
}

// RedirectEdges recreates every known edge type of fromID on toID.
// Cypher cannot change a relationship's endpoints in place.
func (n *Neo4jDriver) RedirectEdges(ctx context.Context, fromID, toID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"from": fromID, "to": toID}
		for _, label := range KnownEdgeLabels {
			queries := []string{
				fmt.Sprintf(`
					MATCH (old {uuid: $from})-[r:%[1]s]->(other)
					MATCH (keep {uuid: $to})
					WHERE other.uuid <> $to
					CREATE (keep)-[r2:%[1]s]->(other)
					SET r2 = properties(r)
					DELETE r
				`, label),
				fmt.Sprintf(`
					MATCH (other)-[r:%[1]s]->(old {uuid: $from})
					MATCH (keep {uuid: $to})
					WHERE other.uuid <> $to
					CREATE (other)-[r2:%[1]s]->(keep)
					SET r2 = properties(r)
					DELETE r
				`, label),
				fmt.Sprintf(`
					MATCH (old {uuid: $from})-[r:%s]-(keep {uuid: $to})
					DELETE r
				`, label),
			}
			for _, q := range queries {
				res, err := tx.Run(ctx, q, params)
				if err != nil {
					return nil, err
				}
				if _, err := res.Consume(ctx); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to redirect edges from %s to %s: %w", fromID, toID, err)
	}
	return nil
}

// Traverse returns paths of 1..maxHops edges from startID in either direction.
func (n *Neo4jDriver) Traverse(ctx context.Context, startID string, maxHops int, edgeLabels []string) (*Subgraph, error) {
	if maxHops < 1 {
		maxHops = 1
	}
	for _, l := range edgeLabels {
		if !ValidLabel(l) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, l)
		}
	}

	start, err := n.GetVertex(ctx, startID)
	if err != nil {
		return nil, err
	}

	relPattern := fmt.Sprintf("[*1..%d]", maxHops)
	if len(edgeLabels) > 0 {
		relPattern = fmt.Sprintf("[:%s*1..%d]", strings.Join(edgeLabels, "|"), maxHops)
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH p = (start {uuid: $uuid})-%s-(other)
			RETURN p
			LIMIT $limit
		`, relPattern)
		res, err := tx.Run(ctx, query, map[string]any{
			"uuid":  startID,
			"limit": MaxTraversalPaths,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to traverse from %s: %w", startID, err)
	}

	records, err := MustRecordSlice(result, "paths")
	if err != nil {
		return nil, err
	}

	sg := &Subgraph{Start: start}
	seenVertex := map[string]bool{startID: true}
	seenEdge := make(map[string]bool)
	for _, record := range records {
		value, _ := record.Get("p")
		path, ok := value.(dbtype.Path)
		if !ok {
			continue
		}

		uuids := make(map[string]string, len(path.Nodes))
		for _, node := range path.Nodes {
			v, err := vertexFromDBNode(node)
			if err != nil {
				return nil, err
			}
			uuids[node.ElementId] = v.ID
			if !seenVertex[v.ID] {
				seenVertex[v.ID] = true
				sg.Vertices = append(sg.Vertices, v)
			}
		}

		walk := make([]string, 0, len(path.Relationships))
		for _, rel := range path.Relationships {
			edge, err := edgeFromDBRelationship(rel, uuids[rel.StartElementId], uuids[rel.EndElementId])
			if err != nil {
				return nil, err
			}
			walk = append(walk, edge.ID)
			if !seenEdge[edge.ID] {
				seenEdge[edge.ID] = true
				sg.Edges = append(sg.Edges, edge)
			}
		}
		sg.Paths = append(sg.Paths, walk)
	}
	return sg, nil
}

// CreateIndices creates uniqueness constraints on uuid and lookup indices
// for entity resolution.
func (n *Neo4jDriver) CreateIndices(ctx context.Context) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT entity_uuid IF NOT EXISTS FOR (n:Entity) REQUIRE n.uuid IS UNIQUE",
		"CREATE CONSTRAINT episode_uuid IF NOT EXISTS FOR (n:Episode) REQUIRE n.uuid IS UNIQUE",
		"CREATE INDEX entity_name_type IF NOT EXISTS FOR (n:Entity) ON (n.group_id, n.normalized_name, n.entity_type)",
		"CREATE INDEX entity_group IF NOT EXISTS FOR (n:Entity) ON (n.group_id)",
		"CREATE INDEX episode_group IF NOT EXISTS FOR (n:Episode) ON (n.group_id)",
		"CREATE INDEX relates_to_group IF NOT EXISTS FOR ()-[r:RELATES_TO]-() ON (r.group_id)",
	}

	for _, stmt := range statements {
		_, err := session.Run(ctx, stmt, nil)
		if err != nil {
			if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "An equivalent") {
				return err
			}
		}
	}

	return nil
}

func (n *Neo4jDriver) GetStats(ctx context.Context, groupID string) (*GraphStats, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		vertexRes, err := tx.Run(ctx, `
			MATCH (n {group_id: $groupID})
			UNWIND labels(n) AS label
			RETURN label, count(DISTINCT n) AS total
		`, map[string]any{"groupID": groupID})
		if err != nil {
			return nil, err
		}
		vertexRecords, err := vertexRes.Collect(ctx)
		if err != nil {
			return nil, err
		}

		edgeRes, err := tx.Run(ctx, `
			MATCH ()-[r {group_id: $groupID}]->()
			RETURN type(r) AS label, count(r) AS total
		`, map[string]any{"groupID": groupID})
		if err != nil {
			return nil, err
		}
		edgeRecords, err := edgeRes.Collect(ctx)
		if err != nil {
			return nil, err
		}

		return [2][]*db.Record{vertexRecords, edgeRecords}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect graph stats: %w", err)
	}

	data := result.([2][]*db.Record)
	stats := &GraphStats{
		VerticesByLabel: countsByLabel(data[0]),
		EdgesByLabel:    countsByLabel(data[1]),
		LastUpdated:     time.Now(),
	}
	return stats, nil
}

func (n *Neo4jDriver) HealthCheck(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

func (n *Neo4jDriver) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

func countsByLabel(records []*db.Record) map[string]int64 {
	out := make(map[string]int64, len(records))
	for _, record := range records {
		labelValue, _ := record.Get("label")
		totalValue, _ := record.Get("total")
		label, ok := AsString(labelValue)
		if !ok {
			continue
		}
		total, _ := AsInt64(totalValue)
		out[label] = total
	}
	return out
}

// filterClause renders `WHERE alias[$k0] = $v0 AND ...` for filters.
func filterClause(alias string, filters *types.Properties) (string, map[string]any) {
	params := make(map[string]any)
	keys := filters.Keys()
	if len(keys) == 0 {
		return "", params
	}
	conds := make([]string, 0, len(keys))
	for i, k := range keys {
		v, _ := filters.Get(k)
		kp, vp := fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i)
		conds = append(conds, fmt.Sprintf("%s[$%s] = $%s", alias, kp, vp))
		params[kp] = k
		params[vp] = v.Any()
	}
	return "WHERE " + strings.Join(conds, " AND "), params
}

func vertexFromDBNode(node dbtype.Node) (*Vertex, error) {
	v := &Vertex{Properties: types.NewProperties()}
	if len(node.Labels) > 0 {
		v.Label = node.Labels[0]
		if slices.Contains(node.Labels, LabelEntity) {
			v.Label = LabelEntity
		}
	}
	for _, k := range sortedPropKeys(node.Props) {
		raw := node.Props[k]
		switch k {
		case KeyUUID:
			v.ID, _ = AsString(raw)
		case KeyGroupID:
			v.GroupID, _ = AsString(raw)
		case KeyEmbedding:
			v.Embedding = anyToFloat32s(raw)
		default:
			pv, err := propertyFromDB(raw)
			if err != nil {
				return nil, fmt.Errorf("vertex property %q: %w", k, err)
			}
			v.Properties.Set(k, pv)
		}
	}
	return v, nil
}

func edgeFromDBRelationship(rel dbtype.Relationship, from, to string) (*Edge, error) {
	e := &Edge{
		Label:      rel.Type,
		From:       from,
		To:         to,
		Properties: types.NewProperties(),
	}
	for _, k := range sortedPropKeys(rel.Props) {
		raw := rel.Props[k]
		switch k {
		case KeyUUID:
			e.ID, _ = AsString(raw)
		case KeyGroupID:
			e.GroupID, _ = AsString(raw)
		default:
			pv, err := propertyFromDB(raw)
			if err != nil {
				return nil, fmt.Errorf("edge property %q: %w", k, err)
			}
			e.Properties.Set(k, pv)
		}
	}
	return e, nil
}

// propertyFromDB converts a value returned by the driver. Temporal values
// come back as time.Time or one of the dbtype local types.
func propertyFromDB(raw any) (types.PropertyValue, error) {
	switch t := raw.(type) {
	case dbtype.LocalDateTime:
		return types.TimestampValue(t.Time()), nil
	case dbtype.Date:
		return types.TimestampValue(t.Time()), nil
	}
	v, err := types.ValueOf(raw)
	if err != nil && errors.Is(err, types.ErrUnsupportedPropValue) {
		return types.StringValue(fmt.Sprint(raw)), nil
	}
	return v, err
}

func sortedPropKeys(props map[string]any) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func float32sToAny(v []float32) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func anyToFloat32s(raw any) []float32 {
	items, ok := AsAnySlice(raw)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(items))
	for _, item := range items {
		f, ok := AsFloat64(item)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
