// Package search answers read-only queries over the episodic graph.
//
// # Entity search
//
// SearchEntities embeds the query once and scores every entity of a group:
// cosine similarity when both the query and the entity carry a vector, and
// a keyword score otherwise (1.0 exact normalized name, 0.75 name contains
// the query, 0.5 description contains the query). An exact name hit is
// boosted just above 1 so that it outranks any semantic score. Entities
// whose only evidence is a semantic score below Config.MinSemanticScore are
// left out. When the query cannot be embedded the search is keyword-only.
//
// # Relationship search
//
// SearchRelationships matches the query case-insensitively against the
// relationship type, description and both endpoint names. An anchor entity
// restricts the candidates to edges within MaxHops of that entity.
//
// # Usage
//
//	searcher := search.NewSearcher(store, embedder, search.DefaultConfig())
//
//	entities, err := searcher.SearchEntities(ctx, "acme", 10, groupID)
//	rels, err := searcher.SearchRelationships(ctx, "purchased", 10,
//	    &search.RelationshipSearchOptions{AnchorEntity: "Alice", MaxHops: 2}, groupID)
//	sub, err := searcher.Neighbors(ctx, "Alice", 2, groupID)
//
// Nothing in this package writes to the store.
package search
