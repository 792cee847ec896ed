// Package episodic turns natural-language business events into a knowledge
// graph of entities and relationships.
//
// Each submitted episode runs through a fixed pipeline: an LLM extracts
// candidate entities, the candidates are resolved against the entities
// already in the graph (exact normalized name first, then embedding
// similarity within the same type), an LLM extracts relationships among the
// resolved entities, embeddings are computed for new or changed entities,
// and finally the episode itself is recorded as a vertex linked to every
// entity it touched.
//
// # Basic Usage
//
//	store, err := driver.NewNeo4jDriver("bolt://localhost:7687", "neo4j", "password", "neo4j")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	llmClient, err := nlp.NewOpenAIClient(nlp.NewLLMConfig().WithAPIKey(apiKey))
//	if err != nil {
//		log.Fatal(err)
//	}
//	embedderClient := embedder.NewOpenAIEmbedder(apiKey, embedder.Config{Model: "text-embedding-3-small"})
//
//	client, err := episodic.NewClient(store, llmClient, embedderClient, &episodic.Config{GroupID: "sales"}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
// # Adding Episodes
//
//	result, err := client.AddEpisode(ctx, "Alice bought a Widget from Acme", "crm", nil, nil)
//	if err != nil {
//		// only the episode vertex itself could not be written
//		log.Fatal(err)
//	}
//	if result.Status == types.EpisodePartial {
//		for _, w := range result.Warnings {
//			log.Println(w)
//		}
//	}
//
// Extraction failures never fail the call. They leave the episode
// partially completed and are reported in EpisodeResult.Warnings; callers
// always receive the episode id.
//
// # Searching
//
//	entities, err := client.SearchEntities(ctx, "acme", 10)
//	rels, err := client.SearchRelationships(ctx, "purchased", 10, nil)
//	sub, err := client.GetEntityNeighbors(ctx, "Alice", 2)
//
// # Error Handling
//
//   - ErrExtraction: an LLM extraction stage failed (warning)
//   - ErrResolutionDegraded: an entity lookup failed, the entity was created new (warning)
//   - ErrGraphWrite: a store write failed after retries; fatal only for the episode vertex
//   - ErrEmbeddingUnavailable: an entity was stored without a vector (warning)
//
// # Concurrency
//
// Distinct episodes may be processed concurrently. Two episodes introducing
// the same new entity at the same time can both create it; CompactDuplicates
// merges such duplicates afterwards.
package episodic
