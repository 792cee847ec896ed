// Package embedder provides text embedding clients for vector representations.
//
// The following implementations of Client are provided:
//   - OpenAIEmbedder: OpenAI, Azure OpenAI deployments and OpenAI-compatible services
//   - EmbedEverythingClient: local models through go-embedeverything
//   - CachedClient: a Badger-backed cache in front of any Client
//
// # Usage
//
//	client := embedder.NewOpenAIEmbedder(apiKey, embedder.Config{
//	    Model:     "text-embedding-3-small",
//	    BatchSize: 100,
//	})
//	cached, err := embedder.NewCachedClient(client, embedder.CacheOptions{
//	    Dir:   "/var/cache/episodic/embeddings",
//	    Model: "text-embedding-3-small",
//	})
//	vectors, err := cached.Embed(ctx, []string{"hello world"})
//
// Every vector returned has Dimensions() entries; providers that disagree
// produce ErrDimensionMismatch.
package embedder
