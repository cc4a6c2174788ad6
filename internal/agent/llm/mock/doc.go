// Package mock provides deterministic stand-ins for the embedding client.
//
// Example:
//
//	embedder := mock.NewMockEmbedder()
//	vectors, _ := embedder.EmbedDocuments(ctx, []string{"hello world"})
//
// The default vectors are derived from a hash of the text, so equal texts embed
// identically and a query equal to a chunk scores 1.0 against it.
package mock
