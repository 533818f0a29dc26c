// Package knowledge implements the document side of the advisor: cleaning and
// chunking raw text, embedding chunks and queries through an external provider,
// and storing the resulting vectors in a namespace-partitioned index for
// similarity search.
//
// The package deliberately knows nothing about sessions, classification, or
// answer synthesis; those live in internal/advisor, which composes the pieces
// defined here.
package knowledge
