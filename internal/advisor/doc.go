// Package advisor implements the question answering pipeline: ambiguity
// classification, retrieval over the knowledge index, grounded synthesis
// with an LLM, and conversation memory updates.
//
// Advisor is the entry point. Answer runs the full pipeline for one user
// message; Ingest adds source material to the knowledge index. Failures
// surface as *ErrorResponse values carrying a stable machine-readable kind.
package advisor
