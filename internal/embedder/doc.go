// Package embedder generates vector embeddings for symbol text. Providers
// share one interface: Ollama for local models, OpenAI for hosted, and a
// deterministic local fallback for tests and offline use. All providers
// truncate long inputs, retry transient failures with exponential backoff
// and cache results by content hash.
package embedder
