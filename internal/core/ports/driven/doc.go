// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - VectorStore: Named collections of embedded chunks (SQLite, memory, Qdrant)
//   - Extractor: Pulls text and images out of source documents
//   - ExtractorRegistry: Selects the extractor for a source type
//   - PostProcessorPipeline: Splits extracted text into chunks
//   - ManifestStore: Per-source "already processed" markers
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Without it, ingestion and semantic retrieval are disabled.
//   - LLMService: Without it, answers fall back to listing the retrieved context.
//   - SearchProvider: Without any provider, web augmentation yields nothing.
//   - PromptStore: Without it, built-in Turkish prompts are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or extractor package
package driven
