// Package services implements the driving port interfaces.
// Services contain the ingestion, retrieval and answer logic and
// orchestrate calls to driven ports (adapters).
package services
