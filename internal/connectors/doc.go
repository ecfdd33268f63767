// Package connectors holds the document source connectors. A connector
// discovers source files and reports changes to them; the ingestion pipeline
// does the rest.
package connectors
