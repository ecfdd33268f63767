package driven

import "github.com/custodia-labs/bilgi/internal/core/domain"

// ManifestStore persists the per-source manifests that mark completed ingestions.
type ManifestStore interface {
	// Exists reports whether a manifest has been written for the source.
	Exists(source string) (bool, error)

	// Load returns the manifest for a source.
	// Returns domain.ErrNotFound if there is none.
	Load(source string) (*domain.Manifest, error)

	// Save writes the manifest, replacing any previous one.
	Save(m domain.Manifest) error

	// Delete removes the manifest and the images saved for the source.
	Delete(source string) error
}
