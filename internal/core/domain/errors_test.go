package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrIngestInProgress", ErrIngestInProgress},
		{"ErrLLMUnavailable", ErrLLMUnavailable},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrDependencyMissing", ErrDependencyMissing},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
		{"ErrEmptyEmbedding", ErrEmptyEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrNotFound(t *testing.T) {
	assert.Equal(t, "not found", ErrNotFound.Error())
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrInvalidInput))
}

func TestErrDimensionMismatch_Wrapped(t *testing.T) {
	err := fmt.Errorf("collection %q: %w (want 384, got 768)", "company_documents", ErrDimensionMismatch)

	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.False(t, errors.Is(err, ErrDependencyMissing))
	assert.Contains(t, err.Error(), "want 384")
}

func TestErrDependencyMissing_DistinctFromInvalidInput(t *testing.T) {
	err := fmt.Errorf("pdftotext: %w", ErrDependencyMissing)

	assert.True(t, errors.Is(err, ErrDependencyMissing))
	assert.False(t, errors.Is(err, ErrInvalidInput))
}

// TestErrors_Uniqueness ensures every sentinel is distinct.
func TestErrors_Uniqueness(t *testing.T) {
	errs := []error{
		ErrNotFound, ErrInvalidInput, ErrUnsupportedType, ErrIngestInProgress,
		ErrLLMUnavailable, ErrEmbeddingUnavailable, ErrDependencyMissing,
		ErrDimensionMismatch, ErrEmptyEmbedding,
	}

	for i := range errs {
		for j := range errs {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(errs[i], errs[j]), "%v should not match %v", errs[i], errs[j])
		}
	}
}
