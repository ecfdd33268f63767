package cli

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

func stubToolChecks(t *testing.T, pdfErr, ocrErr error) {
	t.Helper()
	origPDF, origOCR := checkPDFTools, checkOCRTools
	checkPDFTools = func() error { return pdfErr }
	checkOCRTools = func() error { return ocrErr }
	t.Cleanup(func() { checkPDFTools, checkOCRTools = origPDF, origOCR })
}

func TestVersionCmd_Executes(t *testing.T) {
	setupTestServices(t)
	stubToolChecks(t, nil, fmt.Errorf("%w: tesseract not found in PATH", domain.ErrDependencyMissing))
	originalVersion := version
	defer func() { version = originalVersion }()
	SetVersion("1.4.0")

	out, err := executeCommand(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "bilgi version 1.4.0\n")
	assert.Contains(t, out, "  store:      sqlite (default path)\n")
	assert.Contains(t, out, "  embedding:  ollama "+domain.DefaultEmbeddingModels()[domain.AIProviderOllama]+"\n")
	assert.Contains(t, out, "  llm:        not configured\n")
	assert.Contains(t, out, "  pdf tools:  ok\n")
	assert.Contains(t, out, "  ocr tools:  required dependency missing: tesseract not found in PATH\n")
}

func TestVersionCmd_WithoutSettings(t *testing.T) {
	SetServices(&Services{})
	stubToolChecks(t, nil, nil)

	out, err := executeCommand(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "bilgi version")
	assert.NotContains(t, out, "store:")
	assert.Contains(t, out, "  ocr tools:  ok\n")
}

func TestStoreLabel(t *testing.T) {
	assert.Equal(t, "qdrant http://10.0.0.5:6333",
		storeLabel(domain.StoreSettings{Backend: domain.StoreBackendQdrant, URL: "http://10.0.0.5:6333"}))
	assert.Equal(t, "memory", storeLabel(domain.StoreSettings{Backend: domain.StoreBackendMemory}))
	assert.Equal(t, "sqlite /srv/bilgi.db",
		storeLabel(domain.StoreSettings{Backend: domain.StoreBackendSQLite, Path: "/srv/bilgi.db"}))
}

func TestModelLabel(t *testing.T) {
	assert.Equal(t, "openai gpt-4o-mini", modelLabel(domain.AIProviderOpenAI, "gpt-4o-mini", true))
	assert.Equal(t, "ollama", modelLabel(domain.AIProviderOllama, "", true))
	assert.Equal(t, "not configured", modelLabel(domain.AIProviderOpenAI, "gpt-4o-mini", false))
}

func TestSetVersion_IgnoresEmpty(t *testing.T) {
	originalVersion := version
	defer func() { version = originalVersion }()
	version = "dev"

	SetVersion("")

	assert.Equal(t, "dev", version)
}
