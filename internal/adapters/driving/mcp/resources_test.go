package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestExtractCollectionName(t *testing.T) {
	tests := []struct {
		uri      string
		expected string
	}{
		{uri: "bilgi://collections/company_documents", expected: "company_documents"},
		{uri: "bilgi://collections/learned_knowledge/", expected: "learned_knowledge"},
		{uri: "bilgi://collections/", expected: ""},
		{uri: "file://collections/company_documents", expected: ""},
		{uri: "", expected: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractCollectionName(tt.uri), tt.uri)
	}
}

func TestServer_collectionResources(t *testing.T) {
	ctx := context.Background()
	syncer := &mockSynchronizer{infos: []domain.CollectionInfo{
		{Name: domain.CollectionDocuments, Count: 42, Dimension: 768, Metadata: map[string]string{"hnsw:space": "cosine"}},
		{Name: domain.CollectionLearned, Count: 3, Dimension: 768},
	}}
	server := newTestServer(t, &Ports{Answer: &mockAnswerService{}, Synchronizer: syncer})

	t.Run("lists collections", func(t *testing.T) {
		res, err := server.handleCollectionsResource(ctx, readRequest("bilgi://collections"))

		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, "application/json", res.Contents[0].MIMEType)

		var infos []collectionInfo
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &infos))
		require.Len(t, infos, 2)
		assert.Equal(t, 42, infos[0].Count)
		assert.Equal(t, "cosine", infos[0].Metadata["hnsw:space"])
	})

	t.Run("single collection", func(t *testing.T) {
		uri := "bilgi://collections/learned_knowledge"
		res, err := server.handleCollectionResource(ctx, readRequest(uri))

		require.NoError(t, err)
		assert.Equal(t, uri, res.Contents[0].URI)

		var info collectionInfo
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &info))
		assert.Equal(t, domain.CollectionLearned, info.Name)
		assert.Equal(t, 3, info.Count)
	})

	t.Run("unknown collection", func(t *testing.T) {
		_, err := server.handleCollectionResource(ctx, readRequest("bilgi://collections/yok"))
		assert.Error(t, err)

		_, err = server.handleCollectionResource(ctx, readRequest("bilgi://collections/"))
		assert.Error(t, err)
	})
}

func TestServer_collectionResourcesError(t *testing.T) {
	syncer := &mockSynchronizer{err: errors.New("database is locked")}
	server := newTestServer(t, &Ports{Answer: &mockAnswerService{}, Synchronizer: syncer})

	_, err := server.handleCollectionsResource(context.Background(), readRequest("bilgi://collections"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}
