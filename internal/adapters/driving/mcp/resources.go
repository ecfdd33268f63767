package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the URI scheme for bilgi resources.
const uriScheme = "bilgi://"

// registerResources registers the collection resources when a synchronizer is available.
func (s *Server) registerResources() {
	if s.ports.Synchronizer == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "collections",
		Name:        "collections",
		Description: "Collections in the vector store with record counts and embedding dimensions",
		MIMEType:    "application/json",
	}, s.handleCollectionsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "collections/{name}",
		Name:        "collection",
		Description: "Details of a single collection",
		MIMEType:    "application/json",
	}, s.handleCollectionResource)
}

type collectionInfo struct {
	Name      string            `json:"name"`
	Count     int               `json:"count"`
	Dimension int               `json:"dimension"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	infos, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, infos)
}

func (s *Server) handleCollectionResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name := extractCollectionName(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	infos, err := s.collections(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name == name {
			return jsonResource(req.Params.URI, info)
		}
	}
	return nil, mcp.ResourceNotFoundError(req.Params.URI)
}

func (s *Server) collections(ctx context.Context) ([]collectionInfo, error) {
	cols, err := s.ports.Synchronizer.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	infos := make([]collectionInfo, len(cols))
	for i, c := range cols {
		infos[i] = collectionInfo{
			Name:      c.Name,
			Count:     c.Count,
			Dimension: c.Dimension,
			Metadata:  c.Metadata,
		}
	}
	return infos, nil
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractCollectionName extracts the name from a URI like bilgi://collections/{name}.
func extractCollectionName(uri string) string {
	const prefix = uriScheme + "collections/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(uri, prefix), "/")
}
