// MCP tool exposure for the Query API (§6 supplement): the same top-k
// search Service.Query answers over HTTP is additionally reachable by
// agentic MCP clients as a single query_collection tool, so an agent can
// search a tenant's indexed documents without going through the REST
// surface.
package query

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpQueryRequest mirrors Query's parameters as MCP tool arguments. At
// least one of Vector or QueryFile must be set; when both are, Vector is
// used, same as Query itself.
type mcpQueryRequest struct {
	Collection string        `json:"collection"`
	Vector     []float32     `json:"vector,omitempty"`
	QueryFile  *mcpQueryFile `json:"query_file,omitempty"`
	K          int           `json:"k,omitempty"`
}

// mcpQueryFile carries a query-by-file upload base64-encoded, since MCP
// tool arguments are JSON and can't carry raw bytes.
type mcpQueryFile struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
}

type mcpQueryResponse struct {
	Hits []Hit `json:"hits"`
}

const defaultMCPTopK = 10

// RegisterMCP registers query_collection on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "query_collection",
		Description: "Run a top-k nearest-neighbor search over a tenant's indexed " +
			"documents. Supply either a raw embedding vector or a query_file to " +
			"have it embedded on the fly using the same image/audio/text routing " +
			"the ingestion pipeline uses.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"collection": {
					Type:        "string",
					Description: "Collection name, e.g. tenant_acme or tenant_acme_images",
				},
				"vector": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "number"},
					Description: "Raw query embedding. Omit to query by file instead.",
				},
				"query_file": {
					Type:        "object",
					Description: "A file to embed and query with, instead of a raw vector.",
					Properties: map[string]*jsonschema.Schema{
						"filename":       {Type: "string", Description: "Used only to route by extension"},
						"content_base64": {Type: "string", Description: "Base64-encoded file content"},
					},
					Required: []string{"filename", "content_base64"},
				},
				"k": {
					Type:        "integer",
					Description: "Number of results to return (default 10)",
				},
			},
			Required: []string{"collection"},
		},
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.handleQueryCollection(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		return result, nil
	})
}

func (s *Service) handleQueryCollection(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var in mcpQueryRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	var file *File
	if in.QueryFile != nil {
		content, err := base64.StdEncoding.DecodeString(in.QueryFile.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("decode query_file content_base64: %w", err)
		}
		file = &File{Filename: in.QueryFile.Filename, Content: content}
	}

	k := in.K
	if k <= 0 {
		k = defaultMCPTopK
	}

	hits, err := s.Query(ctx, in.Collection, in.Vector, file, k)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(mcpQueryResponse{Hits: hits})
	if err != nil {
		return nil, fmt.Errorf("marshal query_collection result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}, nil
}
