package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/textsearch"
)

const (
	serverName    = "refmap"
	serverVersion = "0.1.0"

	defaultTopK = 5
)

// TextSearcher は文脈付きテキスト検索
type TextSearcher interface {
	Search(ctx context.Context, query, dir string, maxHits int) *textsearch.ResultSet
	Relax(ctx context.Context, query, dir string, maxHits int) string
}

// FunctionSearcher は関数のベクトル検索
type FunctionSearcher interface {
	Search(ctx context.Context, query string, k int) ([]funcindex.Result, error)
}

// Server は検索機能を MCP ツールとして公開する
type Server struct {
	server     *mcp.Server
	text       TextSearcher
	functions  FunctionSearcher
	defaultDir string
	logger     *slog.Logger
}

type textSearchParams struct {
	Query     string `json:"query"`
	Directory string `json:"directory"`
	MaxHits   int    `json:"max_hits"`
	Exact     bool   `json:"exact"`
}

type functionSearchParams struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// New は Server を作成しツールを登録する。functions が nil の場合 function_search は登録しない。
func New(text TextSearcher, functions FunctionSearcher, defaultDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		text:       text,
		functions:  functions,
		defaultDir: defaultDir,
		logger:     logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "text_search",
		Description: "Search C sources (.c/.h) for a query and return matches with 3 lines of context. Multi-word queries are relaxed by dropping trailing words until matches are found.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Text to search for (case-insensitive)",
				},
				"directory": {
					Type:        "string",
					Description: "Root directory to search. Defaults to the configured search directory",
				},
				"max_hits": {
					Type:        "integer",
					Description: "Maximum number of result blocks (default 10)",
				},
				"exact": {
					Type:        "boolean",
					Description: "Search the full query only, without relaxation",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleTextSearch)

	if s.functions == nil {
		return
	}
	s.server.AddTool(&mcp.Tool{
		Name:        "function_search",
		Description: "Find functions semantically similar to the query in the refactored code index.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Function body or description to look up",
				},
				"top_k": {
					Type:        "integer",
					Description: "Number of results (default 5)",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleFunctionSearch)
}

// Run は標準入出力でサーバを動かす
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server started", "tools", s.toolNames())
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) toolNames() string {
	if s.functions == nil {
		return "text_search"
	}
	return "text_search,function_search"
}

func (s *Server) handleTextSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params textSearchParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Errorf("invalid parameters: %w", err)), nil
	}

	dir := params.Directory
	if dir == "" {
		dir = s.defaultDir
	}

	var text string
	if params.Exact {
		if strings.TrimSpace(params.Query) == "" {
			text = textsearch.EmptyQuery
		} else {
			text = s.text.Search(ctx, params.Query, dir, params.MaxHits).String()
		}
	} else {
		text = s.text.Relax(ctx, params.Query, dir, params.MaxHits)
	}
	s.logger.Debug("text_search handled", "query", params.Query, "dir", dir)
	return textResult(text), nil
}

func (s *Server) handleFunctionSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params functionSearchParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Errorf("invalid parameters: %w", err)), nil
	}
	if strings.TrimSpace(params.Query) == "" {
		return errorResult(errors.New("query is required")), nil
	}
	k := params.TopK
	if k <= 0 {
		k = defaultTopK
	}

	results, err := s.functions.Search(ctx, params.Query, k)
	if err != nil {
		return errorResult(err), nil
	}
	if len(results) == 0 {
		return textResult(textsearch.NoMatches), nil
	}
	return textResult(funcindex.FormatResults(results)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
