// Package mcp exposes retrieval and answering as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/ports"
)

const Version = "0.1.0"

var ErrMissingQueryService = errors.New("mcp: query service is required")

type Server struct {
	query  ports.QuestionAnswerer
	server *server.MCPServer
}

func NewServer(query ports.QuestionAnswerer) (*Server, error) {
	if query == nil {
		return nil, ErrMissingQueryService
	}
	s := &Server{
		query:  query,
		server: server.NewMCPServer("it-support-rag", Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// Run serves JSON-RPC over the given streams until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer an IT support question from the knowledge base"),
		mcp.WithString("question", mcp.Required(), mcp.Description("the user's question")),
		mcp.WithNumber("top_k", mcp.Description("number of chunks to ground the answer on (default 5)")),
	), s.handleAsk)

	s.server.AddTool(mcp.NewTool("retrieve",
		mcp.WithDescription("Return the knowledge base chunks most similar to a question"),
		mcp.WithString("question", mcp.Required(), mcp.Description("the search question")),
		mcp.WithNumber("top_k", mcp.Description("maximum number of chunks (default 5)")),
		mcp.WithBoolean("category_filter", mcp.Description("restrict results to the predicted category")),
		mcp.WithBoolean("normalize", mcp.Description("correct common typos before embedding (default true)")),
	), s.handleRetrieve)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := s.query.Answer(ctx, question, req.GetInt("top_k", 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(answer)
}

type retrieveOutput struct {
	Results []domain.RetrievalResult `json:"results"`
	Count   int                      `json:"count"`
}

func (s *Server) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := domain.RetrievalMode{
		Normalize:      req.GetBool("normalize", true),
		CategoryFilter: req.GetBool("category_filter", false),
	}

	results, err := s.query.RetrieveWithMode(ctx, question, req.GetInt("top_k", 0), mode)
	if err != nil {
		return toolError(err)
	}
	if results == nil {
		results = []domain.RetrievalResult{}
	}
	return jsonResult(retrieveOutput{Results: results, Count: len(results)})
}

// toolError reports caller mistakes as tool results and everything else as protocol errors.
func toolError(err error) (*mcp.CallToolResult, error) {
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
