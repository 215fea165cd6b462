package server

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/research"
)

// ResearchToolInput is the argument schema of the deep_research MCP tool.
type ResearchToolInput struct {
	Message                 string `json:"message" jsonschema:"the question to research"`
	MaxResearchLoops        int    `json:"max_research_loops,omitempty" jsonschema:"maximum reflect-then-research iterations, at least 1"`
	InitialSearchQueryCount int    `json:"initial_search_query_count,omitempty" jsonschema:"number of search queries generated in the first round"`
}

// ResearchToolOutput is the structured result of the deep_research MCP tool.
type ResearchToolOutput struct {
	Answer                 string               `json:"answer"`
	Sources                []research.SourceRef `json:"sources"`
	ResearchLoopsCompleted int                  `json:"research_loops_completed"`
}

// NewMCPServer exposes the research service as a single MCP tool.
func NewMCPServer(s *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "gemini-research-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "deep_research",
		Description: "Research a question with iterative grounded web searches and return a cited answer.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ResearchToolInput) (*mcp.CallToolResult, ResearchToolOutput, error) {
		resp, err := s.Research(ctx, "mcp", research.Request{
			Message:                 in.Message,
			MaxResearchLoops:        in.MaxResearchLoops,
			InitialSearchQueryCount: in.InitialSearchQueryCount,
		}, Observer{})
		if err != nil {
			return nil, ResearchToolOutput{}, err
		}
		out := ResearchToolOutput{
			Answer:                 resp.Answer,
			Sources:                resp.Sources,
			ResearchLoopsCompleted: resp.ResearchLoopsCompleted,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: resp.Answer}},
		}, out, nil
	})

	return server
}

// NewMCPHandler serves server over the streamable HTTP transport.
func NewMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}
