package server

import (
	"context"
	"encoding/json"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// analyzeLineInput is the argument schema of the analyze_line tool.
type analyzeLineInput struct {
	Line                  string `json:"line" jsonschema:"the lyric line to find rhymes for"`
	MaxPhraseLength       int    `json:"max_phrase_length,omitempty" jsonschema:"longest fragment in words; defaults to the server setting"`
	MaxResultsPerCategory int    `json:"max_results_per_category,omitempty" jsonschema:"cap for every rhyme category list; defaults to the server setting"`
}

// suggestRhymesInput is the argument schema of the suggest_rhymes tool.
type suggestRhymesInput struct {
	Word       string `json:"word" jsonschema:"the word or short phrase to rhyme with"`
	RhymeType  string `json:"rhyme_type,omitempty" jsonschema:"one of all, perfect, near, slant"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"cap for every returned list"`
}

// NewMCPServer returns an MCP server exposing the analyzer as tools.
func (s *Server) NewMCPServer() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "rhymeslikedimes", Version: s.version}, nil)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "analyze_line",
		Description: "Find perfect, near and slant rhymes, single words and multi-word phrases, " +
			"for every word and short phrase of a lyric line.",
	}, s.analyzeLineTool)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "suggest_rhymes",
		Description: "List classified rhymes for one word, optionally restricted to a single rhyme quality.",
	}, s.suggestRhymesTool)

	return srv
}

// newMCPHandler serves [Server.NewMCPServer] over streamable HTTP.
func (s *Server) newMCPHandler() http.Handler {
	srv := s.NewMCPServer()
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
}

func (s *Server) analyzeLineTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in analyzeLineInput) (*mcpsdk.CallToolResult, any, error) {
	opts := s.defaults()
	if in.MaxPhraseLength != 0 {
		opts.MaxPhraseLength = in.MaxPhraseLength
	}
	if in.MaxResultsPerCategory != 0 {
		opts.MaxResultsPerCategory = in.MaxResultsPerCategory
	}

	res, err := s.analyzer.Analyze(ctx, in.Line, opts)
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(res)
}

func (s *Server) suggestRhymesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in suggestRhymesInput) (*mcpsdk.CallToolResult, any, error) {
	resp, err := s.suggest(ctx, suggestionRequest(in))
	if err != nil {
		return toolError(err), nil, nil
	}
	return toolJSON(resp)
}

// toolJSON wraps v as a single JSON text content block.
func toolJSON(v any) (*mcpsdk.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(b)}},
	}, nil, nil
}

// toolError reports err to the calling model instead of failing the call.
func toolError(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}
