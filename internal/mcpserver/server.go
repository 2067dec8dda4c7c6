// Package mcpserver exposes nomenclature search to agents over the Model
// Context Protocol.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/tarim/api"
	"github.com/agentic-research/tarim/internal/search"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Handlers answers tool calls against one search index.
type Handlers struct {
	Index    *search.Index
	ShowActs bool
}

// New builds an MCP server with the search_nomenclature and lookup_code
// tools registered.
func New(idx *search.Index, version string) *server.MCPServer {
	h := &Handlers{Index: idx, ShowActs: true}
	s := server.NewMCPServer("tarim", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("search_nomenclature",
		mcp.WithDescription("Case-insensitive substring search over tariff nomenclature names, breadcrumb paths, descriptions and NC codes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
		mcp.WithString("lang", mcp.Description("Language of names and paths"), mcp.Enum("en", "ro", "ru")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum results (default %d, max %d)", defaultLimit, maxLimit))),
	), h.Search)

	s.AddTool(mcp.NewTool("lookup_code",
		mcp.WithDescription("Return the nomenclature entries with exactly this NC code, including tax data when enriched."),
		mcp.WithString("nc", mcp.Required(), mcp.Description("NC classification code, e.g. 0101 21 000")),
		mcp.WithString("lang", mcp.Description("Language of names and paths"), mcp.Enum("en", "ro", "ru")),
	), h.Lookup)

	return s
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// Search handles search_nomenclature.
func (h *Handlers) Search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lang, err := api.ParseLang(req.GetString("lang", string(api.LangEN)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	results := h.Index.Search(query, lang, limit)
	if len(results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No results found for %q", query)), nil
	}
	return mcp.NewToolResultText(h.render(fmt.Sprintf("Found %d results for %q", len(results), query), results, lang)), nil
}

// Lookup handles lookup_code.
func (h *Handlers) Lookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nc, err := req.RequireString("nc")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lang, err := api.ParseLang(req.GetString("lang", string(api.LangEN)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := h.Index.Lookup(nc)
	if len(results) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no entry with NC code %q", nc)), nil
	}
	return mcp.NewToolResultText(h.render(fmt.Sprintf("NC code %s", strings.TrimSpace(nc)), results, lang)), nil
}

func (h *Handlers) render(header string, results []*api.FlatEntry, lang api.Lang) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, e := range results {
		search.Format(&b, e, lang, h.ShowActs)
	}
	return b.String()
}
