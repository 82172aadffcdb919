package hfspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/hfspace/pkg/cache"
	"github.com/kadirpekel/hfspace/pkg/hf"
)

// MaxSearchLimit caps the limit argument of search-spaces.
const MaxSearchLimit = 50

func (s *Server) addSearchTool() {
	t := mcp.NewTool(SearchToolName,
		mcp.WithDescription("Use semantic search to find an endpoint on the `Hugging Face Spaces` service. "+
			"The search term will usually be 3-7 words describing a task or activity the Person is trying to accomplish. "+
			"The results are returned in a markdown table."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The semantic search term to use."),
		),
		mcp.WithNumber("limit",
			mcp.Description("The maximum number of results to return"),
			mcp.DefaultNumber(hf.DefaultSearchLimit),
			mcp.Min(1),
			mcp.Max(MaxSearchLimit),
		),
	)
	s.mcp.AddTool(t, s.instrument(SearchToolName, s.handleSearch))
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return ValidationError("query is required"), nil
	}
	query = strings.TrimSpace(query)

	limit := req.GetInt("limit", hf.DefaultSearchLimit)
	if limit <= 0 {
		limit = hf.DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	key := fmt.Sprintf("search:%d:%s", limit, strings.ToLower(query))
	if cached, err := s.cache.Get(ctx, key); err == nil {
		slog.Debug("Search cache hit", "query", query)
		return mcp.NewToolResultText(string(cached)), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		slog.Warn("Search cache read failed", "error", err)
	}

	results, err := s.hub.SemanticSearch(ctx, query, limit)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return UpstreamError("", err), nil
	}

	text := hf.FormatSearchResults(results)
	if err := s.cache.Set(ctx, key, []byte(text), s.cfg.Cache.TTL); err != nil {
		slog.Warn("Search cache write failed", "error", err)
	}
	return mcp.NewToolResultText(text), nil
}
