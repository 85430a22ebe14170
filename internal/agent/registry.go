package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/jsonx"
	"github.com/shpitdev/site-classifier/internal/llm"
	"github.com/shpitdev/site-classifier/internal/logging"
	"github.com/shpitdev/site-classifier/internal/research"
	"github.com/shpitdev/site-classifier/internal/util"
)

// FetchPreviewChars bounds page text embedded in a fetch_url reply.
const FetchPreviewChars = 4000

// Handler executes one tool call. The returned value is JSON-encoded into the
// tool reply; an error becomes an {"error": ...} reply.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type tool struct {
	spec    llm.ToolSpec
	handler Handler
}

// Registry is the fixed set of tools offered to the model.
type Registry struct {
	tools  map[string]tool
	order  []string
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{tools: map[string]tool{}, logger: logger}
}

// Register adds a tool. Registering a name twice replaces the handler.
func (r *Registry) Register(spec llm.ToolSpec, h Handler) {
	if _, ok := r.tools[spec.Name]; !ok {
		r.order = append(r.order, spec.Name)
	}
	r.tools[spec.Name] = tool{spec: spec, handler: h}
}

// Specs lists tool specs in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].spec)
	}
	return out
}

// Execute runs a tool call and always returns a JSON document. Unknown tools
// and handler failures produce an {"error": ...} payload.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, map[string]any) {
	logger := logging.FromContext(ctx, r.logger)
	name := call.Function.Name
	args, err := llm.ParseArguments(call.Function.Arguments)
	if err != nil {
		logger.Warn("agent: tool arguments were not valid JSON",
			zap.String("tool", name),
			zap.String("arguments", util.Truncate(string(call.Function.Arguments), 200)),
		)
	}

	t, ok := r.tools[name]
	if !ok {
		logger.Warn("agent: model requested unknown tool", zap.String("tool", name))
		return errorReply(fmt.Sprintf("unknown tool '%s'", name)), args
	}
	out, err := t.handler(ctx, args)
	if err != nil {
		return errorReply(util.RedactSecrets(err.Error())), args
	}
	if out == nil {
		return errorReply("tool execution returned no data"), args
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errorReply("encode tool output: " + err.Error()), args
	}
	return string(b), args
}

func errorReply(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// Tools are the search and fetch primitives behind the default registry.
type Tools interface {
	Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error)
	FetchPage(ctx context.Context, url string) (string, error)
}

// DefaultRegistry registers web_search and fetch_url over tools.
func DefaultRegistry(tools Tools, logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(llm.ToolSpec{
		Name:        "web_search",
		Description: "Search the web for information about the facility.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query string"},
				"count": map[string]any{"type": "integer", "minimum": 1, "maximum": 20, "description": "Number of results to return"},
			},
			"required": []string{"query"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		query := jsonx.String(args["query"])
		if query == "" {
			return nil, eris.New("web_search requires a non-empty query")
		}
		count := intArg(args["count"], 5)
		logging.FromContext(ctx, r.logger).Info("agent: web_search", zap.String("query", query), zap.Int("count", count))
		results, err := tools.Search(ctx, query, count)
		if err != nil {
			logging.FromContext(ctx, r.logger).Warn("agent: web_search failed", zap.String("error", util.RedactSecrets(err.Error())))
			return nil, eris.Wrap(err, "web_search failed")
		}
		if results == nil {
			results = []research.SearchResult{}
		}
		return map[string]any{"query": query, "results": results}, nil
	})
	r.Register(llm.ToolSpec{
		Name:        "fetch_url",
		Description: "Fetch the textual content at a given URL.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Absolute URL to fetch"},
			},
			"required": []string{"url"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		url := jsonx.String(args["url"])
		if url == "" {
			return nil, eris.New("fetch_url requires a URL")
		}
		logging.FromContext(ctx, r.logger).Info("agent: fetch_url", zap.String("url", url))
		content, err := tools.FetchPage(ctx, url)
		if err != nil {
			logging.FromContext(ctx, r.logger).Warn("agent: fetch_url failed", zap.String("url", url), zap.String("error", util.RedactSecrets(err.Error())))
			return nil, eris.Wrap(err, "fetch_url failed")
		}
		return map[string]any{"url": url, "content": util.Truncate(content, FetchPreviewChars)}, nil
	})
	return r
}

// intArg reads an integer argument clamped to 1..20.
func intArg(v any, def int) int {
	n := def
	switch t := v.(type) {
	case float64:
		n = int(t)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			n = parsed
		}
	}
	if n < 1 {
		n = 1
	}
	if n > 20 {
		n = 20
	}
	return n
}
