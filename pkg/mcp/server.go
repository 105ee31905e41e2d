// Package mcp serves the enrichment capabilities as Model Context Protocol
// tools over a line-delimited JSON-RPC 2.0 stream.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/glossa-app/glossa/pkg/models"
)

// Enricher runs the enrichment capabilities. *coordinator.Coordinator
// satisfies it.
type Enricher interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context, text string, opts models.SummaryOptions) (string, error)
	Rewrite(ctx context.Context, text string, difficulty int) (string, error)
	Translate(ctx context.Context, text, from, to string) (string, error)
	AnalyzeVocabulary(ctx context.Context, words []string, passage string) ([]models.VocabularyAnalysis, error)
	Status(ctx context.Context) models.ServiceStatus
}

// CacheStatter reports cache statistics. *cache.Manager satisfies it.
type CacheStatter interface {
	GetAllStats() map[models.Namespace]models.CacheStats
	Usage(ctx context.Context) models.CacheUsage
}

// AttemptQuerier searches recorded backend attempts. *ledger.Ledger
// satisfies it.
type AttemptQuerier interface {
	Query(ctx context.Context, opts models.AttemptQueryOpts) ([]models.Attempt, error)
}

// Server is a stdio MCP server.
type Server struct {
	enricher Enricher
	cache    CacheStatter
	attempts AttemptQuerier
	version  string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCache exposes cache statistics.
func WithCache(c CacheStatter) Option {
	return func(s *Server) { s.cache = c }
}

// WithAttempts exposes the attempt ledger.
func WithAttempts(q AttemptQuerier) Option {
	return func(s *Server) { s.attempts = q }
}

// WithLogger sets the logger. Logs must not go to the protocol stream.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(e Enricher, version string, opts ...Option) *Server {
	s := &Server{enricher: e, version: version, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads requests from r one per line and writes responses to w. It
// returns when r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "glossa", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.Debug("mcp tool call", "tool", params.Name)
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal failed", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp write failed", "error", err)
	}
}
