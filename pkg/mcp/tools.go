package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/models"
)

type textArgs struct {
	Text string `json:"text"`
}

type summarizeArgs struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
	Bullets   bool   `json:"bullets"`
}

type rewriteArgs struct {
	Text       string `json:"text"`
	Difficulty int    `json:"difficulty"`
}

type translateArgs struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

type vocabularyArgs struct {
	Words   []string `json:"words"`
	Context string   `json:"context"`
}

type attemptsArgs struct {
	RequestID  string `json:"request_id"`
	Backend    string `json:"backend"`
	Capability string `json:"capability"`
	Outcome    string `json:"outcome"`
	Since      string `json:"since"`
	Limit      int    `json:"limit"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"glossa_detect_language": handleDetectLanguage,
	"glossa_summarize":       handleSummarize,
	"glossa_rewrite":         handleRewrite,
	"glossa_translate":       handleTranslate,
	"glossa_vocabulary":      handleVocabulary,
	"glossa_cache_stats":     handleCacheStats,
	"glossa_status":          handleStatus,
	"glossa_attempts":        handleAttempts,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var allTools = []ToolDefinition{
	{
		Name:        "glossa_detect_language",
		Description: "Detect the language of a text and return its ISO 639-1 code.",
		InputSchema: objectSchema([]string{"text"}, map[string]any{
			"text": stringProp("Text to inspect"),
		}),
	},
	{
		Name:        "glossa_summarize",
		Description: "Summarize a text, optionally as bullet points and with a target length in words.",
		InputSchema: objectSchema([]string{"text"}, map[string]any{
			"text":       stringProp("Text to summarize"),
			"max_length": intProp("Target length in words (optional)"),
			"bullets":    map[string]any{"type": "boolean", "description": "Return a bulleted list (optional)"},
		}),
	},
	{
		Name:        "glossa_rewrite",
		Description: "Rewrite a text at a reading difficulty from 1 (easiest) to 10.",
		InputSchema: objectSchema([]string{"text", "difficulty"}, map[string]any{
			"text":       stringProp("Text to rewrite"),
			"difficulty": intProp("Difficulty from 1 to 10"),
		}),
	},
	{
		Name:        "glossa_translate",
		Description: "Translate a text between two languages given as ISO 639-1 codes.",
		InputSchema: objectSchema([]string{"text", "from", "to"}, map[string]any{
			"text": stringProp("Text to translate"),
			"from": stringProp("Source language code"),
			"to":   stringProp("Target language code"),
		}),
	},
	{
		Name:        "glossa_vocabulary",
		Description: "Rate the difficulty of words as used in a passage. Proper nouns are omitted.",
		InputSchema: objectSchema([]string{"words"}, map[string]any{
			"words":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Words to analyze"},
			"context": stringProp("Passage the words appear in (optional)"),
		}),
	},
	{
		Name:        "glossa_cache_stats",
		Description: "Show result cache statistics per namespace (hits, misses, hit rate, entries, bytes).",
		InputSchema: objectSchema(nil, map[string]any{}),
	},
	{
		Name:        "glossa_status",
		Description: "Show which AI backends are currently available.",
		InputSchema: objectSchema(nil, map[string]any{}),
	},
	{
		Name:        "glossa_attempts",
		Description: "Search recorded backend attempts, newest first.",
		InputSchema: objectSchema(nil, map[string]any{
			"request_id": stringProp("Filter by request ID (optional)"),
			"backend":    stringProp("Filter by backend: local or cloud (optional)"),
			"capability": stringProp("Filter by capability (optional)"),
			"outcome":    stringProp("Filter by outcome: success, failure or skipped (optional)"),
			"since":      stringProp("Start date in YYYY-MM-DD format (optional)"),
			"limit":      intProp("Maximum rows, default 50 (optional)"),
		}),
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func failure(err error) ToolCallResult {
	e := aierr.Normalize(err)
	return errorResult(string(e.Kind) + ": " + e.Message)
}

// decodeArgs unmarshals raw into v. Absent arguments leave v zero.
func decodeArgs(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}

func handleDetectLanguage(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args textArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	code, err := s.enricher.DetectLanguage(ctx, args.Text)
	if err != nil {
		return failure(err)
	}
	return textResult(code)
}

func handleSummarize(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args summarizeArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	opts := models.SummaryOptions{MaxLength: args.MaxLength, Format: models.SummaryParagraph}
	if args.Bullets {
		opts.Format = models.SummaryBullets
	}
	summary, err := s.enricher.Summarize(ctx, args.Text, opts)
	if err != nil {
		return failure(err)
	}
	return textResult(summary)
}

func handleRewrite(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args rewriteArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	out, err := s.enricher.Rewrite(ctx, args.Text, args.Difficulty)
	if err != nil {
		return failure(err)
	}
	return textResult(out)
}

func handleTranslate(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args translateArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if args.From == "" || args.To == "" {
		return errorResult("from and to are required")
	}
	out, err := s.enricher.Translate(ctx, args.Text, args.From, args.To)
	if err != nil {
		return failure(err)
	}
	return textResult(out)
}

func handleVocabulary(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args vocabularyArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if len(args.Words) == 0 {
		return errorResult("words is required")
	}
	items, err := s.enricher.AnalyzeVocabulary(ctx, args.Words, args.Context)
	if err != nil {
		return failure(err)
	}
	return textResult(formatVocabulary(items))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	return textResult(formatCacheStats(s.cache.GetAllStats(), s.cache.Usage(ctx)))
}

func handleStatus(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatStatus(s.enricher.Status(ctx)))
}

func handleAttempts(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.attempts == nil {
		return textResult("Attempt ledger is not configured.")
	}
	var args attemptsArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}

	opts := models.AttemptQueryOpts{
		RequestID:  args.RequestID,
		Backend:    models.BackendID(args.Backend),
		Capability: models.Capability(args.Capability),
		Outcome:    models.AttemptOutcome(args.Outcome),
		Limit:      args.Limit,
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	rows, err := s.attempts.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching attempts: " + err.Error())
	}
	return textResult(formatAttempts(rows))
}
