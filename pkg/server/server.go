// Package server exposes the coordinator over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/coordinator"
	"github.com/glossa-app/glossa/pkg/models"
)

// Server is the glossa HTTP API.
type Server struct {
	coord               *coordinator.Coordinator
	listen              string
	maintenanceInterval time.Duration
	logger              *slog.Logger
	engine              *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithListen sets the listen address.
func WithListen(addr string) Option {
	return func(s *Server) { s.listen = addr }
}

// WithMaintenanceInterval runs cache maintenance every d while serving.
// Zero or less disables it.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(s *Server) { s.maintenanceInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server routing requests to coord.
func New(coord *coordinator.Coordinator, opts ...Option) *Server {
	s := &Server{
		coord:  coord,
		listen: ":8080",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.logRequests)
	s.RegisterRouter(s.engine.Group("/v1"))
	return s
}

// RegisterRouter mounts the API routes on group.
func (s *Server) RegisterRouter(group *gin.RouterGroup) {
	group.POST("/language", s.handleLanguage)
	group.POST("/summarize", s.handleSummarize)
	group.POST("/rewrite", s.handleRewrite)
	group.POST("/translate", s.handleTranslate)
	group.POST("/vocabulary", s.handleVocabulary)
	group.GET("/status", s.handleStatus)

	cache := group.Group("/cache")
	cache.GET("/stats", s.handleCacheStats)
	cache.POST("/maintenance", s.handleMaintenance)
	cache.DELETE("", s.handleClearCache)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("glossa api listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	if s.maintenanceInterval > 0 && s.coord.Cache() != nil {
		go s.maintenanceLoop(ctx)
	}

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := s.coord.Cache().PerformMaintenance(ctx)
			if n := report.Total(); n > 0 {
				s.logger.Info("cache maintenance", "removed", n)
			}
		}
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Kind      aierr.Kind `json:"kind"`
	Message   string     `json:"message"`
	Retryable bool       `json:"retryable"`
}

// StatusFor maps a failure kind to an HTTP status code.
func StatusFor(kind aierr.Kind) int {
	switch kind {
	case aierr.KindAPIUnavailable:
		return http.StatusServiceUnavailable
	case aierr.KindRateLimit:
		return http.StatusTooManyRequests
	case aierr.KindInvalidInput:
		return http.StatusBadRequest
	case aierr.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	e := aierr.Normalize(err)
	c.AbortWithStatusJSON(StatusFor(e.Kind), ErrorBody{Error: ErrorDetail{
		Kind:      e.Kind,
		Message:   e.Message,
		Retryable: e.Retryable,
	}})
}

// bind decodes the request body into req, answering 400 on failure.
func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.fail(c, aierr.InvalidInput("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// TextRequest carries the text for language detection.
type TextRequest struct {
	Text string `json:"text"`
}

// SummarizeRequest is the body of POST /v1/summarize.
type SummarizeRequest struct {
	Text      string               `json:"text"`
	MaxLength int                  `json:"max_length"`
	Format    models.SummaryFormat `json:"format"`
}

// RewriteRequest is the body of POST /v1/rewrite.
type RewriteRequest struct {
	Text       string `json:"text"`
	Difficulty int    `json:"difficulty"`
}

// TranslateRequest is the body of POST /v1/translate.
type TranslateRequest struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

// VocabularyRequest is the body of POST /v1/vocabulary.
type VocabularyRequest struct {
	Words   []string `json:"words"`
	Context string   `json:"context"`
}

// ResultResponse wraps a text result.
type ResultResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleLanguage(c *gin.Context) {
	var req TextRequest
	if !s.bind(c, &req) {
		return
	}
	code, err := s.coord.DetectLanguage(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"language": code})
}

func (s *Server) handleSummarize(c *gin.Context) {
	var req SummarizeRequest
	if !s.bind(c, &req) {
		return
	}
	summary, err := s.coord.Summarize(c.Request.Context(), req.Text, models.SummaryOptions{
		MaxLength: req.MaxLength,
		Format:    req.Format,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{Result: summary})
}

func (s *Server) handleRewrite(c *gin.Context) {
	var req RewriteRequest
	if !s.bind(c, &req) {
		return
	}
	out, err := s.coord.Rewrite(c.Request.Context(), req.Text, req.Difficulty)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{Result: out})
}

func (s *Server) handleTranslate(c *gin.Context) {
	var req TranslateRequest
	if !s.bind(c, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		s.fail(c, aierr.InvalidInput("from and to are required"))
		return
	}
	out, err := s.coord.Translate(c.Request.Context(), req.Text, req.From, req.To)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{Result: out})
}

func (s *Server) handleVocabulary(c *gin.Context) {
	var req VocabularyRequest
	if !s.bind(c, &req) {
		return
	}
	if len(req.Words) == 0 {
		s.fail(c, aierr.InvalidInput("words must not be empty"))
		return
	}
	items, err := s.coord.AnalyzeVocabulary(c.Request.Context(), req.Words, req.Context)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"words": items})
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	var status models.ServiceStatus
	if c.Query("refresh") == "true" {
		status = s.coord.RefreshStatus(ctx)
	} else {
		status = s.coord.Status(ctx)
	}
	c.JSON(http.StatusOK, status)
}

// CacheStatsResponse is the body of GET /v1/cache/stats.
type CacheStatsResponse struct {
	Stats map[models.Namespace]models.CacheStats `json:"stats"`
	Usage models.CacheUsage                      `json:"usage"`
}

func (s *Server) handleCacheStats(c *gin.Context) {
	m := s.coord.Cache()
	if m == nil {
		s.fail(c, aierr.APIUnavailable("cache disabled"))
		return
	}
	c.JSON(http.StatusOK, CacheStatsResponse{
		Stats: m.GetAllStats(),
		Usage: m.Usage(c.Request.Context()),
	})
}

func (s *Server) handleMaintenance(c *gin.Context) {
	m := s.coord.Cache()
	if m == nil {
		s.fail(c, aierr.APIUnavailable("cache disabled"))
		return
	}
	c.JSON(http.StatusOK, m.PerformMaintenance(c.Request.Context()))
}

// handleClearCache removes every entry. Stats survive unless
// ?reset_stats=true is given.
func (s *Server) handleClearCache(c *gin.Context) {
	m := s.coord.Cache()
	if m == nil {
		s.fail(c, aierr.APIUnavailable("cache disabled"))
		return
	}
	m.ClearAll(c.Request.Context())
	if c.Query("reset_stats") == "true" {
		m.ResetStats()
	}
	c.Status(http.StatusNoContent)
}
