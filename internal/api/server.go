package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/config"
	"feedrelay/internal/logging"
	"feedrelay/internal/models"
	"feedrelay/internal/poller"
	"feedrelay/internal/security"
	"feedrelay/internal/storage"
	"feedrelay/internal/web"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router        *gin.Engine
	storage       storage.Storage
	poller        *poller.Poller
	port          int
	swaggerServer *web.SwaggerServer
	httpServer    *http.Server
}

func NewServer(store storage.Storage, p *poller.Poller, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	security.Setup(router, &security.Options{
		RateLimit:      cfg.Security.EnableRateLimit,
		RatePerSecond:  cfg.Security.RateLimitPerSecond,
		RateBurst:      cfg.Security.RateLimitBurst,
		CORS:           cfg.Security.EnableCORS,
		AllowedOrigins: cfg.Security.AllowedOrigins,
		Headers:        cfg.Security.EnableSecurityHeaders,
		MaxBodyBytes:   cfg.Security.MaxRequestSize,
		RequestID:      cfg.Security.EnableRequestID,
	})

	server := &Server{
		router:        router,
		storage:       store,
		poller:        p,
		port:          cfg.Port,
		swaggerServer: web.NewSwaggerServer(cfg.EnableSwagger),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api/v1")
	{
		api.GET("/items", s.getItems)
		api.POST("/items/state", s.bulkUpdateItemState)
		api.GET("/items/:id", s.getItem)
		api.PUT("/items/:id/state", s.updateItemState)
		api.POST("/items/:id/extract", s.triggerExtraction)

		api.GET("/preferences/:key", s.getPreference)
		api.PUT("/preferences/:key", s.setPreference)

		api.GET("/views", s.getViews)
		api.POST("/views", s.createView)
		api.GET("/views/:id", s.getView)
		api.PUT("/views/:id", s.updateView)
		api.DELETE("/views/:id", s.deleteView)

		api.GET("/sources", s.getSources)
		api.GET("/stats", s.getStats)
		api.POST("/storage/optimize", s.optimizeStorage)

		// Poller control endpoints
		api.GET("/poller/status", s.getPollerStatus)
		api.POST("/poller/force-poll/:source", s.forcePollSource)
		api.GET("/poller/last-polled", s.getLastPolledTimes)
	}

	s.swaggerServer.RegisterRoutes(s.router)
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Info("Starting API server", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "feedrelay",
		"poller_active": s.poller.IsPolling(),
	})
}

func (s *Server) getItems(c *gin.Context) {
	query := models.ItemQuery{
		State:      c.Query("state"),
		Group:      c.Query("group"),
		GroupNames: splitList(c.Query("group_names")),
	}
	for _, raw := range splitList(c.Query("source_ids")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id: " + raw})
			return
		}
		query.SourceIDs = append(query.SourceIDs, id)
	}

	items, err := s.storage.GetItems(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) getItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	item, err := s.storage.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
}

func (s *Server) updateItemState(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := models.ParseItemState(req.State)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.storage.UpdateItemState(c.Request.Context(), id, state); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": state})
}

type bulkStateRequest struct {
	IDs   []int64 `json:"ids"`
	State string  `json:"state" binding:"required"`
}

func (s *Server) bulkUpdateItemState(c *gin.Context) {
	var req bulkStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := models.ParseItemState(req.State)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := s.storage.BulkUpdateItemState(c.Request.Context(), req.IDs, state); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(req.IDs), "state": state})
}

func (s *Server) triggerExtraction(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	if err := s.storage.TriggerExtraction(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	s.poller.WakeExtractor()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Extraction queued",
		"id":      id,
	})
}

type preferenceRequest struct {
	Value *string `json:"value"`
}

func (s *Server) getPreference(c *gin.Context) {
	key := c.Param("key")

	value, found, err := s.storage.GetUserPreference(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"key": key, "value": nil}
	if found {
		resp["value"] = value
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) setPreference(c *gin.Context) {
	key := c.Param("key")

	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	if err := s.storage.SetUserPreference(c.Request.Context(), key, *req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": *req.Value})
}

func (s *Server) getViews(c *gin.Context) {
	views, err := s.storage.ListViews(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": views, "count": len(views)})
}

func (s *Server) getView(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	view, err := s.storage.GetView(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) createView(c *gin.Context) {
	var in models.CustomViewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.storage.CreateView(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateView(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	var in models.CustomViewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.storage.UpdateView(c.Request.Context(), id, in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) deleteView(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	if err := s.storage.DeleteView(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getSources(c *gin.Context) {
	sources, err := s.storage.ListSources(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.storage.GetDatabaseStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) optimizeStorage(c *gin.Context) {
	if err := s.storage.OptimizeDatabase(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Storage optimized successfully"})
}

func (s *Server) getPollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"is_polling": s.poller.IsPolling(),
		"sources":    len(s.poller.Sources()),
	})
}

func (s *Server) forcePollSource(c *gin.Context) {
	source := c.Param("source")

	if err := s.poller.ForcePoll(c.Request.Context(), source); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Force poll completed successfully",
		"source":  source,
	})
}

func (s *Server) getLastPolledTimes(c *gin.Context) {
	lastPolled := s.poller.GetLastPolledTime()
	c.JSON(http.StatusOK, lastPolled)
}

// itemID parses the :id path parameter of item and view routes
func itemID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps storage and validation errors to status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrInvalidView):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logging.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
