package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/eternisai/leadgen-assistant/internal/auth"
	"github.com/eternisai/leadgen-assistant/internal/generation"
	"github.com/eternisai/leadgen-assistant/internal/leads"
	"github.com/eternisai/leadgen-assistant/internal/logger"
	"github.com/eternisai/leadgen-assistant/internal/metrics"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Sessions       *generation.Manager
	Leads          *leads.ViewModel
	Auth           *auth.Store
	Streams        *StreamHub
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	Logger         *logger.Logger
}

// Handler serves the assistant API.
type Handler struct {
	sessions *generation.Manager
	leads    *leads.ViewModel
	auth     *auth.Store
	streams  *StreamHub
	origins  []string
	logger   *logger.Logger
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(d Deps) *gin.Engine {
	h := &Handler{
		sessions: d.Sessions,
		leads:    d.Leads,
		auth:     d.Auth,
		streams:  d.Streams,
		origins:  d.AllowedOrigins,
		logger:   d.Logger,
	}
	if h.streams == nil {
		h.streams = NewStreamHub(d.Logger)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLoggingMiddleware(d.Logger))
	router.Use(corsMiddleware(d.AllowedOrigins))

	router.GET("/health", h.Health)
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
	}

	protected := api.Group("")
	protected.Use(auth.RequireAuth(d.Auth))
	{
		protected.POST("/auth/logout", h.Logout)
		protected.GET("/auth/me", h.Me)
		protected.GET("/auth/quota", h.Quota)

		sessions := protected.Group("/sessions")
		{
			sessions.POST("", h.CreateSession)
			sessions.GET("/:id", h.GetSession)
			sessions.POST("/:id/messages", h.PostMessage)
			sessions.POST("/:id/reset", h.ResetSession)
			sessions.DELETE("/:id", h.DeleteSession)
			sessions.GET("/:id/stream", h.StreamSession)
		}

		l := protected.Group("/leads")
		{
			l.GET("", h.ListLeads)
			l.GET("/state", h.LeadsState)
			l.POST("/reload", h.ReloadLeads)
			l.GET("/tags", h.ListTags)
			l.PUT("/filters", h.SetFilters)
			l.DELETE("/filters", h.ClearFilters)
			l.PUT("/sort", h.SetSort)
			l.POST("/selection/all", h.SelectAll)
			l.DELETE("/selection", h.ClearSelection)
			l.POST("/bulk/status", h.BulkUpdateStatus)
			l.POST("/bulk/delete", h.BulkDelete)
			l.POST("/bulk/tags/:tagId", h.BulkTag)
			l.PATCH("/:id/status", h.UpdateLeadStatus)
			l.DELETE("/:id", h.DeleteLead)
			l.POST("/:id/select", h.ToggleSelection)
			l.POST("/:id/tags/:tagId", h.TagLead)
			l.DELETE("/:id/tags/:tagId", h.UntagLead)
		}
	}

	return router
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"instance_id":     logger.GetInstanceID(),
		"authenticated":   h.auth.IsAuthenticated(),
		"active_sessions": h.sessions.ActiveCount(),
		"active_streams":  h.streams.ConnectionCount(),
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", logger.RequestIDHeader},
		ExposedHeaders:   []string{logger.RequestIDHeader},
		AllowCredentials: true,
	})

	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)

		if ctx.Request.Method == http.MethodOptions && ctx.Request.Header.Get("Access-Control-Request-Method") != "" {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}
