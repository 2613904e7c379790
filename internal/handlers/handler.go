package handlers

import (
	"helmbridge/internal/logger"
	"helmbridge/internal/service"
	"helmbridge/internal/store"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires the HTTP layer to services, the live data store and logging.
type Handler struct {
	services *service.Service
	store    *store.Store
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, st *store.Store, log *logger.Logger) *Handler {
	return &Handler{services: services, store: st, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Live data over WebSocket (HTTP upgrade) — same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerDataRoutes(api)
		h.registerControlRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerDataRoutes(api *gin.RouterGroup) {
	data := api.Group("/data")
	{
		data.GET("", h.listData)
		// Wildcard keeps dotted paths addressable: /api/v1/data/steering.autopilot.state
		data.GET("/*path", h.getData)
	}
}

func (h *Handler) registerControlRoutes(api *gin.RouterGroup) {
	controls := api.Group("/controls")
	{
		// Body example: {"path":"steering.autopilot.state","value":"auto","verify":true}
		controls.POST("", h.sendControl)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("", h.getLogs)
	}
}
