package http

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/cellcore/internal/interfaces/http/handlers"
	"github.com/orris-inc/cellcore/internal/interfaces/http/middleware"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// Router represents the HTTP router configuration
type Router struct {
	engine         *gin.Engine
	admin          *handlers.AdminHandler
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         logger.Interface
}

// NewRouter creates the router for the admin surface
func NewRouter(
	admin *handlers.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
	allowedOrigins []string,
	log logger.Interface,
) *Router {
	return &Router{
		engine:         gin.New(),
		admin:          admin,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		allowedOrigins: allowedOrigins,
		logger:         log,
	}
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.CustomLogger(r.logger))
	r.engine.Use(middleware.SecurityHeaders())
	r.engine.Use(middleware.CORS(r.allowedOrigins))

	r.engine.GET("/health", r.admin.Health)

	api := r.engine.Group("/api")
	api.Use(r.authMiddleware.RequireAdmin())
	{
		api.GET("/status", r.admin.GetStatus)
		api.GET("/subscribers", r.admin.ListSubscribers)
		api.GET("/registrations", r.admin.ListRegistrations)
		api.GET("/registrations/:imsi", r.admin.GetRegistration)
		api.GET("/messages", r.admin.ListMessages)
		api.GET("/rejections", r.admin.ListRejections)
		api.GET("/alarms", r.admin.ListAlarms)
		api.POST("/reload", r.admin.Reload)
		api.POST("/events/:type", r.rateLimiter.Limit(), r.admin.InjectEvent)
	}
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
