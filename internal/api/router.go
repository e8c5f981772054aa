package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/steemit/commentd/internal/cache"
	"github.com/steemit/commentd/internal/comments"
	"github.com/steemit/commentd/internal/db"
	"github.com/steemit/commentd/pkg/config"
	"github.com/steemit/commentd/pkg/logging"
	"github.com/steemit/commentd/pkg/telemetry"
)

// Router sets up API routes
type Router struct {
	service *comments.Service
	db      *db.DB
	cache   *cache.Cache
	cors    *CORS
	logger  *zap.Logger
}

// NewRouter creates a new API router. redisCache may be nil when Redis is disabled.
func NewRouter(service *comments.Service, database *db.DB, redisCache *cache.Cache, cors *CORS) *Router {
	return &Router{
		service: service,
		db:      database,
		cache:   redisCache,
		cors:    cors,
		logger:  logging.WithComponent("api-router"),
	}
}

// NewEngine creates a gin engine that takes the client address from cfg.ClientIPHeader,
// falling back to the TCP peer. Forwarding headers are not trusted.
func NewEngine(cfg *config.ServerConfig) (*gin.Engine, error) {
	engine := gin.New()
	engine.TrustedPlatform = cfg.ClientIPHeader
	if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, err
	}
	return engine, nil
}

// SetupRoutes installs middleware and all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(
		RequestID(),
		RequestLogger(),
		Recovery(),
		r.cors.Middleware(),
		BodyLimit(MaxBodyBytes),
	)

	engine.GET("/status", r.statusHandler)
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	engine.POST("/preview", r.previewHandler)
	engine.GET("/comments", r.listHandler)
	engine.POST("/comments", r.submitHandler)
	engine.GET("/comments/thread", r.threadHandler)

	if telemetry.MetricsEnabled() {
		engine.GET("/metrics", gin.WrapH(telemetry.Handler()))
	}

	r.logger.Info("Routes registered", zap.Int("count", len(engine.Routes())))
}
