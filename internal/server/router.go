package server

import (
	"github.com/abduss/filemeta/internal/auth"
	"github.com/abduss/filemeta/internal/config"
	"github.com/abduss/filemeta/internal/conflict"
	"github.com/abduss/filemeta/internal/logger"
	"github.com/abduss/filemeta/internal/metadata"
	"github.com/abduss/filemeta/internal/metrics"
	"github.com/abduss/filemeta/internal/version"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config          config.Config
	Logger          *zap.Logger
	Metrics         *metrics.Collectors
	HealthChecks    []HealthCheck
	AuthService     *auth.Service
	MetadataService *metadata.Service
	VersionService  *version.Service
	ConflictService *conflict.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware(deps.Logger))

	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		path := deps.Config.Metrics.PrometheusPath
		if path == "" {
			path = "/metrics"
		}
		metrics.Register(router, path)
	}

	registerHealthRoutes(router, deps.HealthChecks)

	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(deps.AuthService))

	if deps.MetadataService != nil {
		metadata.RegisterRoutes(api, deps.MetadataService)
	}
	if deps.VersionService != nil {
		version.RegisterRoutes(api, deps.VersionService)
	}
	if deps.ConflictService != nil {
		conflict.RegisterRoutes(api, deps.ConflictService)
	}

	return router
}
