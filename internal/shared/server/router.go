package server

import (
	"github.com/gin-gonic/gin"

	"boletin-backend/internal/analysis"
	"boletin-backend/internal/shared/config"
	"boletin-backend/internal/shared/metrics"
	"boletin-backend/internal/shared/server/middleware"
	"boletin-backend/internal/store"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, h *analysis.Handler, st *store.Store) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	registerHealthRoutes(api, st)
	h.RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
