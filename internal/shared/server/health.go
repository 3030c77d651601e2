package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"boletin-backend/internal/faults"
	"boletin-backend/internal/shared/server/respond"
	"boletin-backend/internal/store"
)

// registerHealthRoutes attaches the health and stats endpoints.
func registerHealthRoutes(rg *gin.RouterGroup, st *store.Store) {
	rg.GET("/health", func(c *gin.Context) {
		status := st.Status(c.Request.Context())
		code := http.StatusOK
		if !status.Connected {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, gin.H{"ok": status.Connected, "store": status})
	})

	rg.GET("/stats", func(c *gin.Context) {
		stats, err := st.Stats(c.Request.Context())
		if err != nil {
			if env, ok := err.(*faults.Envelope); ok {
				respond.Fault(c, env)
				return
			}
			respond.Fault(c, faults.Classify(faults.OriginStore, err, nil))
			return
		}
		respond.OK(c, stats, "")
	})
}
