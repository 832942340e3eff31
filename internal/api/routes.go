package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/origo-stack/performance-simulator/internal/broadcast"
)

// SetupRouter mounts the admission surface described in SPEC_FULL.md §4.8.
func SetupRouter(h *Handlers, hub *broadcast.Hub) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tests/start", h.StartTest)
		v1.POST("/tests/stop", h.StopTest)
		v1.GET("/tests/status/:id", h.GetStatus)
		v1.GET("/tests/", h.ListTests)

		v1.GET("/plugins", h.ListPlugins)
		v1.GET("/plugins/:name", h.GetPlugin)
		v1.GET("/plugins/:name/parameters", h.GetPluginParameters)

		v1.GET("/distributions", h.ListDistributions)
		v1.POST("/distributions/:name/validate", h.ValidateDistribution)
		v1.POST("/distributions/:name/instantiate", h.InstantiateDistribution)

		v1.GET("/presets", h.ListPresets)
		v1.POST("/presets", h.CreatePreset)
		v1.PUT("/presets/:id", h.UpdatePreset)
		v1.DELETE("/presets/:id", h.DeletePreset)

		v1.GET("/ws/results", func(c *gin.Context) { hub.HandleWebSocket(c) })
	}

	return router
}
