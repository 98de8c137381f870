package handler

import (
	"net/http"

	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func SetupRouter(h *Handler, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware())

	api := r.Group("/api/v1")
	{
		units := api.Group("/units")
		{
			units.GET("/balance", h.GetBalance)
			units.GET("/transactions", h.ListTransactions)
			units.POST("/earn", h.Earn)
			units.POST("/spend", h.Spend)
		}

		rewards := api.Group("/rewards")
		{
			rewards.POST("/ad-complete", h.AdComplete)
		}

		features := api.Group("/features")
		{
			features.GET("", h.ListFeatures)
			features.GET("/check", h.CheckFeature)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found: "+c.Request.URL.Path)
	})

	return r
}
