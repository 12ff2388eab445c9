package handler

import (
	"net/http"

	"github.com/SergeiKhy/tinyurl/internal/middleware"
	"github.com/SergeiKhy/tinyurl/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowedOrigins []string
	Version        string
}

func NewRouter(linkService service.LinkService, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		middleware.RequestLogger(logger),
		middleware.Recovery(logger),
		middleware.CORS(cfg.AllowedOrigins),
	)

	linkHandler := NewLinkHandler(linkService, logger)

	router.GET("/healthz", HealthCheck(cfg.Version))

	links := router.Group("/api/links")
	{
		links.GET("", linkHandler.ListLinks)
		links.POST("", linkHandler.CreateLink)
		links.GET("/:code", linkHandler.GetLink)
		links.DELETE("/:code", linkHandler.DeleteLink)
	}

	// Редирект регистрируется последним, чтобы не перекрывать /api/links
	router.GET("/:code", linkHandler.Redirect)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})

	return router
}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

// HealthCheck godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func HealthCheck(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{OK: true, Version: version})
	}
}
