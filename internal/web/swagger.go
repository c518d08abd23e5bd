// Package web serves the interactive API documentation.
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type SwaggerServer struct {
	enabled bool
}

func NewSwaggerServer(enabled bool) *SwaggerServer {
	return &SwaggerServer{enabled: enabled}
}

func (s *SwaggerServer) Enabled() bool {
	return s.enabled
}

func (s *SwaggerServer) RegisterRoutes(router *gin.Engine) {
	if !s.enabled {
		return
	}

	router.GET("/swagger", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.DocExpansion("list"),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))
}
