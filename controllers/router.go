package controllers

import (
	"dbaccountsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter builds the HTTP engine. The services must be set beforehand.
func NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), utils.LoggerMiddleware())

	api := router.Group("/api")
	{
		RegisterSyncRoutes(api)
		RegisterPermissionRoutes(api)
		RegisterTaskRoutes(api)
		RegisterClassificationRoutes(api)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return router
}
