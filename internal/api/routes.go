package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/template-gin/internal/config"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/mautops/template-gin/internal/service"
	"github.com/mautops/template-gin/internal/websocket"
	"gorm.io/gorm"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	db *gorm.DB,
	templateSvc service.TemplateService,
	auditRepo repository.AuditLogRepository,
	hub *websocket.Hub,
) *gin.Engine {
	if config.IsProduction(cfg) {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())

	templateController := NewTemplateController(templateSvc)
	auditController := NewAuditController(auditRepo)
	healthController := NewHealthController(db)

	// 基础路由
	router.GET("/health", healthController.Health)
	router.GET("/metrics", MetricsHandler)
	if hub != nil {
		router.GET("/ws/audit", websocket.AuditStreamHandler(hub))
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		templates := v1.Group("/templates")
		{
			templates.POST("", templateController.Create)
			templates.GET("", templateController.List)
			templates.GET("/:id", templateController.Get)
			templates.PUT("/:id", templateController.Update)
			templates.POST("/:id/approve", templateController.Approve)
			templates.POST("/:id/cancel", templateController.Cancel)
		}

		v1.GET("/audit-logs", auditController.List)
	}

	// 自定义 NoRoute 处理器,返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
