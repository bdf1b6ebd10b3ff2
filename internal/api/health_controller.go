package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/template-gin/internal/database"
	"gorm.io/gorm"
)

// HealthController 健康检查控制器
type HealthController struct {
	db *gorm.DB
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{db: db}
}

// Health 健康检查
func (c *HealthController) Health(ctx *gin.Context) {
	dbStatus := "up"
	healthy := true
	if !database.CheckHealth(c.db) {
		dbStatus = "down"
		healthy = false
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	ctx.JSON(status, gin.H{
		"status": overall,
		"components": gin.H{
			"database": dbStatus,
		},
	})
}
