package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/mautops/template-gin/internal/service"
)

// AuditController 审计日志控制器
type AuditController struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditController 创建审计日志控制器
func NewAuditController(auditRepo repository.AuditLogRepository) *AuditController {
	return &AuditController{auditRepo: auditRepo}
}

// List 查询审计日志
// 指定 record_id 时返回该记录的全部日志,否则分页返回全量日志
func (c *AuditController) List(ctx *gin.Context) {
	recordID := ctx.Query("record_id")
	if recordID != "" {
		logs, err := c.auditRepo.FindByRecordID(recordID)
		if err != nil {
			Error(ctx, http.StatusInternalServerError, "failed to list audit logs", err.Error())
			return
		}
		Success(ctx, logs)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	logs, total, err := c.auditRepo.List(page, pageSize)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to list audit logs", err.Error())
		return
	}

	totalPage := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPage++
	}
	Paginated(ctx, logs, service.PaginationInfo{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	})
}
