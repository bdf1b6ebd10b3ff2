package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/template-gin/internal/service"
)

// TemplateController 模板控制器
type TemplateController struct {
	templateService service.TemplateService
}

// NewTemplateController 创建模板控制器
func NewTemplateController(templateService service.TemplateService) *TemplateController {
	return &TemplateController{
		templateService: templateService,
	}
}

// Create 创建模板
func (c *TemplateController) Create(ctx *gin.Context) {
	var req service.CreateTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	record, err := c.templateService.Create(ctx.Request.Context(), &req)
	if err != nil {
		UpdateFailure(ctx, err)
		return
	}

	Success(ctx, record)
}

// Get 获取模板
func (c *TemplateController) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	record, err := c.templateService.Get(ctx.Request.Context(), id)
	if err != nil {
		UpdateFailure(ctx, err)
		return
	}

	Success(ctx, record)
}

// List 查询模板列表
func (c *TemplateController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))

	filter := &service.TemplateListFilter{
		Status:       ctx.Query("status"),
		BusinessUnit: ctx.Query("business_unit"),
		Page:         page,
		PageSize:     pageSize,
	}

	resp, err := c.templateService.List(ctx.Request.Context(), filter)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to list templates", err.Error())
		return
	}

	Paginated(ctx, resp.Data, resp.Pagination)
}

// Update 更新模板字段
// 字段变更可能触发名称重派生、对象搬移和状态降级,
// 整个过程由更新协调 saga 保证记录与对象一致
func (c *TemplateController) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req service.UpdateTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	record, err := c.templateService.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		UpdateFailure(ctx, err)
		return
	}

	Success(ctx, record)
}

// Approve 审批通过
func (c *TemplateController) Approve(ctx *gin.Context) {
	id := ctx.Param("id")

	record, err := c.templateService.Approve(ctx.Request.Context(), id)
	if err != nil {
		UpdateFailure(ctx, err)
		return
	}

	Success(ctx, record)
}

// Cancel 取消模板
func (c *TemplateController) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")

	record, err := c.templateService.Cancel(ctx.Request.Context(), id)
	if err != nil {
		UpdateFailure(ctx, err)
		return
	}

	Success(ctx, record)
}
