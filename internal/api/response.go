package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/mautops/template-gin/internal/service"
)

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code"`    // 状态码: 0 表示成功,非 0 表示失败
	Message string      `json:"message"` // 响应消息
	Data    interface{} `json:"data"`    // 响应数据
}

// ErrorResponse 错误响应格式
// Category/Field/Retry 来自更新错误分类,让调用方区分
// "立即重试"、"稍后重试" 和 "不要重试,修正输入"
type ErrorResponse struct {
	Code     int    `json:"code"`               // 错误码
	Message  string `json:"message"`            // 错误消息
	Detail   string `json:"detail,omitempty"`   // 错误详情(可选)
	Category string `json:"category,omitempty"` // 错误分类
	Field    string `json:"field,omitempty"`    // 出错字段
	Retry    string `json:"retry,omitempty"`    // 重试建议: none/fresh/later/escalate
}

// PaginatedResponse 分页响应
type PaginatedResponse struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Data       interface{}            `json:"data"`
	Pagination service.PaginationInfo `json:"pagination"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string, detail string) {
	statusCode := http.StatusInternalServerError
	if code >= 400 && code < 600 {
		statusCode = code
	}

	c.JSON(statusCode, ErrorResponse{
		Code:    code,
		Message: message,
		Detail:  detail,
	})
}

// Paginated 分页响应
func Paginated(c *gin.Context, data interface{}, pagination service.PaginationInfo) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Code:       0,
		Message:    "success",
		Data:       data,
		Pagination: pagination,
	})
}

// UpdateFailure 更新协调失败响应
// 按错误分类映射 HTTP 状态码并携带重试建议
func UpdateFailure(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrRecordNotFound) {
		Error(c, http.StatusNotFound, "template not found", err.Error())
		return
	}

	ue := service.AsUpdateError(err)
	if ue == nil {
		Error(c, http.StatusInternalServerError, "update failed", err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch ue.Category {
	case service.ErrInvalidInput:
		status = http.StatusBadRequest
	case service.ErrTerminalState:
		status = http.StatusUnprocessableEntity
	case service.ErrConcurrentModification, service.ErrConflictAtDestination:
		status = http.StatusConflict
	case service.ErrIntegrity, service.ErrInfrastructure:
		status = http.StatusServiceUnavailable
	case service.ErrCompensationFailure:
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:     status,
		Message:  "update failed",
		Detail:   ue.Detail,
		Category: string(ue.Category),
		Field:    ue.Field,
		Retry:    string(ue.Retry()),
	})
}
