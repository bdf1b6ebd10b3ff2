package service

import (
	"errors"
	"fmt"
)

// ErrorCategory 更新失败的分类
type ErrorCategory string

const (
	// ErrInvalidInput 字段不合法,快速失败,无任何状态变更
	ErrInvalidInput ErrorCategory = "invalid_input"
	// ErrTerminalState 记录处于 Canceled 终态
	ErrTerminalState ErrorCategory = "terminal_state"
	// ErrConcurrentModification 乐观锁失败,调用方需用新快照重试
	ErrConcurrentModification ErrorCategory = "concurrent_modification"
	// ErrConflictAtDestination 派生路径与无关内容冲突
	ErrConflictAtDestination ErrorCategory = "conflict_at_destination"
	// ErrIntegrity 校验和不匹配(已在内部重试耗尽)
	ErrIntegrity ErrorCategory = "integrity_error"
	// ErrInfrastructure 存储/传输不可用(已在内部退避重试耗尽)
	ErrInfrastructure ErrorCategory = "infrastructure_error"
	// ErrCompensationFailure 回滚本身失败,记录与对象可能不一致,必须升级人工对账
	ErrCompensationFailure ErrorCategory = "compensation_failure"
)

// RetryHint 调用方的重试建议
type RetryHint string

const (
	// RetryNone 不要重试,修正输入
	RetryNone RetryHint = "none"
	// RetryFresh 用重新加载的记录立即重试
	RetryFresh RetryHint = "fresh"
	// RetryLater 稍后重试
	RetryLater RetryHint = "later"
	// RetryEscalate 不要重试,升级人工处理
	RetryEscalate RetryHint = "escalate"
)

// UpdateError 更新协调失败
// 携带分类、失败步骤和出错字段,足以让调用方区分
// "立即重试"、"稍后重试" 和 "不要重试,修正输入"
type UpdateError struct {
	Category ErrorCategory
	Step     string // validating/record_staged/object_relocating/compensating
	Field    string // 出错字段(仅 invalid_input)
	Detail   string
	Err      error
}

// Error 实现 error 接口
func (e *UpdateError) Error() string {
	msg := fmt.Sprintf("update failed: category=%s step=%s", e.Category, e.Step)
	if e.Field != "" {
		msg += " field=" + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回底层错误
func (e *UpdateError) Unwrap() error {
	return e.Err
}

// Retry 返回该错误分类对应的重试建议
func (e *UpdateError) Retry() RetryHint {
	switch e.Category {
	case ErrInvalidInput, ErrTerminalState, ErrConflictAtDestination:
		return RetryNone
	case ErrConcurrentModification:
		return RetryFresh
	case ErrIntegrity, ErrInfrastructure:
		return RetryLater
	case ErrCompensationFailure:
		return RetryEscalate
	}
	return RetryNone
}

// AsUpdateError 提取 UpdateError,若不是则返回 nil
func AsUpdateError(err error) *UpdateError {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}

// newUpdateError 构造更新错误
func newUpdateError(category ErrorCategory, step, detail string, err error) *UpdateError {
	return &UpdateError{Category: category, Step: step, Detail: detail, Err: err}
}

// newInputError 构造字段级输入错误
func newInputError(field, detail string, err error) *UpdateError {
	return &UpdateError{Category: ErrInvalidInput, Step: stepValidating, Field: field, Detail: detail, Err: err}
}
