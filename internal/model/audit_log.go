package model

import (
	"errors"
	"time"
)

// 审计动作常量
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionApproved = "approved"
	ActionCanceled = "canceled"
	ActionRejected = "rejected"
	ActionFailed   = "failed"
)

// AuditLogModel 审计日志数据模型
// 每个更新请求的终态产生一条日志,包含变更前后的完整快照
type AuditLogModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RecordID    string    `gorm:"type:varchar(64);not null;index" json:"record_id"`
	Action      string    `gorm:"type:varchar(32);not null;index" json:"action"` // created/updated/approved/canceled/rejected/failed
	OldSnapshot []byte    `gorm:"type:text" json:"old_snapshot"`                 // 变更前记录快照(JSON)
	NewSnapshot []byte    `gorm:"type:text" json:"new_snapshot"`                 // 变更后记录快照(JSON)
	Detail      string    `gorm:"type:text" json:"detail"`                       // 失败原因等附加信息
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (m *AuditLogModel) Validate() error {
	if m.ID == "" {
		return errors.New("audit log ID is required")
	}
	if m.RecordID == "" {
		return errors.New("record ID is required")
	}
	if m.Action == "" {
		return errors.New("action is required")
	}
	return nil
}
