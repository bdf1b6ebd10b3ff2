package model

import (
	"errors"
	"time"
)

// 孤儿对象清理状态
const (
	OrphanStatusPending = "pending"
	OrphanStatusCleaned = "cleaned"
	OrphanStatusFailed  = "failed"
)

// OrphanObjectModel 孤儿对象数据模型
// 搬移在目标校验通过后删除源对象失败时,源对象成为孤儿,
// 入队等待后台清理。孤儿不影响正确性: 记录侧 ContentLocation
// 已指向目标位置,读取不会解析到孤儿
type OrphanObjectModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Location   string    `gorm:"type:varchar(512);not null" json:"location"`
	RecordID   string    `gorm:"type:varchar(64);index" json:"record_id"`
	Reason     string    `gorm:"type:varchar(255)" json:"reason"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	Status     string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"` // pending/cleaned/failed
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (OrphanObjectModel) TableName() string {
	return "orphan_objects"
}

// Validate 验证孤儿对象模型
func (m *OrphanObjectModel) Validate() error {
	if m.ID == "" {
		return errors.New("orphan object ID is required")
	}
	if m.Location == "" {
		return errors.New("location is required")
	}
	return nil
}
