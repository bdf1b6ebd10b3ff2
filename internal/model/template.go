package model

import (
	"errors"
	"time"
)

// Status 模板生命周期状态
// 生命周期封闭: PendingApproval -> Approved -> (编辑后回到 PendingApproval),
// Canceled 为终态,不允许任何后续变更
type Status string

const (
	// StatusPendingApproval 待审批
	StatusPendingApproval Status = "PendingApproval"
	// StatusApproved 已审批
	StatusApproved Status = "Approved"
	// StatusCanceled 已取消(终态)
	StatusCanceled Status = "Canceled"
)

// Valid 判断状态值是否合法
func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusApproved, StatusCanceled:
		return true
	}
	return false
}

// Terminal 判断是否为终态
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// TemplateRecord 模板记录数据模型
// DerivedName 和 ContentLocation 是派生字段的物化视图,
// 只能由更新协调器重新计算后写入,不允许独立修改
type TemplateRecord struct {
	ID            string   `gorm:"primaryKey;type:varchar(64)" json:"id"`
	BusinessUnits []string `gorm:"serializer:json;type:text;not null" json:"business_units"`
	TemplateType  string   `gorm:"type:varchar(64);not null" json:"template_type"`
	Status        Status   `gorm:"type:varchar(32);not null;index" json:"status"`
	// CreatedAt 创建时间,名称派生输入,创建后不可变
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	DerivedName     string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"derived_name"`
	ContentLocation string    `gorm:"type:varchar(512);not null" json:"content_location"`
	// Version 乐观并发版本号,每次成功提交递增一次
	Version   int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (TemplateRecord) TableName() string {
	return "templates"
}

// Validate 验证模板记录
func (r *TemplateRecord) Validate() error {
	if r.ID == "" {
		return errors.New("template ID is required")
	}
	if len(r.BusinessUnits) == 0 {
		return errors.New("business units are required")
	}
	if r.TemplateType == "" {
		return errors.New("template type is required")
	}
	if !r.Status.Valid() {
		return errors.New("invalid template status")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created at is required")
	}
	return nil
}

// Clone 返回记录的深拷贝,用作协调器的不可变快照
func (r *TemplateRecord) Clone() *TemplateRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.BusinessUnits = make([]string, len(r.BusinessUnits))
	copy(c.BusinessUnits, r.BusinessUnits)
	return &c
}
