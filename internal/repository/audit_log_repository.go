package repository

import (
	"github.com/mautops/template-gin/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Save(log *model.AuditLogModel) error
	FindByRecordID(recordID string) ([]*model.AuditLogModel, error)
	List(page, pageSize int) ([]*model.AuditLogModel, int64, error)
}

// auditLogRepository 审计日志仓储实现
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 保存审计日志
func (r *auditLogRepository) Save(log *model.AuditLogModel) error {
	return r.db.Save(log).Error
}

// FindByRecordID 根据记录 ID 查找审计日志
func (r *auditLogRepository) FindByRecordID(recordID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("record_id = ?", recordID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// List 分页查询审计日志
func (r *auditLogRepository) List(page, pageSize int) ([]*model.AuditLogModel, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var total int64
	if err := r.db.Model(&model.AuditLogModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []*model.AuditLogModel
	err := r.db.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	return logs, total, err
}
