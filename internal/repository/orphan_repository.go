package repository

import (
	"github.com/mautops/template-gin/internal/model"
	"gorm.io/gorm"
)

// OrphanRepository 孤儿对象仓储接口
// 满足 storage.OrphanQueue,供后台清理器使用
type OrphanRepository interface {
	Save(orphan *model.OrphanObjectModel) error
	FindPending(limit int) ([]*model.OrphanObjectModel, error)
	FindByRecordID(recordID string) ([]*model.OrphanObjectModel, error)
}

// orphanRepository 孤儿对象仓储实现
type orphanRepository struct {
	db *gorm.DB
}

// NewOrphanRepository 创建孤儿对象仓储
func NewOrphanRepository(db *gorm.DB) OrphanRepository {
	return &orphanRepository{db: db}
}

// Save 保存孤儿对象(按主键新增或更新)
func (r *orphanRepository) Save(orphan *model.OrphanObjectModel) error {
	if err := orphan.Validate(); err != nil {
		return err
	}
	return r.db.Save(orphan).Error
}

// FindPending 按创建时间取一批待清理的孤儿对象
func (r *orphanRepository) FindPending(limit int) ([]*model.OrphanObjectModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var orphans []*model.OrphanObjectModel
	err := r.db.Where("status = ?", model.OrphanStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&orphans).Error
	return orphans, err
}

// FindByRecordID 查找与某条记录相关的孤儿对象
func (r *orphanRepository) FindByRecordID(recordID string) ([]*model.OrphanObjectModel, error) {
	var orphans []*model.OrphanObjectModel
	err := r.db.Where("record_id = ?", recordID).Order("created_at DESC").Find(&orphans).Error
	return orphans, err
}
