package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mautops/template-gin/internal/model"
	"gorm.io/gorm"
)

// ErrRecordNotFound 记录不存在
var ErrRecordNotFound = errors.New("template record not found")

// ErrVersionConflict 乐观并发冲突: 条件更新的期望版本与存储中的版本不一致
var ErrVersionConflict = errors.New("version conflict")

// TemplateListFilter 模板列表查询过滤器
type TemplateListFilter struct {
	Status       string
	BusinessUnit string
	Page         int
	PageSize     int
}

// TemplateRepository 模板记录仓储接口
// ConditionalUpdate 是记录的唯一写路径(创建除外),
// 以版本号条件写实现无锁并发控制
type TemplateRepository interface {
	Create(ctx context.Context, record *model.TemplateRecord) error
	FindByID(ctx context.Context, id string) (*model.TemplateRecord, error)
	// ConditionalUpdate 执行版本戳条件更新
	// 仅当存储中的版本等于 expectedVersion 时写入 record 的可变字段,
	// record.Version 必须已设置为 expectedVersion+1。
	// 版本不匹配返回 ErrVersionConflict,记录不存在返回 ErrRecordNotFound
	ConditionalUpdate(ctx context.Context, record *model.TemplateRecord, expectedVersion int64) (*model.TemplateRecord, error)
	List(ctx context.Context, filter *TemplateListFilter) ([]*model.TemplateRecord, int64, error)
}

// templateRepository 模板记录仓储实现
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建模板记录仓储
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create 创建模板记录
func (r *templateRepository) Create(ctx context.Context, record *model.TemplateRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByID 根据 ID 查找模板记录
func (r *templateRepository) FindByID(ctx context.Context, id string) (*model.TemplateRecord, error) {
	var record model.TemplateRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template record: %w", err)
	}
	return &record, nil
}

// ConditionalUpdate 版本戳条件更新
// WHERE id = ? AND version = ? 保证并发更新中恰好一个胜出,
// 败者收到 ErrVersionConflict,由调用方用新快照重试
func (r *templateRepository) ConditionalUpdate(ctx context.Context, record *model.TemplateRecord, expectedVersion int64) (*model.TemplateRecord, error) {
	if record.Version != expectedVersion+1 {
		return nil, fmt.Errorf("record version must be expected version + 1, got %d want %d", record.Version, expectedVersion+1)
	}

	res := r.db.WithContext(ctx).
		Model(&model.TemplateRecord{}).
		Where("id = ? AND version = ?", record.ID, expectedVersion).
		Select("business_units", "template_type", "status", "derived_name", "content_location", "version", "updated_at").
		Updates(record)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update template record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// 区分记录不存在与版本冲突
		if _, err := r.FindByID(ctx, record.ID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: id=%s expected_version=%d", ErrVersionConflict, record.ID, expectedVersion)
	}

	return r.FindByID(ctx, record.ID)
}

// List 查询模板记录列表
func (r *templateRepository) List(ctx context.Context, filter *TemplateListFilter) ([]*model.TemplateRecord, int64, error) {
	if filter == nil {
		filter = &TemplateListFilter{}
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&model.TemplateRecord{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.BusinessUnit != "" {
		// 业务单元以 JSON 数组存储,按序列化形式模糊匹配
		query = query.Where("business_units LIKE ?", "%\""+filter.BusinessUnit+"\"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count template records: %w", err)
	}

	var records []*model.TemplateRecord
	offset := (filter.Page - 1) * filter.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.PageSize).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find template records: %w", err)
	}

	return records, total, nil
}
