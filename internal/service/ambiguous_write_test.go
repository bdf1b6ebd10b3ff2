package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/naming"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/mautops/template-gin/internal/service"
	"github.com/mautops/template-gin/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ambiguousRepo 模拟条件写超时的仓储
// ConditionalUpdate 返回 context.DeadlineExceeded,
// applyBeforeTimeout 控制超时前写是否实际生效,
// beforeTimeout 可在超时前模拟并发写入
type ambiguousRepo struct {
	records            map[string]*model.TemplateRecord
	applyBeforeTimeout bool
	beforeTimeout      func()
}

func (r *ambiguousRepo) Create(ctx context.Context, record *model.TemplateRecord) error {
	r.records[record.ID] = record.Clone()
	return nil
}

func (r *ambiguousRepo) FindByID(ctx context.Context, id string) (*model.TemplateRecord, error) {
	record, ok := r.records[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return record.Clone(), nil
}

func (r *ambiguousRepo) ConditionalUpdate(ctx context.Context, record *model.TemplateRecord, expectedVersion int64) (*model.TemplateRecord, error) {
	current, ok := r.records[record.ID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	if r.beforeTimeout != nil {
		r.beforeTimeout()
	}
	if r.applyBeforeTimeout && current.Version == expectedVersion {
		r.records[record.ID] = record.Clone()
	}
	return nil, context.DeadlineExceeded
}

func (r *ambiguousRepo) List(ctx context.Context, filter *repository.TemplateListFilter) ([]*model.TemplateRecord, int64, error) {
	return nil, 0, nil
}

// setupAmbiguous 构造带模拟仓储的协调器和一条待审批记录
func setupAmbiguous(t *testing.T, applyBeforeTimeout bool) (service.TemplateService, *ambiguousRepo, *storage.MemoryStore, *model.TemplateRecord) {
	repo := &ambiguousRepo{
		records:            make(map[string]*model.TemplateRecord),
		applyBeforeTimeout: applyBeforeTimeout,
	}
	store := storage.NewMemoryStore()
	mover := storage.NewObjectMover(store, nil, nil, storage.MoverConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	})
	resolver := naming.NewResolver("templates", "tpl")
	svc := service.NewTemplateService(repo, store, mover, resolver, nil, nil, service.CoordinatorConfig{})

	createdAt := time.Date(2024, 11, 15, 10, 30, 15, 0, time.UTC)
	record := &model.TemplateRecord{
		ID:              "tpl-001",
		BusinessUnits:   []string{"COMMERCIAL"},
		TemplateType:    "EMAIL",
		Status:          model.StatusPendingApproval,
		CreatedAt:       createdAt,
		DerivedName:     "COMMERCIAL_EMAIL_2024-11-15T10-30-15",
		ContentLocation: "templates/COMMERCIAL/staging/COMMERCIAL_EMAIL_2024-11-15T10-30-15.tpl",
		Version:         0,
		UpdatedAt:       createdAt,
	}
	repo.records[record.ID] = record
	require.NoError(t, store.Put(context.Background(), record.ContentLocation, []byte("body")))

	return svc, repo, store, record
}

// TestAmbiguousWrite_CommittedProceeds 超时但写已生效: 重读确认后继续 saga
func TestAmbiguousWrite_CommittedProceeds(t *testing.T) {
	svc, _, store, record := setupAmbiguous(t, true)

	approved, err := svc.Approve(context.Background(), record.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, approved.Status)
	assert.Equal(t, int64(1), approved.Version)

	// 对象继续完成搬移
	exists, _ := store.Exists(context.Background(), record.ContentLocation)
	assert.False(t, exists)
	content, err := store.Get(context.Background(), approved.ContentLocation)
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), content)
}

// TestAmbiguousWrite_NotCommittedFails 超时且写未生效: 基础设施错误,可稍后重试
func TestAmbiguousWrite_NotCommittedFails(t *testing.T) {
	svc, repo, store, record := setupAmbiguous(t, false)

	_, err := svc.Approve(context.Background(), record.ID)
	ue := service.AsUpdateError(err)
	require.NotNil(t, ue)
	assert.Equal(t, service.ErrInfrastructure, ue.Category)
	assert.Equal(t, service.RetryLater, ue.Retry())

	// 记录与对象都未被触碰
	current, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.Version)
	assert.Equal(t, model.StatusPendingApproval, current.Status)
	exists, _ := store.Exists(context.Background(), record.ContentLocation)
	assert.True(t, exists)
}

// TestAmbiguousWrite_LostRace 超时期间另一请求胜出: 并发冲突,用新快照重试
func TestAmbiguousWrite_LostRace(t *testing.T) {
	svc, repo, _, record := setupAmbiguous(t, false)

	// 模拟另一请求在条件写的超时窗口内提交了不同的变更
	repo.beforeTimeout = func() {
		winner := record.Clone()
		winner.TemplateType = "SMS"
		winner.DerivedName = "COMMERCIAL_SMS_2024-11-15T10-30-15"
		winner.Version = 1
		repo.records[record.ID] = winner
	}

	_, err := svc.Approve(context.Background(), record.ID)
	ue := service.AsUpdateError(err)
	require.NotNil(t, ue)
	assert.Equal(t, service.ErrConcurrentModification, ue.Category)
	assert.Equal(t, service.RetryFresh, ue.Retry())
}
