package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDBForTemplate 创建模板记录测试数据库
func setupTestDBForTemplate(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// 内存 sqlite 每个连接是独立数据库,并发用例必须共享连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// 迁移数据库
	err = db.AutoMigrate(&model.TemplateRecord{})
	require.NoError(t, err)

	return db
}

// newTemplateRecord 构造测试用模板记录
func newTemplateRecord(id string) *model.TemplateRecord {
	createdAt := time.Date(2024, 11, 15, 10, 30, 15, 0, time.UTC)
	return &model.TemplateRecord{
		ID:              id,
		BusinessUnits:   []string{"COMMERCIAL"},
		TemplateType:    "EMAIL",
		Status:          model.StatusPendingApproval,
		CreatedAt:       createdAt,
		DerivedName:     "COMMERCIAL_EMAIL_2024-11-15T10-30-15",
		ContentLocation: "templates/COMMERCIAL/staging/COMMERCIAL_EMAIL_2024-11-15T10-30-15.tpl",
		Version:         0,
		UpdatedAt:       createdAt,
	}
}

// TestTemplateRepository_CreateAndFind 测试创建与查询
func TestTemplateRepository_CreateAndFind(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	record := newTemplateRecord("tpl-001")
	require.NoError(t, repo.Create(context.Background(), record))

	found, err := repo.FindByID(context.Background(), "tpl-001")
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
	assert.Equal(t, []string{"COMMERCIAL"}, found.BusinessUnits)
	assert.Equal(t, model.StatusPendingApproval, found.Status)
	assert.Equal(t, int64(0), found.Version)
}

// TestTemplateRepository_FindNotFound 测试查询不存在的记录
func TestTemplateRepository_FindNotFound(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

// TestTemplateRepository_ConditionalUpdate 测试版本戳条件更新
func TestTemplateRepository_ConditionalUpdate(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	record := newTemplateRecord("tpl-001")
	require.NoError(t, repo.Create(context.Background(), record))

	staged := record.Clone()
	staged.BusinessUnits = []string{"RETAIL"}
	staged.TemplateType = "SMS"
	staged.DerivedName = "RETAIL_SMS_2024-11-15T10-30-15"
	staged.ContentLocation = "templates/RETAIL/staging/RETAIL_SMS_2024-11-15T10-30-15.tpl"
	staged.Version = 1
	staged.UpdatedAt = time.Now().UTC()

	committed, err := repo.ConditionalUpdate(context.Background(), staged, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), committed.Version)
	assert.Equal(t, []string{"RETAIL"}, committed.BusinessUnits)
	assert.Equal(t, "SMS", committed.TemplateType)
	assert.Equal(t, "RETAIL_SMS_2024-11-15T10-30-15", committed.DerivedName)
	// 创建时间不可变
	assert.True(t, committed.CreatedAt.Equal(record.CreatedAt))
}

// TestTemplateRepository_ConditionalUpdate_VersionConflict 过期版本的条件写被拒绝
func TestTemplateRepository_ConditionalUpdate_VersionConflict(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	record := newTemplateRecord("tpl-001")
	require.NoError(t, repo.Create(context.Background(), record))

	// 第一次提交胜出
	first := record.Clone()
	first.TemplateType = "SMS"
	first.DerivedName = "COMMERCIAL_SMS_2024-11-15T10-30-15"
	first.Version = 1
	_, err := repo.ConditionalUpdate(context.Background(), first, 0)
	require.NoError(t, err)

	// 第二次仍基于版本 0: 恰好一个胜出,败者收到冲突
	second := record.Clone()
	second.TemplateType = "PUSH"
	second.DerivedName = "COMMERCIAL_PUSH_2024-11-15T10-30-15"
	second.Version = 1
	_, err = repo.ConditionalUpdate(context.Background(), second, 0)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	// 记录保持胜者的值
	found, err := repo.FindByID(context.Background(), "tpl-001")
	require.NoError(t, err)
	assert.Equal(t, "SMS", found.TemplateType)
	assert.Equal(t, int64(1), found.Version)
}

// TestTemplateRepository_ConcurrentConditionalUpdates 多个写者基于同一版本竞争,恰好一个胜出
func TestTemplateRepository_ConcurrentConditionalUpdates(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	record := newTemplateRecord("tpl-001")
	require.NoError(t, repo.Create(context.Background(), record))

	const writers = 8
	start := make(chan struct{})
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			staged := record.Clone()
			staged.TemplateType = fmt.Sprintf("TYPE%d", i)
			staged.DerivedName = fmt.Sprintf("COMMERCIAL_TYPE%d_2024-11-15T10-30-15", i)
			staged.Version = 1
			staged.UpdatedAt = time.Now().UTC()
			<-start
			_, err := repo.ConditionalUpdate(context.Background(), staged, 0)
			errs <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, repository.ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	// 记录恰好前进了一个版本
	found, err := repo.FindByID(context.Background(), "tpl-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.Version)
}

// TestTemplateRepository_DuplicateDerivedName 派生名称唯一索引拒绝重复插入
func TestTemplateRepository_DuplicateDerivedName(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	require.NoError(t, repo.Create(context.Background(), newTemplateRecord("tpl-001")))

	dup := newTemplateRecord("tpl-002")
	assert.Error(t, repo.Create(context.Background(), dup))
}

// TestTemplateRepository_ConditionalUpdate_NotFound 不存在的记录返回 ErrRecordNotFound
func TestTemplateRepository_ConditionalUpdate_NotFound(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	staged := newTemplateRecord("missing")
	staged.Version = 1
	_, err := repo.ConditionalUpdate(context.Background(), staged, 0)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

// TestTemplateRepository_ConditionalUpdate_BadVersion record.Version 必须是期望版本加一
func TestTemplateRepository_ConditionalUpdate_BadVersion(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	record := newTemplateRecord("tpl-001")
	require.NoError(t, repo.Create(context.Background(), record))

	staged := record.Clone()
	staged.Version = 5
	_, err := repo.ConditionalUpdate(context.Background(), staged, 0)
	assert.Error(t, err)
}

// TestTemplateRepository_List 测试列表过滤与分页
func TestTemplateRepository_List(t *testing.T) {
	db := setupTestDBForTemplate(t)
	repo := repository.NewTemplateRepository(db)

	a := newTemplateRecord("tpl-001")
	b := newTemplateRecord("tpl-002")
	b.BusinessUnits = []string{"RETAIL"}
	b.DerivedName = "RETAIL_EMAIL_2024-11-15T10-30-15"
	b.Status = model.StatusApproved
	require.NoError(t, repo.Create(context.Background(), a))
	require.NoError(t, repo.Create(context.Background(), b))

	records, total, err := repo.List(context.Background(), &repository.TemplateListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)

	records, total, err = repo.List(context.Background(), &repository.TemplateListFilter{Status: "Approved"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "tpl-002", records[0].ID)

	records, total, err = repo.List(context.Background(), &repository.TemplateListFilter{BusinessUnit: "COMMERCIAL"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "tpl-001", records[0].ID)
}
