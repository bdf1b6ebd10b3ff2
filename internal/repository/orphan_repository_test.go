package repository_test

import (
	"testing"
	"time"

	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDBForOrphan 创建孤儿对象测试数据库
func setupTestDBForOrphan(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&model.OrphanObjectModel{})
	require.NoError(t, err)

	return db
}

func newOrphan(id, location string, createdAt time.Time) *model.OrphanObjectModel {
	return &model.OrphanObjectModel{
		ID:        id,
		Location:  location,
		RecordID:  "tpl-001",
		Reason:    "source delete after verified move failed",
		Status:    model.OrphanStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// TestOrphanRepository_SaveUpsert Save 按主键新增或更新
func TestOrphanRepository_SaveUpsert(t *testing.T) {
	db := setupTestDBForOrphan(t)
	repo := repository.NewOrphanRepository(db)

	orphan := newOrphan("orphan-001", "templates/A/staging/x.tpl", time.Now())
	require.NoError(t, repo.Save(orphan))

	orphan.Status = model.OrphanStatusCleaned
	orphan.RetryCount = 2
	require.NoError(t, repo.Save(orphan))

	var count int64
	require.NoError(t, db.Model(&model.OrphanObjectModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	found, err := repo.FindByRecordID("tpl-001")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, model.OrphanStatusCleaned, found[0].Status)
	assert.Equal(t, 2, found[0].RetryCount)
}

// TestOrphanRepository_FindPending 只取待清理状态,按创建时间升序
func TestOrphanRepository_FindPending(t *testing.T) {
	db := setupTestDBForOrphan(t)
	repo := repository.NewOrphanRepository(db)

	base := time.Now().Add(-time.Hour)
	older := newOrphan("orphan-001", "loc-1", base)
	newer := newOrphan("orphan-002", "loc-2", base.Add(time.Minute))
	cleaned := newOrphan("orphan-003", "loc-3", base.Add(2*time.Minute))
	cleaned.Status = model.OrphanStatusCleaned

	require.NoError(t, repo.Save(newer))
	require.NoError(t, repo.Save(older))
	require.NoError(t, repo.Save(cleaned))

	pending, err := repo.FindPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "orphan-001", pending[0].ID)
	assert.Equal(t, "orphan-002", pending[1].ID)
}
