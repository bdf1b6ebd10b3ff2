package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReaper_SweepDeletesOrphans 测试清理一批孤儿对象
func TestReaper_SweepDeletesOrphans(t *testing.T) {
	store := storage.NewMemoryStore()
	queue := &fakeQueue{}
	reaper := storage.NewOrphanReaper(store, queue, nil, time.Hour)

	require.NoError(t, store.Put(context.Background(), "orphan-1", []byte("a")))
	require.NoError(t, store.Put(context.Background(), "orphan-2", []byte("b")))
	reaper.Enqueue("orphan-1", "tpl-001", "delete failed")
	reaper.Enqueue("orphan-2", "tpl-002", "delete failed")

	reaper.Sweep(context.Background())

	assert.Equal(t, 0, store.Len())
	for _, orphan := range queue.all() {
		assert.Equal(t, model.OrphanStatusCleaned, orphan.Status)
	}
}

// TestReaper_SweepRetriesOnFailure 删除失败时保留待清理状态并累计重试次数
func TestReaper_SweepRetriesOnFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	queue := &fakeQueue{}
	reaper := storage.NewOrphanReaper(store, queue, nil, time.Hour)

	reaper.Enqueue("orphan-1", "tpl-001", "delete failed")
	store.DeleteErr = errors.New("still unavailable")

	reaper.Sweep(context.Background())

	orphans := queue.all()
	require.Len(t, orphans, 1)
	assert.Equal(t, model.OrphanStatusPending, orphans[0].Status)
	assert.Equal(t, 1, orphans[0].RetryCount)

	// 故障恢复后下一轮清理成功
	store.DeleteErr = nil
	reaper.Sweep(context.Background())
	assert.Equal(t, model.OrphanStatusCleaned, queue.all()[0].Status)
}

// TestReaper_SweepGivesUpAfterMaxRetries 重试耗尽后标记失败等待人工对账
func TestReaper_SweepGivesUpAfterMaxRetries(t *testing.T) {
	store := storage.NewMemoryStore()
	queue := &fakeQueue{}
	reaper := storage.NewOrphanReaper(store, queue, nil, time.Hour)

	reaper.Enqueue("orphan-1", "tpl-001", "delete failed")
	store.DeleteErr = errors.New("permanent failure")

	for i := 0; i < 6; i++ {
		reaper.Sweep(context.Background())
	}

	orphans := queue.all()
	require.Len(t, orphans, 1)
	assert.Equal(t, model.OrphanStatusFailed, orphans[0].Status)
	assert.GreaterOrEqual(t, orphans[0].RetryCount, 5)
}

// TestReaper_StartStop 测试后台循环的启动与停止
func TestReaper_StartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	queue := &fakeQueue{}
	reaper := storage.NewOrphanReaper(store, queue, nil, 10*time.Millisecond)

	require.NoError(t, store.Put(context.Background(), "orphan-1", []byte("a")))

	reaper.Start()
	reaper.Enqueue("orphan-1", "tpl-001", "delete failed")

	// 入队通知或定时扫描都会触发清理
	assert.Eventually(t, func() bool {
		orphans := queue.all()
		return len(orphans) == 1 && orphans[0].Status == model.OrphanStatusCleaned
	}, time.Second, 10*time.Millisecond)

	reaper.Stop()
	// 重复 Stop 不会 panic
	reaper.Stop()
}
