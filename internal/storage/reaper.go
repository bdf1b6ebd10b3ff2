package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/template-gin/internal/metrics"
	"github.com/mautops/template-gin/internal/model"
	"github.com/sirupsen/logrus"
)

// OrphanQueue 孤儿对象的持久化队列
// Save 以主键幂等保存(新增或更新),FindPending 按创建时间取待清理批次
type OrphanQueue interface {
	Save(orphan *model.OrphanObjectModel) error
	FindPending(limit int) ([]*model.OrphanObjectModel, error)
}

// OrphanReaper 孤儿对象后台清理器
// 搬移的删除阶段失败时源对象入队,由清理器周期性重试删除。
// 孤儿持久化在数据库中,进程重启后继续清理
type OrphanReaper struct {
	store      BlobStore
	queue      OrphanQueue
	logger     *logrus.Logger
	interval   time.Duration
	maxRetries int
	batchSize  int

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewOrphanReaper 创建孤儿清理器
func NewOrphanReaper(store BlobStore, queue OrphanQueue, logger *logrus.Logger, interval time.Duration) *OrphanReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OrphanReaper{
		store:      store,
		queue:      queue,
		logger:     logger,
		interval:   interval,
		maxRetries: 5,
		batchSize:  100,
		notify:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
}

// Start 启动后台清理循环
func (r *OrphanReaper) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop 停止清理器并等待循环退出
func (r *OrphanReaper) Stop() {
	r.once.Do(func() {
		close(r.stop)
	})
	r.wg.Wait()
}

// Enqueue 将孤儿对象入队等待清理
func (r *OrphanReaper) Enqueue(location, recordID, reason string) {
	now := time.Now()
	orphan := &model.OrphanObjectModel{
		ID:        uuid.New().String(),
		Location:  location,
		RecordID:  recordID,
		Reason:    reason,
		Status:    model.OrphanStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.queue.Save(orphan); err != nil {
		// 持久化失败只能记日志,对象留待人工对账
		r.logger.WithField("location", location).WithError(err).Error("failed to persist orphan object")
		return
	}
	metrics.RecordOrphanEnqueued()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// run 清理循环: 定时或被 Enqueue 唤醒时扫一批
func (r *OrphanReaper) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-r.notify:
			r.Sweep(context.Background())
		case <-ticker.C:
			r.Sweep(context.Background())
		}
	}
}

// Sweep 清理一批待处理孤儿
func (r *OrphanReaper) Sweep(ctx context.Context) {
	orphans, err := r.queue.FindPending(r.batchSize)
	if err != nil {
		r.logger.WithError(err).Error("failed to load pending orphan objects")
		return
	}

	for _, orphan := range orphans {
		if err := r.store.Delete(ctx, orphan.Location); err != nil {
			orphan.RetryCount++
			if orphan.RetryCount >= r.maxRetries {
				orphan.Status = model.OrphanStatusFailed
				r.logger.WithFields(logrus.Fields{
					"location":  orphan.Location,
					"record_id": orphan.RecordID,
				}).WithError(err).Error("orphan cleanup exhausted retries, manual reconciliation required")
			} else {
				r.logger.WithField("location", orphan.Location).WithError(err).Warn("orphan cleanup failed, will retry")
			}
		} else {
			orphan.Status = model.OrphanStatusCleaned
			metrics.RecordOrphanCleaned()
		}
		orphan.UpdatedAt = time.Now()
		if err := r.queue.Save(orphan); err != nil {
			r.logger.WithField("location", orphan.Location).WithError(err).Error("failed to update orphan object")
		}
	}
}
