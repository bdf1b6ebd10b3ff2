package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/template-gin/internal/metrics"
	"github.com/sirupsen/logrus"
)

// ErrConflictAtDestination 目标位置已存在内容不同的对象
// 不可重试: 名称唯一性由上游保证,这里只暴露冲突,绝不覆盖
var ErrConflictAtDestination = errors.New("conflict at destination")

// ErrIntegrity 校验和不匹配(可重试)
var ErrIntegrity = errors.New("integrity error")

// MoverConfig 对象搬移配置
type MoverConfig struct {
	MaxRetries     int           // 单次搬移的最大尝试次数
	InitialBackoff time.Duration // 首次重试前的等待时间,之后指数退避
}

// DefaultMoverConfig 返回默认搬移配置
func DefaultMoverConfig() MoverConfig {
	return MoverConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
	}
}

// ObjectMover 对象搬移器
// 协议分三个阶段,每个阶段独立可重试且幂等:
//  1. Copy: 复制 src 到 dst;dst 已存在且校验和与 src 一致视为已完成,
//     不一致则报 ErrConflictAtDestination
//  2. Verify: 比较 dst 与 src 的校验和,不一致则删除 dst 并报 ErrIntegrity
//  3. Delete: 仅在 Verify 通过后删除 src;删除失败记日志并入队孤儿清理,
//     不影响搬移结果(dst 校验通过后搬移在语义上已完成)
type ObjectMover struct {
	store  BlobStore
	reaper *OrphanReaper
	logger *logrus.Logger
	cfg    MoverConfig
}

// NewObjectMover 创建对象搬移器
func NewObjectMover(store BlobStore, reaper *OrphanReaper, logger *logrus.Logger, cfg MoverConfig) *ObjectMover {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ObjectMover{store: store, reaper: reaper, logger: logger, cfg: cfg}
}

// Move 将对象从 src 搬移到 dst (先复制校验,后删除源)
// 任何时刻 src 和 dst 至少有一份完整内容存在,绝不先删后拷
func (m *ObjectMover) Move(ctx context.Context, src, dst, recordID string) error {
	if src == dst {
		return nil
	}

	srcSum, err := m.store.Checksum(ctx, src)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			// 源不存在但目标已就位: 前一次搬移已完成,幂等返回成功
			if ok, exErr := m.store.Exists(ctx, dst); exErr == nil && ok {
				return nil
			}
		}
		return fmt.Errorf("failed to checksum source %q: %w", src, err)
	}

	var lastErr error
	backoff := m.cfg.InitialBackoff
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordMoveRetry()
			if err := m.wait(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}

		lastErr = m.copyAndVerify(ctx, src, dst, srcSum)
		if lastErr == nil {
			m.deleteSource(ctx, src, recordID)
			metrics.RecordRelocation("success")
			return nil
		}
		if errors.Is(lastErr, ErrConflictAtDestination) {
			metrics.RecordRelocation("conflict")
			return lastErr
		}
	}

	// 重试耗尽: 尽力清理属于本次搬移的目标残留,源保持原样
	m.cleanupDestination(ctx, dst, srcSum)
	metrics.RecordRelocation("failed")
	return fmt.Errorf("move %q -> %q exhausted %d attempts: %w", src, dst, m.cfg.MaxRetries, lastErr)
}

// Place 将给定内容写入指定位置并校验
// 用于初次上传和内容更新,同样带有界重试
func (m *ObjectMover) Place(ctx context.Context, location string, content []byte) error {
	sum := sha256.Sum256(content)
	expected := hex.EncodeToString(sum[:])

	var lastErr error
	backoff := m.cfg.InitialBackoff
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordMoveRetry()
			if err := m.wait(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}

		if err := m.store.Put(ctx, location, content); err != nil {
			lastErr = fmt.Errorf("failed to put object: %w", err)
			continue
		}
		actual, err := m.store.Checksum(ctx, location)
		if err != nil {
			lastErr = fmt.Errorf("failed to verify object: %w", err)
			continue
		}
		if actual != expected {
			_ = m.store.Delete(ctx, location)
			lastErr = fmt.Errorf("%w: put %q expected %s got %s", ErrIntegrity, location, expected, actual)
			continue
		}
		return nil
	}
	return fmt.Errorf("place %q exhausted %d attempts: %w", location, m.cfg.MaxRetries, lastErr)
}

// Replace 在 dst 写入新内容并清理旧位置的对象
// 旧位置删除失败与 Move 的删除阶段同样降级为孤儿清理
func (m *ObjectMover) Replace(ctx context.Context, src, dst, recordID string, content []byte) error {
	if err := m.Place(ctx, dst, content); err != nil {
		return err
	}
	if src != "" && src != dst {
		m.deleteSource(ctx, src, recordID)
	}
	return nil
}

// copyAndVerify 执行复制与校验两个阶段
func (m *ObjectMover) copyAndVerify(ctx context.Context, src, dst, srcSum string) error {
	exists, err := m.store.Exists(ctx, dst)
	if err != nil {
		return fmt.Errorf("failed to check destination: %w", err)
	}
	if exists {
		dstSum, err := m.store.Checksum(ctx, dst)
		if err != nil {
			return fmt.Errorf("failed to checksum destination: %w", err)
		}
		if dstSum == srcSum {
			// 前一次部分尝试已复制成功
			return nil
		}
		return fmt.Errorf("%w: %q already holds different content", ErrConflictAtDestination, dst)
	}

	if err := m.store.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("failed to copy object: %w", err)
	}

	dstSum, err := m.store.Checksum(ctx, dst)
	if err != nil {
		return fmt.Errorf("failed to verify destination: %w", err)
	}
	if dstSum != srcSum {
		_ = m.store.Delete(ctx, dst)
		return fmt.Errorf("%w: copy %q -> %q expected %s got %s", ErrIntegrity, src, dst, srcSum, dstSum)
	}
	return nil
}

// deleteSource 删除阶段: 失败不报错,转入孤儿清理
func (m *ObjectMover) deleteSource(ctx context.Context, src, recordID string) {
	if err := m.store.Delete(ctx, src); err != nil {
		m.logger.WithFields(logrus.Fields{
			"location":  src,
			"record_id": recordID,
		}).WithError(err).Warn("failed to delete source after verified move, queueing orphan cleanup")
		if m.reaper != nil {
			m.reaper.Enqueue(src, recordID, "source delete after verified move failed")
		}
	}
}

// cleanupDestination 搬移失败后尽力移除本次尝试留下的目标残留
// 仅删除校验和与源一致的对象,避免误删他人内容
func (m *ObjectMover) cleanupDestination(ctx context.Context, dst, srcSum string) {
	dstSum, err := m.store.Checksum(ctx, dst)
	if err != nil {
		return
	}
	if dstSum == srcSum {
		if err := m.store.Delete(ctx, dst); err != nil {
			m.logger.WithField("location", dst).WithError(err).Warn("failed to clean up destination after failed move")
		}
	}
}

// wait 可被取消的退避等待
func (m *ObjectMover) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
