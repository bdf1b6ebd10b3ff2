package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/mautops/template-gin/internal/websocket"
	"github.com/sirupsen/logrus"
)

// AuditEvent 更新协调器每个终态产生一条结构化审计事件
type AuditEvent struct {
	RecordID    string                `json:"record_id"`
	Action      string                `json:"action"` // created/updated/approved/canceled/rejected/failed
	OldSnapshot *model.TemplateRecord `json:"old_snapshot,omitempty"`
	NewSnapshot *model.TemplateRecord `json:"new_snapshot,omitempty"`
	Detail      string                `json:"detail,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

// AuditService 审计事件服务
// 对协调器而言发送即忘: 事件入队后由 worker 异步持久化并广播,
// 审计的持久性是本服务的责任,不阻塞更新路径
type AuditService interface {
	Emit(event *AuditEvent)
	Stop()
}

// auditService 审计事件服务实现
type auditService struct {
	repo   repository.AuditLogRepository
	hub    *websocket.Hub
	logger *logrus.Logger
	queue  chan *AuditEvent
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewAuditService 创建审计事件服务
// hub 可以为 nil,此时只持久化不广播
func NewAuditService(repo repository.AuditLogRepository, hub *websocket.Hub, logger *logrus.Logger, workers, queueSize int) AuditService {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &auditService{
		repo:   repo,
		hub:    hub,
		logger: logger,
		queue:  make(chan *AuditEvent, queueSize),
		stop:   make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

// Emit 发出审计事件(不阻塞)
func (s *auditService) Emit(event *AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case s.queue <- event:
	default:
		// 队列满时丢弃并记日志,不阻塞更新路径
		s.logger.WithFields(logrus.Fields{
			"record_id": event.RecordID,
			"action":    event.Action,
		}).Warn("audit queue full, dropping event")
	}
}

// Stop 停止服务并排空队列
func (s *auditService) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// worker 审计事件处理 worker
func (s *auditService) worker() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.queue:
			s.handle(event)
		case <-s.stop:
			// 排空剩余事件后退出
			for {
				select {
				case event := <-s.queue:
					s.handle(event)
				default:
					return
				}
			}
		}
	}
}

// handle 持久化并广播单个事件
func (s *auditService) handle(event *AuditEvent) {
	oldSnap, _ := json.Marshal(event.OldSnapshot)
	newSnap, _ := json.Marshal(event.NewSnapshot)

	log := &model.AuditLogModel{
		ID:          uuid.New().String(),
		RecordID:    event.RecordID,
		Action:      event.Action,
		OldSnapshot: oldSnap,
		NewSnapshot: newSnap,
		Detail:      event.Detail,
		CreatedAt:   event.Timestamp,
	}
	if s.repo != nil {
		if err := s.repo.Save(log); err != nil {
			s.logger.WithField("record_id", event.RecordID).WithError(err).Error("failed to persist audit log")
		}
	}

	if s.hub != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.WithError(err).Error("failed to marshal audit event")
			return
		}
		s.hub.Broadcast(payload)
	}
}
