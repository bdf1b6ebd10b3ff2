package container

import (
	"fmt"
	"time"

	"github.com/mautops/template-gin/internal/config"
	"github.com/mautops/template-gin/internal/database"
	"github.com/mautops/template-gin/internal/naming"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/mautops/template-gin/internal/service"
	"github.com/mautops/template-gin/internal/storage"
	"github.com/mautops/template-gin/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理数据库、对象存储、搬移器和各服务组件
type Container struct {
	db              *gorm.DB
	store           storage.BlobStore
	reaper          *storage.OrphanReaper
	mover           *storage.ObjectMover
	resolver        *naming.Resolver
	hub             *websocket.Hub
	templateRepo    repository.TemplateRepository
	auditRepo       repository.AuditLogRepository
	orphanRepo      repository.OrphanRepository
	auditService    service.AuditService
	templateService service.TemplateService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = logrus.New()
	}

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 初始化对象存储
	store, err := storage.NewFilesystemStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	// 3. 初始化仓储层
	templateRepo := repository.NewTemplateRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	orphanRepo := repository.NewOrphanRepository(db)

	// 4. 初始化孤儿对象清理器并启动后台循环
	reaper := storage.NewOrphanReaper(store, orphanRepo, logger, cfg.Saga.ReaperInterval)
	reaper.Start()

	// 5. 初始化对象搬移器
	mover := storage.NewObjectMover(store, reaper, logger, storage.MoverConfig{
		MaxRetries:     cfg.Saga.MaxRetries,
		InitialBackoff: cfg.Saga.InitialBackoff,
	})

	// 6. 初始化名称解析器
	resolver := naming.NewResolver(cfg.Storage.BucketRoot, cfg.Storage.Extension)

	// 7. 初始化 WebSocket Hub 和审计服务
	hub := websocket.NewHub()
	go hub.Run()
	auditService := service.NewAuditService(auditRepo, hub, logger, cfg.Saga.AuditWorkers, cfg.Saga.AuditQueueSize)

	// 8. 初始化模板服务
	templateService := service.NewTemplateService(templateRepo, store, mover, resolver, auditService, logger, service.CoordinatorConfig{
		WriteTimeout: cfg.Saga.WriteTimeout,
		MoveTimeout:  cfg.Saga.MoveTimeout,
	})

	return &Container{
		db:              db,
		store:           store,
		reaper:          reaper,
		mover:           mover,
		resolver:        resolver,
		hub:             hub,
		templateRepo:    templateRepo,
		auditRepo:       auditRepo,
		orphanRepo:      orphanRepo,
		auditService:    auditService,
		templateService: templateService,
	}, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// BlobStore 获取对象存储
func (c *Container) BlobStore() storage.BlobStore {
	return c.store
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// TemplateRepository 获取模板仓储
func (c *Container) TemplateRepository() repository.TemplateRepository {
	return c.templateRepo
}

// AuditLogRepository 获取审计日志仓储
func (c *Container) AuditLogRepository() repository.AuditLogRepository {
	return c.auditRepo
}

// OrphanRepository 获取孤儿对象仓储
func (c *Container) OrphanRepository() repository.OrphanRepository {
	return c.orphanRepo
}

// AuditService 获取审计事件服务
func (c *Container) AuditService() service.AuditService {
	return c.auditService
}

// TemplateService 获取模板服务
func (c *Container) TemplateService() service.TemplateService {
	return c.templateService
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	// 先停审计服务,保证队列中的事件落库
	if c.auditService != nil {
		c.auditService.Stop()
	}

	// 停孤儿对象清理器
	if c.reaper != nil {
		c.reaper.Stop()
	}

	return database.Close(c.db)
}
