package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/template-gin/internal/metrics"
	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/naming"
	"github.com/mautops/template-gin/internal/policy"
	"github.com/mautops/template-gin/internal/repository"
	"github.com/mautops/template-gin/internal/storage"
	"github.com/sirupsen/logrus"
)

// saga 步骤名,用于错误定位和日志
const (
	stepValidating       = "validating"
	stepRecordStaged     = "record_staged"
	stepObjectRelocating = "object_relocating"
	stepCompensating     = "compensating"
)

// CreateTemplateRequest 创建模板请求
type CreateTemplateRequest struct {
	BusinessUnits []string `json:"business_units" binding:"required"` // 业务单元列表,顺序参与名称派生
	TemplateType  string   `json:"template_type" binding:"required"`  // 模板类型
	Content       []byte   `json:"content" binding:"required"`        // 模板内容
}

// UpdateTemplateRequest 更新模板请求
// nil 字段表示保持不变
type UpdateTemplateRequest struct {
	BusinessUnits []string      `json:"business_units"` // 新业务单元列表
	TemplateType  *string       `json:"template_type"`  // 新模板类型
	TargetStatus  *model.Status `json:"status"`         // 目标状态
	Content       []byte        `json:"content"`        // 新模板内容
}

// TemplateListFilter 模板列表过滤器
type TemplateListFilter = repository.TemplateListFilter

// PaginationInfo 分页信息
type PaginationInfo struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"total_page"`
}

// TemplateListResponse 模板列表响应
type TemplateListResponse struct {
	Data       []*model.TemplateRecord `json:"data"`
	Pagination PaginationInfo          `json:"pagination"`
}

// TemplateService 模板服务接口
// Update/Approve/Cancel 都经由同一个更新协调 saga;
// 失败时返回 *UpdateError (用 AsUpdateError 提取分类)
type TemplateService interface {
	Create(ctx context.Context, req *CreateTemplateRequest) (*model.TemplateRecord, error)
	Get(ctx context.Context, id string) (*model.TemplateRecord, error)
	List(ctx context.Context, filter *TemplateListFilter) (*TemplateListResponse, error)
	Update(ctx context.Context, id string, req *UpdateTemplateRequest) (*model.TemplateRecord, error)
	Approve(ctx context.Context, id string) (*model.TemplateRecord, error)
	Cancel(ctx context.Context, id string) (*model.TemplateRecord, error)
}

// CoordinatorConfig 更新协调器配置
type CoordinatorConfig struct {
	WriteTimeout time.Duration // 关系库条件写超时
	MoveTimeout  time.Duration // 对象搬移总超时
}

// updateCoordinator 更新协调器
// saga 状态机: Validating -> RecordStaged -> ObjectRelocating -> Finalized,
// 任何非终态可进入 Compensating -> Failed。
// 记录写永远先于对象搬移,且搬移绝不先删源,
// 因此补偿只需一次关系记录回滚,无需对象侧补偿
type updateCoordinator struct {
	repo     repository.TemplateRepository
	store    storage.BlobStore
	mover    *storage.ObjectMover
	resolver *naming.Resolver
	audit    AuditService
	logger   *logrus.Logger
	cfg      CoordinatorConfig
}

// NewTemplateService 创建模板服务
func NewTemplateService(
	repo repository.TemplateRepository,
	store storage.BlobStore,
	mover *storage.ObjectMover,
	resolver *naming.Resolver,
	audit AuditService,
	logger *logrus.Logger,
	cfg CoordinatorConfig,
) TemplateService {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &updateCoordinator{
		repo:     repo,
		store:    store,
		mover:    mover,
		resolver: resolver,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
	}
}

// Create 创建模板记录
// 状态固定为 PendingApproval,版本号 0,创建时间取 UTC 秒级精度并从此不可变
func (s *updateCoordinator) Create(ctx context.Context, req *CreateTemplateRequest) (*model.TemplateRecord, error) {
	units, err := naming.NormalizeUnits(req.BusinessUnits)
	if err != nil {
		return nil, newInputError("business_units", "invalid business units", err)
	}
	templateType := strings.ToUpper(strings.TrimSpace(req.TemplateType))
	if templateType == "" {
		return nil, newInputError("template_type", "template type must not be blank", nil)
	}
	if len(req.Content) == 0 {
		return nil, newInputError("content", "content must not be empty", nil)
	}

	createdAt := time.Now().UTC().Truncate(time.Second)
	name, err := naming.Derive(units, templateType, createdAt)
	if err != nil {
		return nil, newInputError("business_units", "failed to derive name", err)
	}
	location, err := s.resolver.Resolve(units, model.StatusPendingApproval, name)
	if err != nil {
		return nil, newInputError("business_units", "failed to resolve location", err)
	}

	// 派生位置已被占用: 两条不同记录派生出同一名称,拒绝而不是覆盖
	if exists, err := s.store.Exists(ctx, location); err != nil {
		return nil, newUpdateError(ErrInfrastructure, stepValidating, "failed to check destination", err)
	} else if exists {
		return nil, newUpdateError(ErrConflictAtDestination, stepValidating,
			fmt.Sprintf("location %q already holds content", location), nil)
	}

	mctx, cancel := context.WithTimeout(ctx, s.cfg.MoveTimeout)
	defer cancel()
	if err := s.mover.Place(mctx, location, req.Content); err != nil {
		return nil, s.mapMoveError(err, stepObjectRelocating)
	}

	record := &model.TemplateRecord{
		ID:              uuid.New().String(),
		BusinessUnits:   units,
		TemplateType:    templateType,
		Status:          model.StatusPendingApproval,
		CreatedAt:       createdAt,
		DerivedName:     name,
		ContentLocation: location,
		Version:         0,
		UpdatedAt:       createdAt,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// 记录未落库,回收已上传的内容对象
		_ = s.store.Delete(ctx, location)
		return nil, newUpdateError(ErrInfrastructure, stepRecordStaged, "failed to create record", err)
	}

	s.emit(record.ID, model.ActionCreated, nil, record, "")
	return record, nil
}

// Get 获取模板记录
func (s *updateCoordinator) Get(ctx context.Context, id string) (*model.TemplateRecord, error) {
	return s.repo.FindByID(ctx, id)
}

// List 查询模板记录列表
func (s *updateCoordinator) List(ctx context.Context, filter *TemplateListFilter) (*TemplateListResponse, error) {
	if filter == nil {
		filter = &TemplateListFilter{Page: 1, PageSize: 20}
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPage := int(total) / filter.PageSize
	if int(total)%filter.PageSize > 0 {
		totalPage++
	}
	return &TemplateListResponse{
		Data: records,
		Pagination: PaginationInfo{
			Page:      filter.Page,
			PageSize:  filter.PageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	}, nil
}

// Approve 审批通过(目标状态 Approved 的更新)
func (s *updateCoordinator) Approve(ctx context.Context, id string) (*model.TemplateRecord, error) {
	status := model.StatusApproved
	return s.Update(ctx, id, &UpdateTemplateRequest{TargetStatus: &status})
}

// Cancel 取消(目标状态 Canceled 的更新)
func (s *updateCoordinator) Cancel(ctx context.Context, id string) (*model.TemplateRecord, error) {
	status := model.StatusCanceled
	return s.Update(ctx, id, &UpdateTemplateRequest{TargetStatus: &status})
}

// Update 更新协调 saga 入口
func (s *updateCoordinator) Update(ctx context.Context, id string, req *UpdateTemplateRequest) (*model.TemplateRecord, error) {
	start := time.Now()

	// Validating: 校验输入
	if id == "" {
		return nil, newInputError("id", "id must not be blank", nil)
	}
	change, uerr := s.buildChangeSet(req)
	if uerr != nil {
		return nil, uerr
	}

	// Validating: 在并发守卫下加载当前记录(捕获版本号)
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, newInputError("id", "template not found", err)
		}
		return nil, newUpdateError(ErrInfrastructure, stepValidating, "failed to load record", err)
	}

	if !change.HasChanges() {
		return current, nil
	}

	// Validating: 运行状态迁移决策
	decision, err := policy.Decide(current, change)
	if err != nil {
		return nil, newInputError("business_units", "failed to evaluate transition", err)
	}
	switch decision.Rejected {
	case policy.RejectNone:
	case policy.RejectTerminalState:
		// 拒绝是终态而非 saga 失败: 无任何副作用,直接返回
		uerr := newUpdateError(ErrTerminalState, stepValidating, "record is canceled and immutable", nil)
		s.emit(id, model.ActionRejected, current, nil, uerr.Error())
		metrics.RecordUpdate(model.ActionRejected, "rejected", time.Since(start))
		return nil, uerr
	default:
		return nil, newInputError("status", string(decision.Rejected), nil)
	}

	action := actionFor(change, decision)

	proposedUnits := current.BusinessUnits
	if change.BusinessUnits != nil {
		proposedUnits = change.BusinessUnits
	}
	proposedType := current.TemplateType
	if change.TemplateType != nil {
		proposedType = *change.TemplateType
	}

	newLocation, err := s.resolver.Resolve(proposedUnits, decision.NewStatus, decision.NewName)
	if err != nil {
		return nil, newInputError("business_units", "failed to resolve location", err)
	}

	// 幂等空操作: 没有任何实际变化时不提交,版本号不变
	if !decision.RelocationRequired && !change.ContentChanged &&
		decision.NewStatus == current.Status && newLocation == current.ContentLocation {
		return current, nil
	}

	// RecordStaged: 版本守卫下的条件写
	staged := current.Clone()
	staged.BusinessUnits = proposedUnits
	staged.TemplateType = proposedType
	staged.Status = decision.NewStatus
	staged.DerivedName = decision.NewName
	staged.ContentLocation = newLocation
	staged.Version = current.Version + 1
	staged.UpdatedAt = time.Now().UTC()

	committed, uerr := s.stageRecord(ctx, staged, current.Version)
	if uerr != nil {
		s.emit(id, model.ActionFailed, current, nil, uerr.Error())
		metrics.RecordUpdate(action, outcomeFor(uerr), time.Since(start))
		return nil, uerr
	}

	// ObjectRelocating: 记录已提交后才触碰对象
	if uerr := s.relocate(ctx, current, committed, change, req.Content); uerr != nil {
		if uerr.Category == ErrCompensationFailure {
			s.emit(id, model.ActionFailed, current, committed, uerr.Error())
		} else {
			s.emit(id, model.ActionFailed, current, nil, uerr.Error())
		}
		metrics.RecordUpdate(action, outcomeFor(uerr), time.Since(start))
		return nil, uerr
	}

	// Finalized
	s.emit(id, action, current, committed, "")
	metrics.RecordUpdate(action, "success", time.Since(start))
	return committed, nil
}

// buildChangeSet 校验请求字段并构造变更集
func (s *updateCoordinator) buildChangeSet(req *UpdateTemplateRequest) (policy.ChangeSet, *UpdateError) {
	var change policy.ChangeSet
	if req == nil {
		return change, nil
	}

	if req.BusinessUnits != nil {
		units, err := naming.NormalizeUnits(req.BusinessUnits)
		if err != nil {
			return change, newInputError("business_units", "invalid business units", err)
		}
		change.BusinessUnits = units
	}
	if req.TemplateType != nil {
		t := strings.ToUpper(strings.TrimSpace(*req.TemplateType))
		if t == "" {
			return change, newInputError("template_type", "template type must not be blank", nil)
		}
		change.TemplateType = &t
	}
	if req.TargetStatus != nil {
		if !req.TargetStatus.Valid() {
			return change, newInputError("status", fmt.Sprintf("unknown status %q", *req.TargetStatus), nil)
		}
		change.TargetStatus = req.TargetStatus
	}
	change.ContentChanged = req.Content != nil
	return change, nil
}

// stageRecord 执行条件写并处理歧义结果
func (s *updateCoordinator) stageRecord(ctx context.Context, staged *model.TemplateRecord, expectedVersion int64) (*model.TemplateRecord, *UpdateError) {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	committed, err := s.repo.ConditionalUpdate(wctx, staged, expectedVersion)
	switch {
	case err == nil:
		return committed, nil
	case errors.Is(err, repository.ErrVersionConflict):
		// 乐观锁失败: 尚未提交任何东西,无需补偿
		return nil, newUpdateError(ErrConcurrentModification, stepRecordStaged,
			"record was modified concurrently, reload and retry", err)
	case errors.Is(err, repository.ErrRecordNotFound):
		return nil, newInputError("id", "template not found", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// 写结果未知: 必须重读确认,绝不盲目重试
		return s.resolveAmbiguousWrite(staged, expectedVersion, err)
	default:
		return nil, newUpdateError(ErrInfrastructure, stepRecordStaged, "conditional update failed", err)
	}
}

// resolveAmbiguousWrite 条件写超时后重读记录判定实际结果
func (s *updateCoordinator) resolveAmbiguousWrite(staged *model.TemplateRecord, expectedVersion int64, cause error) (*model.TemplateRecord, *UpdateError) {
	rctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	current, err := s.repo.FindByID(rctx, staged.ID)
	if err != nil {
		return nil, newUpdateError(ErrInfrastructure, stepRecordStaged,
			"write outcome unknown and re-read failed", errors.Join(cause, err))
	}

	switch {
	case current.Version == expectedVersion:
		// 写未生效,安全地按基础设施故障上报,调用方可重试
		return nil, newUpdateError(ErrInfrastructure, stepRecordStaged, "conditional update timed out before commit", cause)
	case current.Version == staged.Version &&
		current.Status == staged.Status &&
		current.DerivedName == staged.DerivedName &&
		current.ContentLocation == staged.ContentLocation:
		// 写已生效,继续 saga
		return current, nil
	default:
		// 其他请求胜出
		return nil, newUpdateError(ErrConcurrentModification, stepRecordStaged,
			"record was modified concurrently during ambiguous write", cause)
	}
}

// relocate 执行对象侧变更,失败时补偿关系记录
func (s *updateCoordinator) relocate(ctx context.Context, original, committed *model.TemplateRecord, change policy.ChangeSet, content []byte) *UpdateError {
	var moveErr error
	// 是否搬移以提交后的解析位置为准,保证位置与状态段始终一致:
	// 取消已审批记录时状态段从 approved 回到 staging,对象必须跟随,
	// 即使迁移决策本身不标记搬移
	needMove := committed.ContentLocation != original.ContentLocation

	if !change.ContentChanged && !needMove {
		return nil
	}

	mctx, cancel := context.WithTimeout(ctx, s.cfg.MoveTimeout)
	defer cancel()

	if change.ContentChanged {
		src := ""
		if needMove {
			src = original.ContentLocation
		}
		moveErr = s.mover.Replace(mctx, src, committed.ContentLocation, committed.ID, content)
	} else {
		moveErr = s.mover.Move(mctx, original.ContentLocation, committed.ContentLocation, committed.ID)
	}
	if moveErr == nil {
		return nil
	}

	stepErr := s.mapMoveError(moveErr, stepObjectRelocating)

	// Compensating: 用步骤 2 产生的版本号把记录回滚到更新前的字段值。
	// 对象侧无需补偿: 搬移失败时源对象从未被删除
	comp := original.Clone()
	comp.Version = committed.Version + 1
	comp.UpdatedAt = time.Now().UTC()

	cctx, ccancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer ccancel()
	if _, err := s.repo.ConditionalUpdate(cctx, comp, committed.Version); err != nil {
		metrics.RecordCompensation("failed")
		s.logger.WithFields(logrus.Fields{
			"record_id": committed.ID,
			"version":   committed.Version,
		}).WithError(err).Error("compensation failed, record and object state may diverge")
		return newUpdateError(ErrCompensationFailure, stepCompensating,
			"relocation failed and record rollback also failed, manual reconciliation required",
			errors.Join(moveErr, err))
	}

	metrics.RecordCompensation("success")
	s.logger.WithFields(logrus.Fields{
		"record_id": committed.ID,
		"from":      original.ContentLocation,
		"to":        committed.ContentLocation,
	}).WithError(moveErr).Warn("relocation failed, record compensated to prior state")
	return stepErr
}

// mapMoveError 将对象搬移错误映射到更新错误分类
func (s *updateCoordinator) mapMoveError(err error, step string) *UpdateError {
	switch {
	case errors.Is(err, storage.ErrConflictAtDestination):
		return newUpdateError(ErrConflictAtDestination, step, "destination holds unrelated content", err)
	case errors.Is(err, storage.ErrIntegrity):
		return newUpdateError(ErrIntegrity, step, "checksum verification failed after retries", err)
	default:
		return newUpdateError(ErrInfrastructure, step, "object store operation failed after retries", err)
	}
}

// emit 发出审计事件(发送即忘)
func (s *updateCoordinator) emit(recordID, action string, oldSnap, newSnap *model.TemplateRecord, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(&AuditEvent{
		RecordID:    recordID,
		Action:      action,
		OldSnapshot: oldSnap.Clone(),
		NewSnapshot: newSnap.Clone(),
		Detail:      detail,
		Timestamp:   time.Now(),
	})
}

// actionFor 根据变更集和决策确定审计动作
func actionFor(change policy.ChangeSet, decision policy.Decision) string {
	if decision.NewStatus == model.StatusCanceled {
		return model.ActionCanceled
	}
	if change.TargetStatus != nil && *change.TargetStatus == model.StatusApproved &&
		decision.NewStatus == model.StatusApproved {
		return model.ActionApproved
	}
	return model.ActionUpdated
}

// outcomeFor 根据错误分类确定指标结果标签
func outcomeFor(err *UpdateError) string {
	switch err.Category {
	case ErrConcurrentModification:
		return "conflict"
	case ErrCompensationFailure:
		return "compensation_failed"
	default:
		return "failed"
	}
}
