package policy

import (
	"fmt"
	"strings"

	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/naming"
)

// ChangeSet 一次更新请求中发生变化的字段集合
// nil/空指针表示该字段保持不变
type ChangeSet struct {
	BusinessUnits  []string      // 新业务单元列表,nil 表示不变
	TemplateType   *string       // 新模板类型,nil 表示不变
	TargetStatus   *model.Status // 请求的目标状态,nil 表示不变
	ContentChanged bool          // 是否携带新内容
}

// RejectReason 拒绝原因
type RejectReason string

const (
	// RejectNone 未拒绝
	RejectNone RejectReason = ""
	// RejectTerminalState 记录处于终态,拒绝一切变更
	RejectTerminalState RejectReason = "terminal_state"
	// RejectInvalidStatus 目标状态不合法
	RejectInvalidStatus RejectReason = "invalid_target_status"
)

// Decision 状态迁移决策结果
type Decision struct {
	NewStatus          model.Status
	NewName            string // 按提议字段重新派生的规范名称
	NameChanged        bool
	RelocationRequired bool
	Rejected           RejectReason
}

// Decide 状态迁移决策,按固定顺序评估以下规则:
//  1. 当前状态为 Canceled: 拒绝 (terminal_state),不再评估后续规则
//  2. 从 PendingApproval 请求 Approved 且无其他字段变更:
//     newStatus=Approved, nameChanged=false, relocationRequired=true (staging -> approved, 同名)
//  3. 请求 Canceled: newStatus=Canceled, nameChanged=false, relocationRequired=false
//  4. 其余任何字段级变更(包括对 Approved 记录的变更):
//     若当前为 Approved 则强制降级为 PendingApproval (任何编辑都使已审批模板失效),
//     否则保持 PendingApproval;按提议的业务单元/类型和不变的创建时间重新派生名称,
//     relocationRequired = nameChanged || unitsChanged || (oldStatus != newStatus)
func Decide(current *model.TemplateRecord, change ChangeSet) (Decision, error) {
	// 规则 1: 终态拒绝
	if current.Status.Terminal() {
		return Decision{Rejected: RejectTerminalState}, nil
	}

	if change.TargetStatus != nil && !change.TargetStatus.Valid() {
		return Decision{Rejected: RejectInvalidStatus}, nil
	}

	// 计算提议的字段值
	proposedUnits := current.BusinessUnits
	if change.BusinessUnits != nil {
		proposedUnits = change.BusinessUnits
	}
	proposedType := current.TemplateType
	if change.TemplateType != nil {
		proposedType = *change.TemplateType
	}

	unitsChanged := change.BusinessUnits != nil && !naming.UnitsEqual(current.BusinessUnits, change.BusinessUnits)
	typeChanged := change.TemplateType != nil &&
		!strings.EqualFold(strings.TrimSpace(*change.TemplateType), strings.TrimSpace(current.TemplateType))
	fieldChanged := unitsChanged || typeChanged || change.ContentChanged

	// 规则 2: 纯审批通过
	if change.TargetStatus != nil && *change.TargetStatus == model.StatusApproved {
		if current.Status == model.StatusPendingApproval && !fieldChanged {
			return Decision{
				NewStatus:          model.StatusApproved,
				NewName:            current.DerivedName,
				NameChanged:        false,
				RelocationRequired: true,
			}, nil
		}
		if current.Status == model.StatusApproved && !fieldChanged {
			// 重复审批已审批记录: 幂等空操作
			return Decision{
				NewStatus:          model.StatusApproved,
				NewName:            current.DerivedName,
				NameChanged:        false,
				RelocationRequired: false,
			}, nil
		}
		// 审批与字段编辑同时出现时按规则 4 处理
	}

	// 规则 3: 取消
	if change.TargetStatus != nil && *change.TargetStatus == model.StatusCanceled {
		return Decision{
			NewStatus:          model.StatusCanceled,
			NewName:            current.DerivedName,
			NameChanged:        false,
			RelocationRequired: false,
		}, nil
	}

	// 规则 4: 字段级变更
	newStatus := current.Status
	if current.Status == model.StatusApproved {
		newStatus = model.StatusPendingApproval
	}

	newName, err := naming.Derive(proposedUnits, proposedType, current.CreatedAt)
	if err != nil {
		return Decision{}, fmt.Errorf("derive proposed name: %w", err)
	}
	nameChanged := newName != current.DerivedName

	return Decision{
		NewStatus:          newStatus,
		NewName:            newName,
		NameChanged:        nameChanged,
		RelocationRequired: nameChanged || unitsChanged || current.Status != newStatus,
	}, nil
}

// HasChanges 判断变更集是否包含任何实际变更
func (c ChangeSet) HasChanges() bool {
	return c.BusinessUnits != nil || c.TemplateType != nil || c.TargetStatus != nil || c.ContentChanged
}
