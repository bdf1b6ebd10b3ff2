package naming

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/template-gin/internal/model"
)

// ErrInvalidInput 输入不合法(空业务单元列表、重复单元、空类型等)
var ErrInvalidInput = errors.New("invalid input")

// Separator 名称各部分之间的固定分隔符
const Separator = "_"

// timeLayout 创建时间的固定文本格式
// 秒级精度,字典序即时间序,不含时区(调用方必须传入已归一化为 UTC 的时间)
const timeLayout = "2006-01-02T15-04-05"

// NormalizeUnits 校验并归一化业务单元列表
// 保持原有顺序,每个单元码转为大写;列表为空、含空白单元
// 或含重复单元(忽略大小写)时返回 ErrInvalidInput
func NormalizeUnits(units []string) ([]string, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: business units must not be empty", ErrInvalidInput)
	}

	normalized := make([]string, 0, len(units))
	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		u = strings.ToUpper(strings.TrimSpace(u))
		if u == "" {
			return nil, fmt.Errorf("%w: business unit must not be blank", ErrInvalidInput)
		}
		if _, ok := seen[u]; ok {
			return nil, fmt.Errorf("%w: duplicate business unit %q", ErrInvalidInput, u)
		}
		seen[u] = struct{}{}
		normalized = append(normalized, u)
	}
	return normalized, nil
}

// UnitsEqual 比较两个业务单元列表是否等价
// 顺序敏感,忽略大小写;任一列表不合法时视为不等
func UnitsEqual(a, b []string) bool {
	na, err := NormalizeUnits(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeUnits(b)
	if err != nil {
		return false
	}
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

// Derive 派生模板规范名称
// 纯函数: 相同输入必然产生相同输出,协调器依赖该确定性判断是否需要重命名
// 格式: {UNIT1_UNIT2_...}_{TYPE}_{yyyy-MM-ddTHH-mm-ss}
func Derive(businessUnits []string, templateType string, createdAt time.Time) (string, error) {
	units, err := NormalizeUnits(businessUnits)
	if err != nil {
		return "", err
	}

	templateType = strings.ToUpper(strings.TrimSpace(templateType))
	if templateType == "" {
		return "", fmt.Errorf("%w: template type must not be blank", ErrInvalidInput)
	}
	if createdAt.IsZero() {
		return "", fmt.Errorf("%w: created at must not be zero", ErrInvalidInput)
	}

	parts := make([]string, 0, len(units)+2)
	parts = append(parts, units...)
	parts = append(parts, templateType, createdAt.Format(timeLayout))
	return strings.Join(parts, Separator), nil
}

// Resolver 对象路径解析器
// 根据业务单元、生命周期状态和规范名称计算对象的完整存储位置
type Resolver struct {
	BucketRoot string // 存储根前缀
	Extension  string // 内容文件扩展名(不含点号)
}

// NewResolver 创建路径解析器
func NewResolver(bucketRoot, extension string) *Resolver {
	if bucketRoot == "" {
		bucketRoot = "templates"
	}
	if extension == "" {
		extension = "tpl"
	}
	return &Resolver{BucketRoot: bucketRoot, Extension: extension}
}

// Resolve 计算对象完整位置
// 纯函数,格式: {bucketRoot}/{unitSegment}/{statusSegment}/{name}.{extension}
// 单元段与 Derive 使用同一种拼接方式,保证两者永不分叉
func (r *Resolver) Resolve(businessUnits []string, status model.Status, name string) (string, error) {
	units, err := NormalizeUnits(businessUnits)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("%w: name must not be blank", ErrInvalidInput)
	}

	segment, err := StatusSegment(status)
	if err != nil {
		return "", err
	}

	unitSegment := strings.Join(units, Separator)
	return fmt.Sprintf("%s/%s/%s/%s.%s", r.BucketRoot, unitSegment, segment, name, r.Extension), nil
}

// StatusSegment 状态到路径段的固定映射
// Canceled 复用 staging 段: 取消永不搬移对象
func StatusSegment(status model.Status) (string, error) {
	switch status {
	case model.StatusPendingApproval, model.StatusCanceled:
		return "staging", nil
	case model.StatusApproved:
		return "approved", nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
}
