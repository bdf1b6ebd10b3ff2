package naming_test

import (
	"testing"
	"time"

	"github.com/mautops/template-gin/internal/model"
	"github.com/mautops/template-gin/internal/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeUnits 测试业务单元归一化
func TestNormalizeUnits(t *testing.T) {
	units, err := naming.NormalizeUnits([]string{"commercial", " Retail "})
	require.NoError(t, err)
	assert.Equal(t, []string{"COMMERCIAL", "RETAIL"}, units)
}

// TestNormalizeUnits_Invalid 测试非法业务单元列表
func TestNormalizeUnits_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		units []string
	}{
		{"空列表", nil},
		{"空白单元", []string{"COMMERCIAL", "  "}},
		{"重复单元", []string{"COMMERCIAL", "commercial"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := naming.NormalizeUnits(tt.units)
			assert.ErrorIs(t, err, naming.ErrInvalidInput)
		})
	}
}

// TestUnitsEqual 测试业务单元列表等价比较
func TestUnitsEqual(t *testing.T) {
	assert.True(t, naming.UnitsEqual([]string{"commercial"}, []string{"COMMERCIAL"}))
	// 顺序敏感
	assert.False(t, naming.UnitsEqual([]string{"A", "B"}, []string{"B", "A"}))
	assert.False(t, naming.UnitsEqual([]string{"A"}, []string{"A", "B"}))
	// 非法列表视为不等
	assert.False(t, naming.UnitsEqual(nil, nil))
}

// TestDerive 测试规范名称派生
func TestDerive(t *testing.T) {
	createdAt := time.Date(2024, 11, 15, 10, 30, 15, 0, time.UTC)

	name, err := naming.Derive([]string{"commercial"}, "email", createdAt)
	require.NoError(t, err)
	assert.Equal(t, "COMMERCIAL_EMAIL_2024-11-15T10-30-15", name)

	// 多业务单元保持原有顺序
	name, err = naming.Derive([]string{"retail", "commercial"}, "sms", createdAt)
	require.NoError(t, err)
	assert.Equal(t, "RETAIL_COMMERCIAL_SMS_2024-11-15T10-30-15", name)
}

// TestDerive_Deterministic 测试派生的确定性
func TestDerive_Deterministic(t *testing.T) {
	createdAt := time.Date(2024, 11, 15, 10, 30, 15, 0, time.UTC)
	first, err := naming.Derive([]string{"COMMERCIAL"}, "EMAIL", createdAt)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		name, err := naming.Derive([]string{"commercial"}, "email", createdAt)
		require.NoError(t, err)
		assert.Equal(t, first, name)
	}
}

// TestDerive_Invalid 测试非法派生输入
func TestDerive_Invalid(t *testing.T) {
	createdAt := time.Date(2024, 11, 15, 10, 30, 15, 0, time.UTC)

	_, err := naming.Derive(nil, "EMAIL", createdAt)
	assert.ErrorIs(t, err, naming.ErrInvalidInput)

	_, err = naming.Derive([]string{"COMMERCIAL"}, "  ", createdAt)
	assert.ErrorIs(t, err, naming.ErrInvalidInput)

	_, err = naming.Derive([]string{"COMMERCIAL"}, "EMAIL", time.Time{})
	assert.ErrorIs(t, err, naming.ErrInvalidInput)
}

// TestResolver_Resolve 测试对象位置解析
func TestResolver_Resolve(t *testing.T) {
	r := naming.NewResolver("templates", "tpl")

	location, err := r.Resolve([]string{"commercial"}, model.StatusPendingApproval, "COMMERCIAL_EMAIL_2024-11-15T10-30-15")
	require.NoError(t, err)
	assert.Equal(t, "templates/COMMERCIAL/staging/COMMERCIAL_EMAIL_2024-11-15T10-30-15.tpl", location)

	location, err = r.Resolve([]string{"commercial"}, model.StatusApproved, "COMMERCIAL_EMAIL_2024-11-15T10-30-15")
	require.NoError(t, err)
	assert.Equal(t, "templates/COMMERCIAL/approved/COMMERCIAL_EMAIL_2024-11-15T10-30-15.tpl", location)

	// 多业务单元与名称派生使用相同的拼接
	location, err = r.Resolve([]string{"retail", "commercial"}, model.StatusPendingApproval, "N")
	require.NoError(t, err)
	assert.Equal(t, "templates/RETAIL_COMMERCIAL/staging/N.tpl", location)
}

// TestResolver_Defaults 测试解析器默认值
func TestResolver_Defaults(t *testing.T) {
	r := naming.NewResolver("", "")
	assert.Equal(t, "templates", r.BucketRoot)
	assert.Equal(t, "tpl", r.Extension)
}

// TestStatusSegment 测试状态到路径段的映射
func TestStatusSegment(t *testing.T) {
	seg, err := naming.StatusSegment(model.StatusPendingApproval)
	require.NoError(t, err)
	assert.Equal(t, "staging", seg)

	// Canceled 复用 staging 段
	seg, err = naming.StatusSegment(model.StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, "staging", seg)

	seg, err = naming.StatusSegment(model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, "approved", seg)

	_, err = naming.StatusSegment(model.Status("Draft"))
	assert.ErrorIs(t, err, naming.ErrInvalidInput)
}
