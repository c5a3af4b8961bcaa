package logic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blues/eos/internal/inference"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/model"
	"gorm.io/gorm"
)

// defaultMilestones AI生成失败时的三阶段兜底方案
var defaultMilestones = []string{
	"Phase 1: Site preparation and foundation work completed",
	"Phase 2: Main structure and core construction completed",
	"Phase 3: Finishing work completed and ready for final inspection",
}

// MilestoneLogic 里程碑业务逻辑
type MilestoneLogic struct {
	db      *gorm.DB
	backend inference.Backend
}

// NewMilestoneLogic 创建里程碑业务逻辑
func NewMilestoneLogic(db *gorm.DB, backend inference.Backend) *MilestoneLogic {
	return &MilestoneLogic{db: db, backend: backend}
}

// CreateMilestone 创建里程碑
func (m *MilestoneLogic) CreateMilestone(milestone *model.MilestoneModel) error {
	// 验证里程碑数据
	if err := m.validateMilestone(milestone); err != nil {
		return err
	}

	// 检查项目是否存在
	var project model.ProjectModel
	if err := m.db.First(&project, milestone.ProjectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("项目不存在")
		}
		return err
	}

	// 未指定顺序时追加到末尾
	if milestone.OrderIndex <= 0 {
		var maxIndex int
		m.db.Model(&model.MilestoneModel{}).
			Where("project_id = ?", milestone.ProjectId).
			Select("COALESCE(MAX(order_index), 0)").Scan(&maxIndex)
		milestone.OrderIndex = maxIndex + 1
	}

	milestone.Status = model.MilestoneStatusPending
	milestone.IsCompleted = false

	return m.db.Create(milestone).Error
}

// GetMilestone 获取里程碑详情
func (m *MilestoneLogic) GetMilestone(id int64) (*model.MilestoneModel, error) {
	var milestone model.MilestoneModel
	if err := m.db.First(&milestone, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("里程碑不存在")
		}
		return nil, err
	}
	return &milestone, nil
}

// GetProjectMilestones 获取项目的全部里程碑（按顺序）
func (m *MilestoneLogic) GetProjectMilestones(projectId int64) ([]model.MilestoneModel, error) {
	var milestones []model.MilestoneModel
	if err := m.db.Where("project_id = ?", projectId).
		Order("order_index ASC").Find(&milestones).Error; err != nil {
		return nil, err
	}
	return milestones, nil
}

// GetMilestoneWithProject 获取里程碑及其所属项目
func (m *MilestoneLogic) GetMilestoneWithProject(id int64) (*model.MilestoneModel, *model.ProjectModel, error) {
	milestone, err := m.GetMilestone(id)
	if err != nil {
		return nil, nil, err
	}

	var project model.ProjectModel
	if err := m.db.First(&project, milestone.ProjectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errors.New("项目不存在")
		}
		return nil, nil, err
	}
	return milestone, &project, nil
}

// GenerateDescriptions 用AI生成里程碑描述。
// 任何失败都退回三阶段兜底方案，项目创建不因AI故障而失败。
func (m *MilestoneLogic) GenerateDescriptions(ctx context.Context, name, description string, count int) []string {
	if count < 3 {
		count = 4
	}
	if count > 6 {
		count = 6
	}

	prompt := fmt.Sprintf(
		`Generate %d verifiable construction milestones for the project "%s". Project description: %s. Each milestone must describe observable physical progress that can be verified from video evidence. Return ONLY a JSON array of strings, e.g. ["milestone 1", "milestone 2"].`,
		count, name, description)

	output, err := m.backend.Infer(ctx, prompt, nil)
	if err != nil {
		logger.Warn("AI milestone generation failed, using default phases: %v", err)
		return defaultMilestones
	}

	descriptions, err := parseDescriptionArray(output)
	if err != nil {
		logger.Warn("AI milestone output unparseable, using default phases: %v", err)
		return defaultMilestones
	}

	logger.Info("AI generated %d milestone descriptions for project %q", len(descriptions), name)
	return descriptions
}

// parseDescriptionArray 从模型输出中恢复JSON字符串数组
func parseDescriptionArray(output string) ([]string, error) {
	start := strings.Index(output, "[")
	end := strings.LastIndex(output, "]")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON array in output")
	}

	var descriptions []string
	if err := json.Unmarshal([]byte(output[start:end+1]), &descriptions); err != nil {
		return nil, err
	}
	if len(descriptions) == 0 {
		return nil, errors.New("empty milestone array")
	}
	if len(descriptions) > 10 {
		descriptions = descriptions[:10]
	}

	for _, d := range descriptions {
		if strings.TrimSpace(d) == "" {
			return nil, errors.New("milestone array contains empty descriptions")
		}
	}
	return descriptions, nil
}

// validateMilestone 验证里程碑数据
func (m *MilestoneLogic) validateMilestone(milestone *model.MilestoneModel) error {
	if milestone.ProjectId == 0 {
		return errors.New("项目ID不能为空")
	}
	if milestone.Description == "" {
		return errors.New("里程碑描述不能为空")
	}
	if milestone.Amount <= 0 {
		return errors.New("金额必须大于0")
	}
	return nil
}
