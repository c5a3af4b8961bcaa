package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/eos/internal/currency"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectLogic 项目业务逻辑
type ProjectLogic struct {
	db        *gorm.DB
	rates     *currency.Service
	milestone *MilestoneLogic
}

// NewProjectLogic 创建项目业务逻辑
func NewProjectLogic(db *gorm.DB, rates *currency.Service, milestone *MilestoneLogic) *ProjectLogic {
	return &ProjectLogic{db: db, rates: rates, milestone: milestone}
}

// CreateProjectInput 创建项目的输入
type CreateProjectInput struct {
	Name           string
	Description    string
	BudgetNgn      float64 // 奈拉预算，入库前换算为结算资产
	Latitude       float64
	Longitude      float64
	ToleranceKm    float64
	ContractorId   int64
	GovWallet      string
	UseAi          bool     // 是否由AI生成里程碑
	MilestoneCount int      // AI生成的里程碑数量
	Milestones     []string // 手工指定的里程碑描述（UseAi为false时）
}

// CreateProject 创建项目及其里程碑。
// 预算按当前汇率换算为结算资产，均分到各里程碑。
func (p *ProjectLogic) CreateProject(ctx context.Context, in CreateProjectInput) (*model.ProjectModel, []model.MilestoneModel, error) {
	if in.Name == "" {
		return nil, nil, errors.New("项目名称不能为空")
	}
	if in.BudgetNgn <= 0 {
		return nil, nil, errors.New("预算必须大于0")
	}
	if in.ContractorId == 0 {
		return nil, nil, errors.New("承包商ID不能为空")
	}

	// 奈拉预算换算为结算资产
	budget := p.rates.NgnToMnt(ctx, in.BudgetNgn)

	// 里程碑描述：AI生成或手工指定，都失败时兜底方案保证创建不失败
	var descriptions []string
	if in.UseAi {
		descriptions = p.milestone.GenerateDescriptions(ctx, in.Name, in.Description, in.MilestoneCount)
	} else {
		descriptions = in.Milestones
	}
	if len(descriptions) == 0 {
		descriptions = defaultMilestones
	}

	tolerance := in.ToleranceKm
	if tolerance <= 0 {
		tolerance = 1.0
	}

	project := &model.ProjectModel{
		Name:         in.Name,
		Description:  in.Description,
		TotalBudget:  budget,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		ToleranceKm:  tolerance,
		ContractorId: in.ContractorId,
		GovWallet:    in.GovWallet,
		AiGenerated:  in.UseAi,
	}

	// 预算均分到各里程碑
	share, _ := decimal.NewFromFloat(budget).
		Div(decimal.NewFromInt(int64(len(descriptions)))).Float64()

	milestones := make([]model.MilestoneModel, 0, len(descriptions))
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("创建项目失败: %w", err)
		}

		for i, desc := range descriptions {
			milestone := model.MilestoneModel{
				ProjectId:   project.Id,
				Description: desc,
				Amount:      share,
				OrderIndex:  i + 1,
				Status:      model.MilestoneStatusPending,
			}
			if err := tx.Create(&milestone).Error; err != nil {
				return fmt.Errorf("创建里程碑失败: %w", err)
			}
			milestones = append(milestones, milestone)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Created project %d (%q): budget %.2f NGN -> %.6f MNT across %d milestones",
		project.Id, project.Name, in.BudgetNgn, budget, len(milestones))
	return project, milestones, nil
}

// GetProjects 获取项目列表
func (p *ProjectLogic) GetProjects() ([]model.ProjectModel, error) {
	var projects []model.ProjectModel
	if err := p.db.Order("id ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("获取项目列表失败: %w", err)
	}
	return projects, nil
}

// GetProject 获取项目详情及其里程碑
func (p *ProjectLogic) GetProject(id int64) (*model.ProjectModel, []model.MilestoneModel, error) {
	var project model.ProjectModel
	if err := p.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errors.New("项目不存在")
		}
		return nil, nil, fmt.Errorf("获取项目详情失败: %w", err)
	}

	milestones, err := p.milestone.GetProjectMilestones(id)
	if err != nil {
		return nil, nil, err
	}
	return &project, milestones, nil
}

// UpdateProject 更新项目，只允许更新特定字段
func (p *ProjectLogic) UpdateProject(id int64, updates map[string]interface{}) error {
	var project model.ProjectModel
	if err := p.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("项目不存在")
		}
		return err
	}

	allowedFields := []string{"name", "description", "latitude", "longitude",
		"tolerance_km", "gov_wallet"}
	for key := range updates {
		if !contains(allowedFields, key) {
			delete(updates, key)
		}
	}
	if len(updates) == 0 {
		return errors.New("没有要更新的字段")
	}

	return p.db.Model(&project).Updates(updates).Error
}

// UpdateOnChainId 更新项目的链上关联ID
func (p *ProjectLogic) UpdateOnChainId(id int64, onChainId string) error {
	if onChainId == "" {
		return errors.New("链上ID不能为空")
	}

	var project model.ProjectModel
	if err := p.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("项目不存在")
		}
		return err
	}

	if err := p.db.Model(&project).Update("on_chain_id", onChainId).Error; err != nil {
		return err
	}
	logger.Info("Project %d correlated with on-chain id %s", id, onChainId)
	return nil
}

// DeleteProject 删除项目并级联删除其里程碑
func (p *ProjectLogic) DeleteProject(id int64) error {
	var project model.ProjectModel
	if err := p.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("项目不存在")
		}
		return err
	}

	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).
			Delete(&model.MilestoneModel{}).Error; err != nil {
			return fmt.Errorf("删除里程碑失败: %w", err)
		}
		if err := tx.Delete(&project).Error; err != nil {
			return fmt.Errorf("删除项目失败: %w", err)
		}
		return nil
	})
}

// contains 检查切片是否包含指定元素
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
