package model

import (
	"time"
)

// ProjectModel 工程项目模型
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	Name        string `json:"name" gorm:"not null" binding:"required"`
	Description string `json:"description" gorm:"type:text"`

	// 预算信息（以结算资产计价，非法币）
	TotalBudget float64 `json:"total_budget" gorm:"not null" binding:"required,min=0"`

	// 地理围栏信息
	Latitude    float64 `json:"project_latitude"`
	Longitude   float64 `json:"project_longitude"`
	ToleranceKm float64 `json:"location_tolerance_km" gorm:"default:1.0"` // 允许偏差半径（公里）

	// 参与方
	ContractorId int64  `json:"contractor_id" gorm:"not null"`
	GovWallet    string `json:"gov_wallet"` // 出资方钱包

	// 里程碑生成方式
	AiGenerated bool `json:"ai_generated" gorm:"default:false"`

	// 链上关联ID（项目未上链时为空，结算引擎拒绝处理）
	OnChainId string `json:"on_chain_id"`
}

// Deployed 项目是否已上链
func (p *ProjectModel) Deployed() bool {
	return p.OnChainId != "" && p.OnChainId != "None"
}

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
