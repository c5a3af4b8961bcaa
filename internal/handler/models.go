package handler

import (
	"time"

	"github.com/blues/eos/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 请求模型

// RegisterRequest 承包商注册请求
type RegisterRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	CompanyName   string `json:"company_name"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateProjectRequest 创建项目请求，预算以奈拉计
type CreateProjectRequest struct {
	Name           string   `json:"name" binding:"required"`
	Description    string   `json:"description"`
	BudgetNgn      float64  `json:"budget_ngn" binding:"required,gt=0"`
	Latitude       float64  `json:"project_latitude"`
	Longitude      float64  `json:"project_longitude"`
	ToleranceKm    float64  `json:"location_tolerance_km"`
	ContractorId   int64    `json:"contractor_id" binding:"required"`
	GovWallet      string   `json:"gov_wallet"`
	UseAi          bool     `json:"use_ai"`
	MilestoneCount int      `json:"milestone_count"`
	Milestones     []string `json:"milestones"`
}

// CreateMilestoneRequest 手工创建里程碑请求
type CreateMilestoneRequest struct {
	ProjectId   int64   `json:"project_id" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	OrderIndex  int     `json:"order_index"`
}

// VerifyMilestoneRequest 里程碑验证请求
type VerifyMilestoneRequest struct {
	MilestoneId int64  `json:"milestone_id" binding:"required"`
	VideoUrl    string `json:"video_url" binding:"required"`
}

// ApproveMilestoneRequest 人工审批放款请求
type ApproveMilestoneRequest struct {
	MilestoneId int64 `json:"milestone_id" binding:"required"`
}

// ConvertCurrencyRequest 汇率换算请求
type ConvertCurrencyRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	From   string  `json:"from" binding:"required"`
	To     string  `json:"to" binding:"required"`
}

// 响应模型

// ProjectResponse 项目响应模型，同时给出结算资产与奈拉两种口径
type ProjectResponse struct {
	Id          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TotalBudget float64   `json:"total_budget"`
	BudgetNgn   float64   `json:"budget_ngn"`
	Latitude    float64   `json:"project_latitude"`
	Longitude   float64   `json:"project_longitude"`
	ToleranceKm float64   `json:"location_tolerance_km"`
	Contractor  int64     `json:"contractor_id"`
	GovWallet   string    `json:"gov_wallet"`
	AiGenerated bool      `json:"ai_generated"`
	OnChainId   string    `json:"on_chain_id"`
	Deployed    bool      `json:"deployed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MilestoneResponse 里程碑响应模型
type MilestoneResponse struct {
	Id          int64     `json:"id"`
	ProjectId   int64     `json:"project_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	OrderIndex  int       `json:"order_index"`
	Status      string    `json:"status"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VerificationResponse 验证/放款响应。
// Released只在拿到交易引用后为true；ReleaseError与Notice描述放款侧的异常。
type VerificationResponse struct {
	MilestoneId  int64  `json:"milestone_id"`
	Verified     bool   `json:"verified"`
	Confidence   int    `json:"confidence_score"`
	Reasoning    string `json:"reasoning"`
	Degraded     bool   `json:"degraded,omitempty"`
	Released     bool   `json:"released"`
	TxHash       string `json:"tx_hash,omitempty"`
	ExplorerUrl  string `json:"explorer_url,omitempty"`
	ChainIndex   uint64 `json:"chain_index,omitempty"`
	Notice       string `json:"notice,omitempty"`
	ReleaseError string `json:"release_error,omitempty"`
}

// 转换函数

// ToProjectResponse 将数据库模型转换为响应模型
func ToProjectResponse(project *model.ProjectModel, ngnRate float64) ProjectResponse {
	return ProjectResponse{
		Id:          project.Id,
		Name:        project.Name,
		Description: project.Description,
		TotalBudget: project.TotalBudget,
		BudgetNgn:   project.TotalBudget * ngnRate,
		Latitude:    project.Latitude,
		Longitude:   project.Longitude,
		ToleranceKm: project.ToleranceKm,
		Contractor:  project.ContractorId,
		GovWallet:   project.GovWallet,
		AiGenerated: project.AiGenerated,
		OnChainId:   project.OnChainId,
		Deployed:    project.Deployed(),
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}
}

// ToProjectResponseList 将数据库模型列表转换为响应模型列表
func ToProjectResponseList(projects []model.ProjectModel, ngnRate float64) []ProjectResponse {
	result := make([]ProjectResponse, len(projects))
	for i := range projects {
		result[i] = ToProjectResponse(&projects[i], ngnRate)
	}
	return result
}

// ToMilestoneResponse 将数据库模型转换为响应模型
func ToMilestoneResponse(milestone *model.MilestoneModel) MilestoneResponse {
	return MilestoneResponse{
		Id:          milestone.Id,
		ProjectId:   milestone.ProjectId,
		Description: milestone.Description,
		Amount:      milestone.Amount,
		OrderIndex:  milestone.OrderIndex,
		Status:      string(milestone.Status),
		IsCompleted: milestone.IsCompleted,
		CreatedAt:   milestone.CreatedAt,
		UpdatedAt:   milestone.UpdatedAt,
	}
}

// ToMilestoneResponseList 将数据库模型列表转换为响应模型列表
func ToMilestoneResponseList(milestones []model.MilestoneModel) []MilestoneResponse {
	result := make([]MilestoneResponse, len(milestones))
	for i := range milestones {
		result[i] = ToMilestoneResponse(&milestones[i])
	}
	return result
}
