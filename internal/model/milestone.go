package model

import (
	"time"
)

// MilestoneModel 里程碑模型
type MilestoneModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId   int64  `json:"project_id" gorm:"not null;index"`
	Description string `json:"description" gorm:"type:text"` // 同时作为验证标准

	// 金额（结算资产单位）
	Amount float64 `json:"amount" gorm:"not null"`

	// 展示顺序，从1开始；跨入链上索引空间时需减1
	OrderIndex int `json:"order_index" gorm:"not null"`

	// 状态只能向前推进: pending -> completed -> verified
	Status      MilestoneStatus `json:"status" gorm:"default:'pending'"`
	IsCompleted bool            `json:"is_completed" gorm:"default:false"` // status的冗余字段，便于过滤
}

// MilestoneStatus 里程碑状态
type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"   // 待验证
	MilestoneStatusCompleted MilestoneStatus = "completed" // 链上已完成但未放款
	MilestoneStatusVerified  MilestoneStatus = "verified"  // 已验证并放款
)

// ChainIndex 对应的链上索引（0起始）
func (m *MilestoneModel) ChainIndex() uint64 {
	if m.OrderIndex <= 0 {
		return 0
	}
	return uint64(m.OrderIndex - 1)
}

// TableName 自定义表名
func (MilestoneModel) TableName() string {
	return "milestone"
}
