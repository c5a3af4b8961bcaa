package model

import (
	"time"
)

// ContractorModel 承包商模型
type ContractorModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	WalletAddress string `json:"wallet_address" gorm:"uniqueIndex;not null" binding:"required"`
	CompanyName   string `json:"company_name"`
	Email         string `json:"email" gorm:"uniqueIndex;not null" binding:"required"`
	PasswordHash  string `json:"-" gorm:"not null"`
	IsActive      bool   `json:"is_active" gorm:"default:true"`
}

// TableName 自定义表名
func (ContractorModel) TableName() string {
	return "contractor"
}
