package logic

import (
	"errors"

	"github.com/blues/eos/internal/auth"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/model"
	"gorm.io/gorm"
)

// ContractorLogic 承包商业务逻辑
type ContractorLogic struct {
	db  *gorm.DB
	cfg config.AuthConfig
}

// NewContractorLogic 创建承包商业务逻辑
func NewContractorLogic(db *gorm.DB, cfg config.AuthConfig) *ContractorLogic {
	return &ContractorLogic{db: db, cfg: cfg}
}

// Register 注册承包商
func (c *ContractorLogic) Register(contractor *model.ContractorModel, password string) error {
	if contractor.WalletAddress == "" {
		return errors.New("钱包地址不能为空")
	}
	if contractor.Email == "" {
		return errors.New("邮箱不能为空")
	}
	if len(password) < 6 {
		return errors.New("密码长度不能少于6位")
	}

	// 检查邮箱和钱包地址是否已注册
	var count int64
	c.db.Model(&model.ContractorModel{}).
		Where("email = ? OR wallet_address = ?", contractor.Email, contractor.WalletAddress).
		Count(&count)
	if count > 0 {
		return errors.New("邮箱或钱包地址已注册")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	contractor.PasswordHash = hash
	contractor.IsActive = true

	return c.db.Create(contractor).Error
}

// Login 登录并签发访问令牌
func (c *ContractorLogic) Login(email, password string) (string, *model.ContractorModel, error) {
	var contractor model.ContractorModel
	if err := c.db.Where("email = ?", email).First(&contractor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, errors.New("邮箱或密码错误")
		}
		return "", nil, err
	}

	if !contractor.IsActive {
		return "", nil, errors.New("账号已禁用")
	}
	if !auth.VerifyPassword(password, contractor.PasswordHash) {
		return "", nil, errors.New("邮箱或密码错误")
	}

	token, err := auth.CreateAccessToken(contractor.WalletAddress, c.cfg)
	if err != nil {
		return "", nil, err
	}
	return token, &contractor, nil
}

// GetByWallet 按钱包地址查询承包商
func (c *ContractorLogic) GetByWallet(walletAddress string) (*model.ContractorModel, error) {
	var contractor model.ContractorModel
	if err := c.db.Where("wallet_address = ?", walletAddress).First(&contractor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("承包商不存在")
		}
		return nil, err
	}
	return &contractor, nil
}
