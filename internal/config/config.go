package config

import (
	"time"

	"github.com/blues/eos/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Inference InferenceConfig `mapstructure:"inference"`
	Currency  CurrencyConfig  `mapstructure:"currency"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Task      TaskConfig      `mapstructure:"task"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 结算链配置
type ChainConfig struct {
	ChainType       string `mapstructure:"chain_type"`       // 链类型 (mantle, ethereum, polygon, etc.)
	ChainId         int64  `mapstructure:"chain_id"`         // 链ID
	RpcUrl          string `mapstructure:"rpc_url"`          // RPC节点URL
	PrivateKey      string `mapstructure:"private_key"`      // Oracle签名私钥
	ContractAddr    string `mapstructure:"contract_addr"`    // 托管合约地址
	GasBufferPct    int64  `mapstructure:"gas_buffer_pct"`   // gas估算缓冲百分比
	GasLimitFixed   uint64 `mapstructure:"gas_limit_fixed"`  // 估算失败时的固定gas上限
	FinalityTimeout int    `mapstructure:"finality_timeout"` // 等待交易确认的超时（秒）
	ExplorerTxUrl   string `mapstructure:"explorer_tx_url"`  // 浏览器交易链接前缀
}

// InferenceConfig AI推理后端配置
type InferenceConfig struct {
	ApiKey           string `mapstructure:"api_key"`           // API密钥
	Model            string `mapstructure:"model"`             // 模型名称
	BaseUrl          string `mapstructure:"base_url"`          // API基础URL
	PollInterval     int    `mapstructure:"poll_interval"`     // 文件处理状态轮询间隔（秒）
	PollTimeout      int    `mapstructure:"poll_timeout"`      // 文件处理等待上限（秒）
	SettleDelay      int    `mapstructure:"settle_delay"`      // 文件就绪后的等待时间（秒）
	MaxAttempts      int    `mapstructure:"max_attempts"`      // 推理重试次数
	RetryDelay       int    `mapstructure:"retry_delay"`       // 普通失败重试间隔（秒）
	RateLimitDelay   int    `mapstructure:"rate_limit_delay"`  // 限流时的重试间隔（秒）
	ReleaseThreshold int    `mapstructure:"release_threshold"` // 触发放款的最低置信度
}

// CurrencyConfig 汇率服务配置
type CurrencyConfig struct {
	CacheTTL     int     `mapstructure:"cache_ttl"`     // 汇率缓存有效期（秒）
	FallbackRate float64 `mapstructure:"fallback_rate"` // 汇率获取失败时的兜底值
	RedisAddr    string  `mapstructure:"redis_addr"`    // Redis地址（为空则使用内存缓存）
	RedisDB      int     `mapstructure:"redis_db"`      // Redis数据库编号
}

// AuthConfig 认证配置
type AuthConfig struct {
	JwtSecret   string `mapstructure:"jwt_secret"`   // JWT签名密钥
	TokenExpiry int    `mapstructure:"token_expiry"` // token有效期（分钟）
}

// StorageConfig 证据文件存储配置
type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir"` // 上传目录
	BaseUrl   string `mapstructure:"base_url"`   // 对外访问的基础URL
}

type TaskConfig struct {
	Interval int `mapstructure:"interval"` // 秒
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// FinalityWait 等待交易确认的超时时间
func (c ChainConfig) FinalityWait() time.Duration {
	return time.Duration(c.FinalityTimeout) * time.Second
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/eos")

	// 设置默认值
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "escrow_oracle")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.chain_type", "mantle")
	viper.SetDefault("chain.chain_id", 5003)
	viper.SetDefault("chain.rpc_url", "https://rpc.sepolia.mantle.xyz")
	viper.SetDefault("chain.gas_buffer_pct", 20)
	viper.SetDefault("chain.gas_limit_fixed", 3000000)
	viper.SetDefault("chain.finality_timeout", 120)
	viper.SetDefault("chain.explorer_tx_url", "https://sepolia-explorer.mantle.xyz/tx/")
	viper.SetDefault("inference.model", "gemini-3-flash-preview")
	viper.SetDefault("inference.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("inference.poll_interval", 3)
	viper.SetDefault("inference.poll_timeout", 60)
	viper.SetDefault("inference.settle_delay", 5)
	viper.SetDefault("inference.max_attempts", 3)
	viper.SetDefault("inference.retry_delay", 5)
	viper.SetDefault("inference.rate_limit_delay", 65)
	viper.SetDefault("inference.release_threshold", 70)
	viper.SetDefault("currency.cache_ttl", 300)
	viper.SetDefault("currency.fallback_rate", 1200)
	viper.SetDefault("currency.redis_addr", "")
	viper.SetDefault("currency.redis_db", 0)
	viper.SetDefault("auth.jwt_secret", "escrow-oracle-secret-key")
	viper.SetDefault("auth.token_expiry", 30)
	viper.SetDefault("storage.upload_dir", "static/uploads")
	viper.SetDefault("storage.base_url", "http://localhost:8000")
	viper.SetDefault("task.interval", 300)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
