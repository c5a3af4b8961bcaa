package main

import (
	"github.com/blues/eos/internal/chain"
	"github.com/blues/eos/internal/config"
	"github.com/blues/eos/internal/currency"
	"github.com/blues/eos/internal/database"
	"github.com/blues/eos/internal/inference"
	"github.com/blues/eos/internal/logger"
	"github.com/blues/eos/internal/router"
	"github.com/blues/eos/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env先于viper加载，密钥类配置走环境变量
	_ = godotenv.Load()

	// 加载配置
	cfg := config.Load()

	// 按配置初始化日志器
	level := logger.ParseLogLevel(cfg.Log.Level)
	if cfg.Log.Output == "file" {
		l, err := logger.NewWithFileRotation(level, cfg.Log.File)
		if err != nil {
			logger.Fatal("Failed to initialize file logger: %v", err)
		}
		logger.SetDefaultLogger(l)
	} else {
		l, err := logger.New(level)
		if err != nil {
			logger.Fatal("Failed to initialize logger: %v", err)
		}
		logger.SetDefaultLogger(l)
	}

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化结算链后端
	backend, err := chain.NewEVMBackend(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain backend: %v", err)
	}

	// 初始化推理后端
	inferBackend, err := inference.NewGeminiBackend(cfg.Inference)
	if err != nil {
		logger.Fatal("Failed to initialize inference backend: %v", err)
	}

	// 初始化汇率服务
	rates := currency.NewService(cfg.Currency)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, backend, inferBackend, rates, cfg)

	// 启动定时任务
	manager := task.Start(db, backend, rates, cfg)
	defer manager.Stop()

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
