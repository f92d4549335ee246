// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assistant-console-go/internal/cache"
	"assistant-console-go/internal/config"
	"assistant-console-go/internal/handler"
	"assistant-console-go/internal/repository"
	"assistant-console-go/internal/service"
	"assistant-console-go/pkg/database"
	"assistant-console-go/pkg/kafka"
	"assistant-console-go/pkg/llm"
	"assistant-console-go/pkg/log"
	"assistant-console-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// 1. 初始化配置
	configPath := "./configs/config.yaml"
	if p := os.Getenv("CONSOLE_CONFIG"); p != "" {
		configPath = p
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 实例 ID 用于在 Kafka 事件中识别本实例
	instanceID := uuid.NewString()
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. 初始化数据源
	assistantRepo, closeStore, err := openAssistantRepository(rootCtx, cfg.Store)
	if err != nil {
		log.Fatal("初始化助手数据源失败", err)
	}
	defer closeStore()
	if seeder, ok := assistantRepo.(repository.Seeder); ok {
		if err := seeder.SeedIfEmpty(rootCtx, repository.SeedAssistants()); err != nil {
			log.Fatal("写入初始助手数据失败", err)
		}
	}
	sessionRepo := repository.NewSessionRepository()

	// 4. 初始化 Kafka 生产者（可选）
	var publisher service.EventPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
	}

	// 5. 初始化 Service (依赖注入)
	assistantCache := cache.NewAssistantCache(assistantRepo)
	assistantService := service.NewAssistantService(assistantRepo, assistantCache, publisher, instanceID)
	confirmManager := token.NewConfirmManager(cfg.Chat.ConfirmSecret, cfg.Chat.ResetConfirmTTL)
	chatService := service.NewChatService(sessionRepo, newResponder(cfg), confirmManager, cfg.Chat.FallbackMessage)

	// 6. 启动后台 Kafka 消费者，其他实例的变更会使本地缓存失效
	if cfg.Kafka.Enabled {
		go kafka.StartConsumer(rootCtx, cfg.Kafka, instanceID, assistantService)
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(assistantService, chatService)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s (store=%s, responder=%s)", srv.Addr, cfg.Store.Driver, cfg.Chat.Responder)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并关闭生产者
	cancelRoot()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

// openAssistantRepository 根据 store.driver 选择数据源，返回对应的关闭函数。
func openAssistantRepository(ctx context.Context, cfg config.StoreConfig) (repository.AssistantRepository, func(), error) {
	switch cfg.Driver {
	case "mysql":
		db, err := database.OpenMySQL(cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewGormAssistantRepository(db), closeFn, nil
	case "redis":
		rdb, err := database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisAssistantRepository(rdb), func() { _ = rdb.Close() }, nil
	default:
		log.Infof("使用内存模拟数据源，删除失败率 %.2f", cfg.DeleteFailureRate)
		repo := repository.NewMemoryAssistantRepository(repository.MemoryOptions{
			Latency:           cfg.Latency,
			DeleteFailureRate: cfg.DeleteFailureRate,
			Seed:              repository.SeedAssistants(),
		})
		return repo, func() {}, nil
	}
}

func newResponder(cfg config.Config) llm.Client {
	if cfg.Chat.Responder == "openai" {
		return llm.NewOpenAIClient(cfg.LLM)
	}
	return llm.NewMockClient(llm.MockOptions{
		MinDelay:    cfg.Chat.MinDelay,
		MaxDelay:    cfg.Chat.MaxDelay,
		FailureRate: cfg.Chat.FailureRate,
	})
}
