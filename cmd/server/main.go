package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/handler"
	"loyaltyledger/internal/infrastructure/cache"
	"loyaltyledger/internal/infrastructure/database"
	"loyaltyledger/internal/infrastructure/lock"
	"loyaltyledger/internal/infrastructure/logging"
	"loyaltyledger/internal/infrastructure/mq"
	"loyaltyledger/internal/job"
	"loyaltyledger/internal/model"
	"loyaltyledger/internal/service"
	"loyaltyledger/pkg/idgen"
)

const leaderboardCacheTTL = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)

	logCloser := logging.Setup(&cfg.Log)
	defer logCloser.Close()

	// 初始化 ID 生成器
	idgen.Init(cfg.Server.WorkerID)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)
	if cfg.Business.SeedCatalog {
		if err := database.SeedCatalog(context.Background(), db, model.DefaultCatalog); err != nil {
			log.Fatalf("初始化奖励目录失败: %v", err)
		}
	}

	// Redis 可选：启用时使用分布式锁和排行榜缓存，否则退化为进程内锁（仅单实例部署）
	var locker service.AccountLocker
	var leaderboardCache service.LeaderboardCache
	lockTTL := time.Duration(cfg.Business.LockTTLSeconds) * time.Second
	if cfg.Redis.Enabled {
		redisClient := cache.InitRedis(&cfg.Redis)
		defer redisClient.Close()
		locker = lock.NewRedisAccountLocker(redisClient, lockTTL)
		leaderboardCache = cache.NewLeaderboardCache(redisClient, leaderboardCacheTTL)
	} else {
		log.Println("Redis 未启用，使用进程内账户锁")
		locker = lock.NewLocalAccountLocker()
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	if cfg.Kafka.Enabled {
		publisher := mq.InitKafka(&cfg.Kafka)
		defer publisher.Close()

		outboxSender := job.NewOutboxSender(db, publisher, cfg)
		go outboxSender.Start(ctx)
	} else {
		log.Println("Kafka 未启用，账本事件保留在 outbox_message 表中")
	}

	if cfg.Business.ReconcileIntervalSeconds > 0 {
		reconcileJob := job.NewReconcileJob(db, cfg)
		go reconcileJob.Start(ctx)
	}

	// 设置路由
	h := handler.NewHandler(db, locker, leaderboardCache, cfg)
	router := handler.SetupRouter(h, cfg)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
