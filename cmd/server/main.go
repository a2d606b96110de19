package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/database"
	"github.com/Dungyy/Gerz-platform-sub000/internal/router"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/config"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/jwt"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/notify"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting maintenance platform...")

	// 初始化数据库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
		if err := database.CloseRedisBus(); err != nil {
			appLogger.Error("Failed to close Redis:", err)
		}
	}()

	if err := database.Migrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	gin.SetMode(cfg.Server.Mode)

	db := database.GetDB()
	bus := database.GetRedisBus()

	// 未读数推送，Redis 未启用时不推送
	var unread services.UnreadPublisher
	if bus != nil {
		unread = bus
	} else {
		appLogger.Warn("Redis未启用，未读数实时推送不可用")
	}

	email, sms := externalSenders(cfg)
	fanout := services.NewNotificationFanout(db, email, sms, unread, services.FanoutOptions{
		Workers:    cfg.Notification.Workers,
		BufferSize: cfg.Notification.BufferSize,
	})
	fanout.Start()

	limiter := services.NewUsageLimiter(db)
	organizations := services.NewOrganizationService(db, limiter, cfg.Invitation.TrialDuration)
	invitations := services.NewInvitationService(db, limiter, email, fanout, services.InvitationOptions{
		TTL:           cfg.Invitation.TTL,
		ShareLinkBase: cfg.Invitation.ShareLinkBase,
	})

	if cfg.Seed.Enabled {
		if err := seedDemo(context.Background(), db, organizations, cfg.Seed); err != nil {
			appLogger.Fatalf("Failed to initialize seed data: %v", err)
		}
	}

	// 维护调度器：清理过期邀请、重投漏发事件
	scheduler := services.NewMaintenanceScheduler(invitations, fanout, services.SchedulerOptions{
		InvitationCleanupCron: cfg.Invitation.CleanupCron,
		InvitationRetain:      cfg.Invitation.CleanupRetain,
		RedeliveryCron:        cfg.Notification.RedeliveryCron,
		RedeliveryAfter:       cfg.Notification.RedeliveryAfter,
	})
	if err := scheduler.Start(); err != nil {
		// 不影响主服务启动
		appLogger.Errorf("Failed to start maintenance scheduler: %v", err)
	}

	r := router.SetupRouter(&router.Dependencies{
		DB:            db,
		Bus:           bus,
		CORS:          cfg.CORS,
		Organizations: organizations,
		Auth:          services.NewAuthService(db, jwt.GetJWTManager()),
		Invitations:   invitations,
		Requests:      services.NewRequestService(db, fanout),
		Accounts:      services.NewAccountService(db, limiter),
		Properties:    services.NewPropertyService(db, limiter),
		Notifications: services.NewNotificationService(db, unread),
	})

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// WebSocket 长连接不设写超时
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}

	scheduler.Stop()
	// 等待队列里的事件写完站内通知
	fanout.Close()
	appLogger.Info("Server exited")
}

// externalSenders 配置了密钥才走 SendGrid/Twilio，否则只记日志
func externalSenders(cfg *config.Config) (notify.EmailSender, notify.SMSSender) {
	appLogger := logger.GetLogger()

	var email notify.EmailSender = &notify.LogSender{Log: appLogger}
	if cfg.Notification.SendGridAPIKey != "" {
		email = notify.NewSendGridSender(
			cfg.Notification.SendGridAPIKey,
			cfg.Notification.FromEmail,
			cfg.Notification.FromName,
			cfg.Notification.SendGridSandbox,
		)
		appLogger.Info("Email delivery via SendGrid")
	}

	var sms notify.SMSSender = &notify.LogSender{Log: appLogger}
	if cfg.Notification.TwilioAccountSID != "" && cfg.Notification.TwilioAuthToken != "" {
		sms = notify.NewTwilioSender(
			cfg.Notification.TwilioAccountSID,
			cfg.Notification.TwilioAuthToken,
			cfg.Notification.TwilioFromPhone,
		)
		appLogger.Info("SMS delivery via Twilio")
	}
	return email, sms
}
