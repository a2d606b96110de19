package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"

	"github.com/robfig/cron/v3"
)

// SchedulerOptions 定时任务配置
type SchedulerOptions struct {
	InvitationCleanupCron string
	InvitationRetain      time.Duration
	RedeliveryCron        string
	RedeliveryAfter       time.Duration
}

// MaintenanceScheduler 后台维护任务：清理过期邀请、重投未分发的事件
type MaintenanceScheduler struct {
	cron        *cron.Cron
	invitations *InvitationService
	fanout      *NotificationFanout
	opts        SchedulerOptions
	mu          sync.Mutex
	running     bool
}

// NewMaintenanceScheduler 创建维护调度器
func NewMaintenanceScheduler(invitations *InvitationService, fanout *NotificationFanout, opts SchedulerOptions) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:        cron.New(),
		invitations: invitations,
		fanout:      fanout,
		opts:        opts,
	}
}

// Start 启动调度器
func (s *MaintenanceScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("调度器已经在运行")
	}

	if s.opts.InvitationCleanupCron != "" {
		if _, err := s.cron.AddFunc(s.opts.InvitationCleanupCron, s.cleanupInvitations); err != nil {
			return fmt.Errorf("添加邀请清理任务失败: %v", err)
		}
	}
	if s.opts.RedeliveryCron != "" {
		if _, err := s.cron.AddFunc(s.opts.RedeliveryCron, s.redeliverEvents); err != nil {
			return fmt.Errorf("添加事件重投任务失败: %v", err)
		}
	}

	s.cron.Start()
	s.running = true
	logger.GetLogger().Infof("维护调度器启动成功，已加载 %d 个定时任务", len(s.cron.Entries()))
	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	logger.GetLogger().Info("停止维护调度器")
	<-s.cron.Stop().Done()
	s.running = false
}

func (s *MaintenanceScheduler) cleanupInvitations() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.invitations.CleanupExpired(ctx, s.opts.InvitationRetain); err != nil {
		logger.GetLogger().Errorf("清理过期邀请失败: %v", err)
	}
}

func (s *MaintenanceScheduler) redeliverEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	count, err := s.fanout.Redeliver(ctx, s.opts.RedeliveryAfter)
	if err != nil {
		logger.GetLogger().Errorf("重投事件失败: %v", err)
		return
	}
	if count > 0 {
		logger.GetLogger().Infof("重投事件 %d 条", count)
	}
}
