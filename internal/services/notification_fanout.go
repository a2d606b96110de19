package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/metrics"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/notify"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UnreadPublisher 推送未读数，Redis 未启用时可以为 nil
type UnreadPublisher interface {
	PublishUnread(ctx context.Context, msg queue.UnreadMessage) error
}

// FanoutOptions 分发配置
type FanoutOptions struct {
	Workers    int
	BufferSize int
}

// NotificationFanout 把领域事件展开成每个接收人的通知。
// 站内通知和事件的 dispatched_at 同一事务写入；邮件短信失败只记日志
type NotificationFanout struct {
	db     *gorm.DB
	log    *logrus.Logger
	email  notify.EmailSender
	sms    notify.SMSSender
	unread UnreadPublisher
	now    Clock

	queue   chan *models.DomainEvent
	workers int
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
}

// recipient 一个接收人和适用的偏好分组
type recipient struct {
	actor    *models.Actor
	group    models.PrefGroup
	override bool // 紧急通知忽略开关
}

// NewNotificationFanout 创建通知分发器，email/sms 为 nil 时只写站内通知
func NewNotificationFanout(db *gorm.DB, email notify.EmailSender, sms notify.SMSSender, unread UnreadPublisher, opts FanoutOptions) *NotificationFanout {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	return &NotificationFanout{
		db:      db,
		log:     logger.GetLogger(),
		email:   email,
		sms:     sms,
		unread:  unread,
		now:     systemClock,
		queue:   make(chan *models.DomainEvent, opts.BufferSize),
		workers: opts.Workers,
	}
}

// Start 启动后台分发协程
func (f *NotificationFanout) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true
	for i := 0; i < f.workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	f.log.Infof("通知分发器已启动，worker数: %d", f.workers)
}

// Publish 投递事件，不阻塞调用方。队列满时另起协程处理
func (f *NotificationFanout) Publish(evt *models.DomainEvent) {
	if evt == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		// 事件已在 outbox 中，重启后由重投任务处理
		f.log.WithField("event_id", evt.ID).Warn("fanout closed, event left for redelivery")
		return
	}

	select {
	case f.queue <- evt:
		metrics.FanoutQueueDepth.Set(float64(len(f.queue)))
	default:
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.handleLogged(evt)
		}()
	}
}

// Close 停止接收新事件，等待队列里的事件处理完
func (f *NotificationFanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.queue)
	started := f.started
	f.mu.Unlock()

	if !started {
		// 没有 worker 时就地处理剩余事件
		for evt := range f.queue {
			f.handleLogged(evt)
		}
	}
	f.wg.Wait()
	metrics.FanoutQueueDepth.Set(0)
}

func (f *NotificationFanout) worker() {
	defer f.wg.Done()
	for evt := range f.queue {
		metrics.FanoutQueueDepth.Set(float64(len(f.queue)))
		f.handleLogged(evt)
	}
}

func (f *NotificationFanout) handleLogged(evt *models.DomainEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := f.Handle(ctx, evt); err != nil {
		f.log.WithFields(logrus.Fields{
			"event_id":   evt.ID,
			"event_type": evt.Type,
		}).WithError(err).Error("notification fan-out failed")
	}
}

// Handle 处理一个事件。事件已分发过则直接返回
func (f *NotificationFanout) Handle(ctx context.Context, evt *models.DomainEvent) error {
	db := f.db.WithContext(ctx)

	var org models.Organization
	if err := db.First(&org, evt.OrganizationID).Error; err != nil {
		return fmt.Errorf("加载组织失败: %v", err)
	}

	var req *models.MaintenanceRequest
	if evt.RequestID != nil {
		var r models.MaintenanceRequest
		err := db.Where("id = ? AND organization_id = ?", *evt.RequestID, evt.OrganizationID).First(&r).Error
		if err == nil {
			req = &r
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("加载报修单失败: %v", err)
		}
	}

	recipients, err := f.resolveRecipients(ctx, evt, req)
	if err != nil {
		return err
	}

	title, body := renderMessage(evt, req)
	now := f.now()
	var written []models.Notification
	err = db.Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&models.DomainEvent{}).
			Where("id = ? AND dispatched_at IS NULL", evt.ID).
			Updates(map[string]interface{}{
				"dispatched_at": now,
				"attempts":      gorm.Expr("attempts + 1"),
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return errAlreadyDispatched
		}

		for _, r := range recipients {
			if !r.override && !r.actor.Prefs().For(r.group).Enabled {
				continue
			}
			written = append(written, models.Notification{
				OrganizationID:   evt.OrganizationID,
				RecipientID:      r.actor.ID,
				Type:             evt.Type,
				Title:            title,
				Body:             body,
				RelatedRequestID: evt.RequestID,
				EventID:          uintPtr(evt.ID),
				CreatedAt:        now,
			})
		}
		if len(written) == 0 {
			return nil
		}
		return tx.Create(&written).Error
	})
	if errors.Is(err, errAlreadyDispatched) {
		return nil
	}
	if err != nil {
		metrics.NotificationDeliveries.WithLabelValues("in_app", "error").Inc()
		return fmt.Errorf("写入站内通知失败: %v", err)
	}
	metrics.NotificationDeliveries.WithLabelValues("in_app", "ok").Add(float64(len(written)))

	for _, r := range recipients {
		f.dispatchExternal(ctx, &org, r, title, body)
	}
	for _, n := range written {
		f.publishUnread(ctx, n)
	}

	f.log.WithFields(logrus.Fields{
		"event_id":   evt.ID,
		"event_type": evt.Type,
		"recipients": len(written),
	}).Debug("notification fan-out done")
	return nil
}

// Redeliver 重新分发超过 after 仍未分发的事件
func (f *NotificationFanout) Redeliver(ctx context.Context, after time.Duration) (int, error) {
	cutoff := f.now().Add(-after)
	var pending []models.DomainEvent
	err := f.db.WithContext(ctx).
		Where("dispatched_at IS NULL").
		Order("id ASC").
		Limit(500).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("查询待分发事件失败: %v", err)
	}

	count := 0
	for i := range pending {
		evt := &pending[i]
		if evt.CreatedAt.After(cutoff) {
			continue
		}
		if err := f.Handle(ctx, evt); err != nil {
			f.log.WithField("event_id", evt.ID).WithError(err).Warn("redelivery failed")
			continue
		}
		count++
	}
	return count, nil
}

var errAlreadyDispatched = errors.New("event already dispatched")

// resolveRecipients 按事件类型确定接收人，排除操作者本人和已移除账号
func (f *NotificationFanout) resolveRecipients(ctx context.Context, evt *models.DomainEvent, req *models.MaintenanceRequest) ([]recipient, error) {
	var ids []uint
	group := models.PrefGroup("")
	staffOnly := false

	switch evt.Type {
	case models.EventRequestCreated:
		return f.admins(ctx, evt, models.PrefNewRequest, false)
	case models.EventRequestPriorityEmergency:
		if req != nil && req.Status.IsTerminal() {
			return nil, nil
		}
		return f.admins(ctx, evt, models.PrefEmergency, true)
	case models.EventRequestAssigned:
		group = models.PrefAssignment
		if evt.AssigneeID != nil {
			ids = append(ids, *evt.AssigneeID)
		}
	case models.EventRequestUnassigned:
		group = models.PrefAssignment
		if evt.PreviousAssigneeID != nil {
			ids = append(ids, *evt.PreviousAssigneeID)
		}
	case models.EventRequestStatusChanged:
		group = models.PrefStatusUpdate
		if req != nil {
			ids = append(ids, req.TenantID)
		}
		if evt.NewStatus == models.StatusCompleted && evt.AssigneeID != nil {
			ids = append(ids, *evt.AssigneeID)
		}
	case models.EventRequestCommentAdded:
		group = models.PrefComment
		staffOnly = evt.CommentInternal
		if req == nil {
			return nil, nil
		}
		ids = append(ids, req.TenantID)
		if req.AssignedTo != nil {
			ids = append(ids, *req.AssignedTo)
		}
		var authors []uint
		if err := f.db.WithContext(ctx).Model(&models.Comment{}).
			Where("request_id = ?", req.ID).
			Distinct().Pluck("author_id", &authors).Error; err != nil {
			return nil, fmt.Errorf("查询评论参与人失败: %v", err)
		}
		ids = append(ids, authors...)
	case models.EventInvitationAccepted:
		group = models.PrefInvitation
		if evt.InvitationID != nil {
			var inv models.Invitation
			if err := f.db.WithContext(ctx).First(&inv, *evt.InvitationID).Error; err == nil {
				ids = append(ids, inv.InvitedBy)
			}
		}
	default:
		return nil, nil
	}

	actors, err := f.loadActors(ctx, evt.OrganizationID, dedupe(ids, evt.ActorID))
	if err != nil {
		return nil, err
	}
	result := make([]recipient, 0, len(actors))
	for i := range actors {
		if staffOnly && !actors[i].Role.IsStaff() {
			continue
		}
		result = append(result, recipient{actor: &actors[i], group: group})
	}
	return result, nil
}

func (f *NotificationFanout) admins(ctx context.Context, evt *models.DomainEvent, group models.PrefGroup, override bool) ([]recipient, error) {
	var actors []models.Actor
	err := f.db.WithContext(ctx).
		Where("organization_id = ? AND role IN ? AND removed_at IS NULL AND id <> ?",
			evt.OrganizationID, []models.Role{models.RoleOwner, models.RoleManager}, evt.ActorID).
		Order("id ASC").
		Find(&actors).Error
	if err != nil {
		return nil, fmt.Errorf("查询管理人员失败: %v", err)
	}
	result := make([]recipient, 0, len(actors))
	for i := range actors {
		result = append(result, recipient{actor: &actors[i], group: group, override: override})
	}
	return result, nil
}

func (f *NotificationFanout) loadActors(ctx context.Context, orgID uint, ids []uint) ([]models.Actor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var actors []models.Actor
	err := f.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ? AND removed_at IS NULL", orgID, ids).
		Order("id ASC").
		Find(&actors).Error
	if err != nil {
		return nil, fmt.Errorf("查询接收人失败: %v", err)
	}
	return actors, nil
}

// dispatchExternal 邮件和短信，失败只记录
func (f *NotificationFanout) dispatchExternal(ctx context.Context, org *models.Organization, r recipient, title, body string) {
	pref := r.actor.Prefs().For(r.group)
	if !pref.Enabled && !r.override {
		return
	}
	entry := f.log.WithFields(logrus.Fields{"recipient_id": r.actor.ID, "group": r.group})

	if pref.Email && f.email != nil && r.actor.Email != "" {
		err := f.email.SendEmail(ctx, notify.Email{
			ToName:    r.actor.Name,
			ToAddress: r.actor.Email,
			Subject:   title,
			PlainText: body,
			HTML:      fmt.Sprintf("<p>%s</p>", body),
		})
		recordDelivery("email", err)
		if err != nil {
			entry.WithError(err).Warn("email delivery failed")
		}
	}

	if pref.SMS && f.sms != nil && org.SMSEnabled && r.actor.PhoneNumber() != "" {
		err := f.sms.SendSMS(ctx, r.actor.PhoneNumber(), fmt.Sprintf("%s: %s", title, body))
		recordDelivery("sms", err)
		if err != nil {
			entry.WithError(err).Warn("sms delivery failed")
		}
	}
}

func (f *NotificationFanout) publishUnread(ctx context.Context, n models.Notification) {
	if f.unread == nil {
		return
	}
	var count int64
	if err := f.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", n.RecipientID, false).
		Count(&count).Error; err != nil {
		f.log.WithError(err).Warn("count unread notifications failed")
		return
	}
	err := f.unread.PublishUnread(ctx, queue.UnreadMessage{
		ActorID:        n.RecipientID,
		Unread:         count,
		NotificationID: n.ID,
		Type:           string(n.Type),
	})
	recordDelivery("unread", err)
	if err != nil {
		f.log.WithField("recipient_id", n.RecipientID).WithError(err).Warn("publish unread count failed")
	}
}

func recordDelivery(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.NotificationDeliveries.WithLabelValues(channel, result).Inc()
}

// dedupe 去重并去掉 exclude
func dedupe(ids []uint, exclude uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func renderMessage(evt *models.DomainEvent, req *models.MaintenanceRequest) (string, string) {
	subject := "报修单"
	if req != nil {
		subject = fmt.Sprintf("报修单「%s」", req.Title)
	}
	switch evt.Type {
	case models.EventRequestCreated:
		return "新的报修单", subject + "已提交"
	case models.EventRequestAssigned:
		return "报修单已分配给你", subject + "已分配给你处理"
	case models.EventRequestUnassigned:
		return "报修单已取消分配", subject + "已不再由你处理"
	case models.EventRequestStatusChanged:
		return "报修单状态更新", fmt.Sprintf("%s状态变更为%s", subject, statusLabel(evt.NewStatus))
	case models.EventRequestCommentAdded:
		return "报修单有新评论", subject + "有新的评论"
	case models.EventRequestPriorityEmergency:
		return "紧急报修", subject + "被标记为紧急"
	case models.EventInvitationAccepted:
		return "邀请已接受", "你发出的邀请已被接受"
	}
	return "通知", subject
}
