package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dungyy/Gerz-platform-sub000/internal/authz"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/metrics"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RequestService 报修单生命周期。
// 每次变更都是对 row_version 的比较并交换，事件和状态写在同一事务里
type RequestService struct {
	db     *gorm.DB
	log    *logrus.Logger
	events EventPublisher
	now    Clock
}

// NewRequestService 创建报修单服务
func NewRequestService(db *gorm.DB, events EventPublisher) *RequestService {
	return &RequestService{
		db:     db,
		log:    logger.GetLogger(),
		events: publisherOrNoop(events),
		now:    systemClock,
	}
}

// CreateRequestInput 创建报修单
type CreateRequestInput struct {
	UnitID      uint                   `json:"unit_id" binding:"required"`
	Title       string                 `json:"title" binding:"required,max=200"`
	Description string                 `json:"description" binding:"max=5000"`
	Category    string                 `json:"category" binding:"omitempty,oneof=plumbing electrical hvac appliance pest structural other"`
	Priority    models.RequestPriority `json:"priority" binding:"omitempty,oneof=low normal high emergency"`
}

// RequestFilter 列表过滤
type RequestFilter struct {
	Status     models.RequestStatus
	PropertyID uint
	Page       *pagination.PageParams
}

// 状态在链上的位置，只能往后走
var statusRank = map[models.RequestStatus]int{
	models.StatusSubmitted:  0,
	models.StatusAssigned:   1,
	models.StatusInProgress: 2,
	models.StatusCompleted:  3,
}

// Create 创建报修单。租客只能给自己住的单元报修，经理和业主可以代租客创建
func (s *RequestService) Create(ctx context.Context, actor *models.Actor, in *CreateRequestInput) (*models.MaintenanceRequest, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.ErrInvalidInput.WithMessage("标题不能为空")
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		return nil, apperrors.ErrInvalidInput.WithMessage("无效的优先级")
	}

	var unit models.Unit
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", in.UnitID, actor.OrganizationID).
		First(&unit).Error; err != nil {
		return nil, notFoundOr(err, "单元不存在")
	}

	resource := authz.Resource{OrganizationID: unit.OrganizationID, OccupantID: unit.TenantID}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionRequestCreate, resource); err != nil {
		return nil, err
	}
	if unit.TenantID == nil {
		return nil, apperrors.ErrInvalidInput.WithMessage("该单元当前没有住户")
	}

	req := &models.MaintenanceRequest{
		OrganizationID: unit.OrganizationID,
		PropertyID:     unit.PropertyID,
		UnitID:         unit.ID,
		TenantID:       *unit.TenantID,
		Status:         models.StatusSubmitted,
		Priority:       priority,
		Category:       in.Category,
		Title:          title,
		Description:    in.Description,
		RowVersion:     1,
	}

	var events []*models.DomainEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		events = append(events, s.newEvent(req, actor, models.EventRequestCreated, "", models.StatusSubmitted))
		if req.Priority == models.PriorityEmergency {
			events = append(events, s.newEvent(req, actor, models.EventRequestPriorityEmergency, "", models.StatusSubmitted))
		}
		return tx.Create(&events).Error
	})
	if err != nil {
		return nil, wrapTxError(err, "创建报修单失败")
	}

	s.log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"org_id":     req.OrganizationID,
		"actor_id":   actor.ID,
	}).Info("maintenance request created")
	s.publish(events)
	return req, nil
}

// Get 获取报修单，其他组织的报修单一律视为不存在
func (s *RequestService) Get(ctx context.Context, actor *models.Actor, id uint) (*models.MaintenanceRequest, error) {
	req, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionRequestRead, authz.RequestResource(req)); err != nil {
		return nil, err
	}
	return req, nil
}

// List 按角色限定范围：租客看自己的，维修人员看分配给自己的，经理和业主看全部
func (s *RequestService) List(ctx context.Context, actor *models.Actor, filter RequestFilter) ([]models.MaintenanceRequest, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.MaintenanceRequest{}).
		Where("organization_id = ?", actor.OrganizationID)

	switch actor.Role {
	case models.RoleTenant:
		query = query.Where("tenant_id = ?", actor.ID)
	case models.RoleWorker:
		query = query.Where("assigned_to = ?", actor.ID)
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, 0, apperrors.ErrInvalidInput.WithMessage("无效的状态")
		}
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PropertyID != 0 {
		query = query.Where("property_id = ?", filter.PropertyID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询报修单失败", err)
	}

	page := filter.Page.Normalize()
	var list []models.MaintenanceRequest
	if err := query.Order("created_at DESC, id DESC").Scopes(page.Scope()).Find(&list).Error; err != nil {
		return nil, 0, apperrors.Internal("查询报修单失败", err)
	}
	return list, total, nil
}

// Assign 分配处理人。经理和业主可以分配给本组织任意维修人员或自己，也可以改派；
// 维修人员只能领取无人处理的报修单
func (s *RequestService) Assign(ctx context.Context, actor *models.Actor, id, assigneeID uint) (*models.MaintenanceRequest, error) {
	req, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	action := authz.ActionRequestAssign
	if actor.Role == models.RoleWorker && assigneeID == actor.ID {
		action = authz.ActionRequestSelfAssign
	}
	if err := authz.Require(authz.ActorFrom(actor), action, authz.RequestResource(req)); err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, apperrors.ErrInvalidTransition.WithMessage("报修单已结束，不能再分配")
	}

	assignee, err := findActiveActor(ctx, s.db, req.OrganizationID, assigneeID)
	if err != nil {
		return nil, apperrors.ErrInvalidInput.WithMessage("处理人不存在")
	}
	if assignee.Role != models.RoleWorker && assignee.ID != actor.ID {
		return nil, apperrors.ErrInvalidInput.WithMessage("只能分配给维修人员或自己")
	}
	if req.IsAssignedTo(assigneeID) {
		return req, nil
	}

	// 改派时进行中的单子退回到已分配
	previousStatus := req.Status
	previousAssignee := req.AssignedTo
	updates := map[string]interface{}{
		"assigned_to": assigneeID,
		"status":      models.StatusAssigned,
	}

	evt := s.newEvent(req, actor, models.EventRequestAssigned, previousStatus, models.StatusAssigned)
	evt.AssigneeID = uintPtr(assigneeID)
	evt.PreviousAssigneeID = previousAssignee
	events := []*models.DomainEvent{evt}
	if previousStatus != models.StatusAssigned {
		changed := s.newEvent(req, actor, models.EventRequestStatusChanged, previousStatus, models.StatusAssigned)
		changed.AssigneeID = uintPtr(assigneeID)
		events = append(events, changed)
	}
	if previousAssignee != nil {
		unassigned := s.newEvent(req, actor, models.EventRequestUnassigned, previousStatus, models.StatusAssigned)
		unassigned.PreviousAssigneeID = previousAssignee
		events = append(events, unassigned)
	}

	return s.apply(ctx, req, updates, events)
}

// Unassign 取消分配，状态退回 submitted
func (s *RequestService) Unassign(ctx context.Context, actor *models.Actor, id uint) (*models.MaintenanceRequest, error) {
	req, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionRequestUnassign, authz.RequestResource(req)); err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, apperrors.ErrInvalidTransition.WithMessage("报修单已结束，不能取消分配")
	}
	if req.AssignedTo == nil {
		return nil, apperrors.ErrInvalidTransition.WithMessage("报修单尚未分配")
	}

	updates := map[string]interface{}{
		"assigned_to": nil,
		"status":      models.StatusSubmitted,
	}
	evt := s.newEvent(req, actor, models.EventRequestUnassigned, req.Status, models.StatusSubmitted)
	evt.PreviousAssigneeID = req.AssignedTo
	return s.apply(ctx, req, updates, []*models.DomainEvent{evt})
}

// SetStatus 推进状态。只能沿 assigned→in_progress→completed 逐步向前，
// 任何未结束的状态都可以取消，取消会清空处理人
func (s *RequestService) SetStatus(ctx context.Context, actor *models.Actor, id uint, status models.RequestStatus) (*models.MaintenanceRequest, error) {
	if !status.Valid() {
		return nil, apperrors.ErrInvalidInput.WithMessage("无效的状态")
	}
	req, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleWorker && !req.IsAssignedTo(actor.ID) {
		metrics.AuthorizationDenials.WithLabelValues(string(authz.ReasonNotOwner)).Inc()
		return nil, apperrors.ErrNotAssignee
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionRequestUpdateStatus, authz.RequestResource(req)); err != nil {
		return nil, err
	}

	if req.Status == status {
		return req, nil
	}
	if req.Status.IsTerminal() {
		return nil, apperrors.ErrInvalidTransition.WithMessage(fmt.Sprintf("报修单已%s，不能再修改状态", statusLabel(req.Status)))
	}

	now := s.now()
	updates := map[string]interface{}{"status": status}
	switch {
	case status == models.StatusCancelled:
		updates["assigned_to"] = nil
		updates["cancelled_at"] = now
	case req.AssignedTo == nil || statusRank[status] != statusRank[req.Status]+1:
		// submitted 只能通过分配离开，其余每次只能前进一步
		return nil, apperrors.ErrInvalidTransition.WithMessage(
			fmt.Sprintf("不能从%s变更为%s", statusLabel(req.Status), statusLabel(status)))
	case status == models.StatusCompleted:
		updates["completed_at"] = now
	}

	evt := s.newEvent(req, actor, models.EventRequestStatusChanged, req.Status, status)
	evt.AssigneeID = req.AssignedTo
	return s.apply(ctx, req, updates, []*models.DomainEvent{evt})
}

// UpdatePriority 修改优先级，改为紧急时通知所有经理和业主
func (s *RequestService) UpdatePriority(ctx context.Context, actor *models.Actor, id uint, priority models.RequestPriority) (*models.MaintenanceRequest, error) {
	if !priority.Valid() {
		return nil, apperrors.ErrInvalidInput.WithMessage("无效的优先级")
	}
	req, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionRequestUpdatePriority, authz.RequestResource(req)); err != nil {
		return nil, err
	}
	if req.Priority == priority {
		return req, nil
	}
	if req.Status.IsTerminal() {
		return nil, apperrors.ErrInvalidTransition.WithMessage("报修单已结束，不能修改优先级")
	}

	var events []*models.DomainEvent
	if priority == models.PriorityEmergency {
		events = append(events, s.newEvent(req, actor, models.EventRequestPriorityEmergency, req.Status, req.Status))
	}
	return s.apply(ctx, req, map[string]interface{}{"priority": priority}, events)
}

// Delete 删除报修单及其评论
func (s *RequestService) Delete(ctx context.Context, actor *models.Actor, id uint) error {
	req, err := s.load(ctx, actor.OrganizationID, id)
	if err != nil {
		return err
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionRequestDelete, authz.RequestResource(req)); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("request_id = ?", req.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.MaintenanceRequest{}, req.ID).Error
	})
	if err != nil {
		return apperrors.Internal("删除报修单失败", err)
	}

	s.log.WithFields(logrus.Fields{"request_id": req.ID, "actor_id": actor.ID}).Info("maintenance request deleted")
	return nil
}

// apply 以 row_version 为条件更新，并在同一事务里写入事件
func (s *RequestService) apply(ctx context.Context, req *models.MaintenanceRequest, updates map[string]interface{}, events []*models.DomainEvent) (*models.MaintenanceRequest, error) {
	updates["row_version"] = gorm.Expr("row_version + 1")
	updates["updated_at"] = s.now()

	var updated models.MaintenanceRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.MaintenanceRequest{}).
			Where("id = ? AND organization_id = ? AND row_version = ?", req.ID, req.OrganizationID, req.RowVersion).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrConcurrentModification
		}
		if len(events) > 0 {
			if err := tx.Create(&events).Error; err != nil {
				return err
			}
		}
		return tx.First(&updated, req.ID).Error
	})
	if err != nil {
		return nil, wrapTxError(err, "更新报修单失败")
	}

	s.publish(events)
	return &updated, nil
}

func (s *RequestService) load(ctx context.Context, orgID, id uint) (*models.MaintenanceRequest, error) {
	var req models.MaintenanceRequest
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&req).Error
	if err != nil {
		return nil, notFoundOr(err, "报修单不存在")
	}
	return &req, nil
}

func (s *RequestService) newEvent(req *models.MaintenanceRequest, actor *models.Actor, eventType models.EventType, from, to models.RequestStatus) *models.DomainEvent {
	return &models.DomainEvent{
		OrganizationID: req.OrganizationID,
		Type:           eventType,
		ActorID:        actor.ID,
		RequestID:      uintPtr(req.ID),
		PreviousStatus: from,
		NewStatus:      to,
		CreatedAt:      s.now(),
	}
}

func (s *RequestService) publish(events []*models.DomainEvent) {
	for _, evt := range events {
		metrics.RequestTransitions.WithLabelValues(string(evt.Type)).Inc()
		s.events.Publish(evt)
	}
}

func statusLabel(status models.RequestStatus) string {
	switch status {
	case models.StatusSubmitted:
		return "待处理"
	case models.StatusAssigned:
		return "已分配"
	case models.StatusInProgress:
		return "处理中"
	case models.StatusCompleted:
		return "完成"
	case models.StatusCancelled:
		return "取消"
	}
	return string(status)
}
