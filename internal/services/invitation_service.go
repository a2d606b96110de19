package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/authz"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/metrics"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/notify"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InvitationOptions 邀请配置
type InvitationOptions struct {
	TTL           time.Duration
	ShareLinkBase string
}

// InvitationService 邀请服务。令牌只保存 SHA-256，明文只在签发时返回一次
type InvitationService struct {
	db       *gorm.DB
	log      *logrus.Logger
	limiter  *UsageLimiter
	email    notify.EmailSender
	events   EventPublisher
	validate *validator.Validate
	opts     InvitationOptions
	now      Clock
}

// NewInvitationService 创建邀请服务
func NewInvitationService(db *gorm.DB, limiter *UsageLimiter, email notify.EmailSender, events EventPublisher, opts InvitationOptions) *InvitationService {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	return &InvitationService{
		db:       db,
		log:      logger.GetLogger(),
		limiter:  limiter,
		email:    email,
		events:   publisherOrNoop(events),
		validate: validator.New(),
		opts:     opts,
		now:      systemClock,
	}
}

// CreateInvitationRequest 签发邀请
type CreateInvitationRequest struct {
	Email      string      `json:"email" binding:"required,email"`
	Role       models.Role `json:"role" binding:"required,oneof=manager worker tenant"`
	PropertyID *uint       `json:"property_id"`
	UnitID     *uint       `json:"unit_id"`
	Message    string      `json:"message" binding:"max=500"`
}

// IssuedInvitation 签发结果，Token 只在这里出现一次
type IssuedInvitation struct {
	Invitation *models.Invitation `json:"invitation"`
	Token      string             `json:"token"`
	ShareLink  string             `json:"share_link"`
}

// RedeemInvitationRequest 兑换邀请并注册
type RedeemInvitationRequest struct {
	Token    string `json:"token" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,max=100"`
	Phone    string `json:"phone" binding:"max=32"`
}

// InvitationPreview 注册页展示的邀请信息
type InvitationPreview struct {
	OrganizationName string      `json:"organization_name"`
	Email            string      `json:"email"`
	Role             models.Role `json:"role"`
	ExpiresAt        time.Time   `json:"expires_at"`
	Status           string      `json:"status"`
}

// InvitationView 列表项
type InvitationView struct {
	models.Invitation
	Status string `json:"status"`
}

// CreateInvitation 签发邀请
func (s *InvitationService) CreateInvitation(ctx context.Context, inviter *models.Actor, req *CreateInvitationRequest) (*IssuedInvitation, error) {
	action, ok := inviteAction(req.Role)
	if !ok {
		return nil, apperrors.ErrInvalidInput.WithMessage("无效的邀请角色")
	}
	if err := authz.Require(authz.ActorFrom(inviter), action, authz.OrgResource(inviter.OrganizationID)); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperrors.ErrInvalidInput.WithMessage("邮箱格式不正确")
	}

	propertyID, unitID, err := s.resolveScope(ctx, inviter.OrganizationID, req)
	if err != nil {
		return nil, err
	}

	// 检查是否已有待处理的邀请
	var pending []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("organization_id = ? AND email = ? AND accepted_at IS NULL AND revoked_at IS NULL", inviter.OrganizationID, email).
		Find(&pending).Error; err != nil {
		return nil, apperrors.Internal("查询邀请失败", err)
	}
	now := s.now()
	for i := range pending {
		if pending[i].IsPendingAt(now) {
			return nil, apperrors.ErrDuplicatePending
		}
	}

	// 检查是否已是组织成员
	var members int64
	if err := s.db.WithContext(ctx).Model(&models.Actor{}).
		Where("organization_id = ? AND email = ? AND removed_at IS NULL", inviter.OrganizationID, email).
		Count(&members).Error; err != nil {
		return nil, apperrors.Internal("查询成员失败", err)
	}
	if members > 0 {
		return nil, apperrors.ErrAlreadyMember
	}

	if resource, ok := models.ResourceForRole(req.Role); ok {
		if err := s.limiter.Ensure(ctx, inviter.OrganizationID, resource); err != nil {
			return nil, err
		}
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, apperrors.Internal("生成邀请令牌失败", err)
	}

	invitation := &models.Invitation{
		OrganizationID: inviter.OrganizationID,
		Email:          email,
		Role:           req.Role,
		TokenHash:      hashToken(token),
		PropertyID:     propertyID,
		UnitID:         unitID,
		InvitedBy:      inviter.ID,
		Message:        strings.TrimSpace(req.Message),
		ExpiresAt:      now.Add(s.opts.TTL),
	}
	if err := s.db.WithContext(ctx).Create(invitation).Error; err != nil {
		s.log.Errorf("创建邀请失败: %v", err)
		return nil, apperrors.Internal("创建邀请失败", err)
	}

	link := s.opts.ShareLinkBase + token
	s.log.WithFields(logrus.Fields{
		"invitation_id": invitation.ID,
		"org_id":        invitation.OrganizationID,
		"role":          invitation.Role,
		"inviter_id":    inviter.ID,
	}).Info("invitation issued")

	if s.email != nil {
		go s.sendInvitationEmail(invitation, inviter, link)
	}

	return &IssuedInvitation{Invitation: invitation, Token: token, ShareLink: link}, nil
}

// Redeem 兑换邀请。accepted_at 的条件更新保证同一令牌只能成功一次
func (s *InvitationService) Redeem(ctx context.Context, req *RedeemInvitationRequest) (*models.Actor, error) {
	actor, err := s.redeem(ctx, req)
	result := "ok"
	if err != nil {
		result = "error"
		if appErr, ok := apperrors.As(err); ok {
			result = appErr.Reason
		}
	}
	metrics.InvitationRedemptions.WithLabelValues(result).Inc()
	return actor, err
}

func (s *InvitationService) redeem(ctx context.Context, req *RedeemInvitationRequest) (*models.Actor, error) {
	invitation, err := s.findByToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if invitation.AcceptedAt != nil {
		return nil, apperrors.ErrAlreadyRedeemed
	}
	if !now.Before(invitation.ExpiresAt) {
		return nil, apperrors.ErrTokenExpired
	}
	email := normalizeEmail(req.Email)
	if email != invitation.Email {
		return nil, apperrors.ErrEmailMismatch
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.ErrInvalidInput.WithMessage("姓名不能为空")
	}

	if resource, ok := models.ResourceForRole(invitation.Role); ok {
		if err := s.limiter.Ensure(ctx, invitation.OrganizationID, resource); err != nil {
			return nil, err
		}
	}

	actor := &models.Actor{}
	var evt *models.DomainEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimInvitation(tx, invitation.ID, now); err != nil {
			return err
		}

		if err := s.upsertActor(tx, invitation, req, email, actor); err != nil {
			return err
		}

		if invitation.Role == models.RoleTenant && invitation.UnitID != nil {
			if err := moveTenantIntoUnit(tx, invitation.OrganizationID, actor.ID, *invitation.UnitID); err != nil {
				return err
			}
			actor.UnitID = invitation.UnitID
		}

		if err := tx.Model(&models.Invitation{}).Where("id = ?", invitation.ID).
			Update("accepted_actor_id", actor.ID).Error; err != nil {
			return err
		}

		evt = &models.DomainEvent{
			OrganizationID: invitation.OrganizationID,
			Type:           models.EventInvitationAccepted,
			ActorID:        actor.ID,
			InvitationID:   uintPtr(invitation.ID),
			CreatedAt:      now,
		}
		return tx.Create(evt).Error
	})
	if err != nil {
		return nil, wrapTxError(err, "兑换邀请失败")
	}

	s.log.WithFields(logrus.Fields{
		"invitation_id": invitation.ID,
		"actor_id":      actor.ID,
		"org_id":        actor.OrganizationID,
	}).Info("invitation redeemed")
	s.events.Publish(evt)
	return actor, nil
}

// upsertActor 新建账号；该邮箱曾被移出组织时恢复原账号
func (s *InvitationService) upsertActor(tx *gorm.DB, invitation *models.Invitation, req *RedeemInvitationRequest, email string, actor *models.Actor) error {
	var existing models.Actor
	err := tx.Where("organization_id = ? AND email = ?", invitation.OrganizationID, email).First(&existing).Error
	switch {
	case err == nil && existing.RemovedAt == nil:
		return apperrors.ErrAlreadyMember
	case err == nil:
		*actor = existing
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	default:
		*actor = models.Actor{
			OrganizationID: invitation.OrganizationID,
			Email:          email,
			Preferences:    datatypes.NewJSONType(models.DefaultNotificationPrefs()),
		}
	}

	actor.Role = invitation.Role
	actor.Name = strings.TrimSpace(req.Name)
	actor.InvitedBy = uintPtr(invitation.InvitedBy)
	actor.RemovedAt = nil
	actor.UnitID = nil
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		actor.Phone = &phone
	}
	if err := actor.SetPassword(req.Password); err != nil {
		return err
	}
	if actor.ID == 0 {
		return tx.Create(actor).Error
	}
	return tx.Save(actor).Error
}

// Preview 注册前查看邀请
func (s *InvitationService) Preview(ctx context.Context, token string) (*InvitationPreview, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, invitation.OrganizationID).Error; err != nil {
		return nil, notFoundOr(err, "组织不存在")
	}
	return &InvitationPreview{
		OrganizationName: org.Name,
		Email:            invitation.Email,
		Role:             invitation.Role,
		ExpiresAt:        invitation.ExpiresAt,
		Status:           invitation.StatusAt(s.now()),
	}, nil
}

// ListInvitations 邀请列表，status 为空时返回全部
func (s *InvitationService) ListInvitations(ctx context.Context, actor *models.Actor, status string, page *pagination.PageParams) ([]InvitationView, int64, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionInviteList, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, 0, err
	}

	now := s.now()
	query := s.db.WithContext(ctx).Model(&models.Invitation{}).Where("organization_id = ?", actor.OrganizationID)
	switch status {
	case "":
	case models.InvitationStatusPending:
		query = query.Where("accepted_at IS NULL AND revoked_at IS NULL AND expires_at > ?", now)
	case models.InvitationStatusAccepted:
		query = query.Where("accepted_at IS NOT NULL")
	case models.InvitationStatusRevoked:
		query = query.Where("accepted_at IS NULL AND revoked_at IS NOT NULL")
	case models.InvitationStatusExpired:
		query = query.Where("accepted_at IS NULL AND revoked_at IS NULL AND expires_at <= ?", now)
	default:
		return nil, 0, apperrors.ErrInvalidInput.WithMessage("无效的邀请状态")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询邀请失败", err)
	}

	page = page.Normalize()
	var invitations []models.Invitation
	if err := query.Order("created_at DESC, id DESC").Scopes(page.Scope()).Find(&invitations).Error; err != nil {
		return nil, 0, apperrors.Internal("查询邀请失败", err)
	}

	views := make([]InvitationView, len(invitations))
	for i := range invitations {
		views[i] = InvitationView{Invitation: invitations[i], Status: invitations[i].StatusAt(now)}
	}
	return views, total, nil
}

// RevokeInvitation 撤销未使用的邀请
func (s *InvitationService) RevokeInvitation(ctx context.Context, actor *models.Actor, id uint) error {
	var invitation models.Invitation
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, actor.OrganizationID).
		First(&invitation).Error; err != nil {
		return notFoundOr(err, "邀请不存在")
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionInviteRevoke, authz.OrgResource(invitation.OrganizationID)); err != nil {
		return err
	}
	// 经理不能撤销经理邀请
	if action, ok := inviteAction(invitation.Role); ok {
		if err := authz.Require(authz.ActorFrom(actor), action, authz.OrgResource(invitation.OrganizationID)); err != nil {
			return err
		}
	}

	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND accepted_at IS NULL AND revoked_at IS NULL", invitation.ID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return apperrors.Internal("撤销邀请失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrAlreadyRedeemed.WithMessage("邀请已被使用或已撤销")
	}
	return nil
}

// CleanupExpired 删除过期超过 retain 的未使用邀请
func (s *InvitationService) CleanupExpired(ctx context.Context, retain time.Duration) (int64, error) {
	cutoff := s.now().Add(-retain)
	result := s.db.WithContext(ctx).
		Where("accepted_at IS NULL AND expires_at < ?", cutoff).
		Delete(&models.Invitation{})
	if result.Error != nil {
		return 0, fmt.Errorf("清理过期邀请失败: %v", result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Infof("清理过期邀请 %d 条", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// claimInvitation 条件更新 accepted_at，只有待兑换且未过期的邀请能被领取
func claimInvitation(tx *gorm.DB, id uint, now time.Time) error {
	claim := tx.Model(&models.Invitation{}).
		Where("id = ? AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > ?", id, now).
		Update("accepted_at", now)
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 1 {
		return nil
	}

	var current models.Invitation
	if err := tx.Select("id", "accepted_at", "revoked_at").First(&current, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrTokenNotFound
		}
		return err
	}
	switch {
	case current.AcceptedAt != nil:
		return apperrors.ErrAlreadyRedeemed
	case current.RevokedAt != nil:
		return apperrors.ErrTokenNotFound
	}
	return apperrors.ErrTokenExpired
}

func (s *InvitationService) findByToken(ctx context.Context, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.ErrTokenNotFound
	}
	var invitation models.Invitation
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrTokenNotFound
	}
	if err != nil {
		return nil, apperrors.Internal("查询邀请失败", err)
	}
	if invitation.RevokedAt != nil {
		return nil, apperrors.ErrTokenNotFound
	}
	return &invitation, nil
}

// resolveScope 校验邀请范围。单元范围只用于租客，物业取自单元
func (s *InvitationService) resolveScope(ctx context.Context, orgID uint, req *CreateInvitationRequest) (*uint, *uint, error) {
	if req.UnitID != nil {
		if req.Role != models.RoleTenant {
			return nil, nil, apperrors.ErrInvalidInput.WithMessage("只有租客邀请可以指定单元")
		}
		var unit models.Unit
		if err := s.db.WithContext(ctx).
			Where("id = ? AND organization_id = ?", *req.UnitID, orgID).
			First(&unit).Error; err != nil {
			return nil, nil, notFoundOr(err, "单元不存在")
		}
		return uintPtr(unit.PropertyID), uintPtr(unit.ID), nil
	}
	if req.PropertyID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Property{}).
			Where("id = ? AND organization_id = ?", *req.PropertyID, orgID).
			Count(&count).Error; err != nil {
			return nil, nil, apperrors.Internal("查询物业失败", err)
		}
		if count == 0 {
			return nil, nil, apperrors.ErrNotFound.WithMessage("物业不存在")
		}
		return req.PropertyID, nil, nil
	}
	return nil, nil, nil
}

func (s *InvitationService) sendInvitationEmail(invitation *models.Invitation, inviter *models.Actor, link string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body := fmt.Sprintf("%s 邀请你加入，链接 %s 有效期至 %s。", inviter.Name, link, invitation.ExpiresAt.Format("2006-01-02 15:04"))
	if invitation.Message != "" {
		body += "\n\n" + invitation.Message
	}
	err := s.email.SendEmail(ctx, notify.Email{
		ToAddress: invitation.Email,
		Subject:   "你收到一份入驻邀请",
		PlainText: body,
		HTML:      fmt.Sprintf(`<p>%s</p><p><a href="%s">接受邀请</a></p>`, body, link),
	})
	recordDelivery("email", err)
	if err != nil {
		s.log.WithField("invitation_id", invitation.ID).WithError(err).Warn("send invitation email failed")
	}
}

func inviteAction(role models.Role) (authz.Action, bool) {
	switch role {
	case models.RoleTenant:
		return authz.ActionInviteTenant, true
	case models.RoleWorker:
		return authz.ActionInviteWorker, true
	case models.RoleManager:
		return authz.ActionInviteManager, true
	}
	return "", false
}

// generateInvitationToken 32字节随机数，十六进制
func generateInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
