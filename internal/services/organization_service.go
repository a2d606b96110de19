package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/authz"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	orgCodeLength   = 8
	orgCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	orgCodeAttempts = 5
)

// OrganizationService 组织服务
type OrganizationService struct {
	db      *gorm.DB
	log     *logrus.Logger
	limiter *UsageLimiter
	trial   time.Duration
	now     Clock
}

// NewOrganizationService 创建组织服务
func NewOrganizationService(db *gorm.DB, limiter *UsageLimiter, trial time.Duration) *OrganizationService {
	if trial <= 0 {
		trial = 14 * 24 * time.Hour
	}
	return &OrganizationService{
		db:      db,
		log:     logger.GetLogger(),
		limiter: limiter,
		trial:   trial,
		now:     systemClock,
	}
}

// SignupRequest 注册组织
type SignupRequest struct {
	OrganizationName string `json:"organization_name" binding:"required,max=100"`
	Name             string `json:"name" binding:"required,max=100"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8,max=72"`
	Phone            string `json:"phone" binding:"max=32"`
}

// UpdateOrganizationRequest 修改组织设置
type UpdateOrganizationRequest struct {
	Name       *string `json:"name" binding:"omitempty,min=1,max=100"`
	SMSEnabled *bool   `json:"sms_enabled"`
}

// Signup 创建组织和业主账号，免费套餐并开始试用
func (s *OrganizationService) Signup(ctx context.Context, req *SignupRequest) (*models.Organization, *models.Actor, error) {
	name := strings.TrimSpace(req.OrganizationName)
	if name == "" {
		return nil, nil, apperrors.ErrInvalidInput.WithMessage("组织名称不能为空")
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, nil, err
	}

	trialEnds := s.now().Add(s.trial)
	org := &models.Organization{
		Name:               name,
		Code:               code,
		PlanTier:           models.PlanFree,
		SubscriptionStatus: models.SubscriptionTrialing,
		TrialEndsAt:        &trialEnds,
	}
	owner := &models.Actor{
		Role:        models.RoleOwner,
		Email:       normalizeEmail(req.Email),
		Name:        strings.TrimSpace(req.Name),
		Preferences: datatypes.NewJSONType(models.DefaultNotificationPrefs()),
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		owner.Phone = &phone
	}
	if err := owner.SetPassword(req.Password); err != nil {
		return nil, nil, apperrors.Internal("密码加密失败", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		owner.OrganizationID = org.ID
		return tx.Create(owner).Error
	})
	if err != nil {
		return nil, nil, apperrors.Internal("创建组织失败", err)
	}

	s.log.WithFields(logrus.Fields{"org_id": org.ID, "code": org.Code}).Info("organization created")
	return org, owner, nil
}

// Get 当前组织
func (s *OrganizationService) Get(ctx context.Context, actor *models.Actor) (*models.Organization, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionOrganizationRead, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, err
	}
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, actor.OrganizationID).Error; err != nil {
		return nil, notFoundOr(err, "组织不存在")
	}
	return &org, nil
}

// Update 修改组织设置，仅业主
func (s *OrganizationService) Update(ctx context.Context, actor *models.Actor, req *UpdateOrganizationRequest) (*models.Organization, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionOrganizationUpdate, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.ErrInvalidInput.WithMessage("组织名称不能为空")
		}
		updates["name"] = name
	}
	if req.SMSEnabled != nil {
		updates["sms_enabled"] = *req.SMSEnabled
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Organization{}).
			Where("id = ?", actor.OrganizationID).
			Updates(updates).Error; err != nil {
			return nil, apperrors.Internal("更新组织失败", err)
		}
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, actor.OrganizationID).Error; err != nil {
		return nil, notFoundOr(err, "组织不存在")
	}
	return &org, nil
}

// Usage 当前用量和套餐上限
func (s *OrganizationService) Usage(ctx context.Context, actor *models.Actor) (*UsageReport, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionOrganizationRead, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, err
	}
	return s.limiter.Usage(ctx, actor.OrganizationID)
}

// uniqueCode 生成不重复的组织码
func (s *OrganizationService) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < orgCodeAttempts; i++ {
		code, err := generateOrgCode()
		if err != nil {
			return "", apperrors.Internal("生成组织码失败", err)
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Organization{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", apperrors.Internal("查询组织失败", err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", apperrors.Internal("生成组织码失败", nil)
}

func generateOrgCode() (string, error) {
	var sb strings.Builder
	bound := big.NewInt(int64(len(orgCodeAlphabet)))
	for i := 0; i < orgCodeLength; i++ {
		n, err := rand.Int(rand.Reader, bound)
		if err != nil {
			return "", err
		}
		sb.WriteByte(orgCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
