package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Dungyy/Gerz-platform-sub000/internal/authz"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AccountService 组织内经理、维修人员、租客账号管理
type AccountService struct {
	db      *gorm.DB
	log     *logrus.Logger
	limiter *UsageLimiter
	now     Clock
}

// NewAccountService 创建账号服务
func NewAccountService(db *gorm.DB, limiter *UsageLimiter) *AccountService {
	return &AccountService{
		db:      db,
		log:     logger.GetLogger(),
		limiter: limiter,
		now:     systemClock,
	}
}

// CreateAccountRequest 直接创建账号
type CreateAccountRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,max=100"`
	Phone    string `json:"phone" binding:"max=32"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	UnitID   *uint  `json:"unit_id"`
}

// UpdateProfileRequest 修改自己的资料和通知偏好
type UpdateProfileRequest struct {
	Name        *string                   `json:"name" binding:"omitempty,min=1,max=100"`
	Phone       *string                   `json:"phone" binding:"omitempty,max=32"`
	Preferences *models.NotificationPrefs `json:"preferences"`
}

type accountActions struct {
	read   authz.Action
	manage authz.Action
	remove authz.Action
}

func actionsFor(role models.Role) (accountActions, bool) {
	switch role {
	case models.RoleTenant:
		return accountActions{authz.ActionTenantRead, authz.ActionTenantManage, authz.ActionTenantDelete}, true
	case models.RoleWorker:
		return accountActions{authz.ActionWorkerRead, authz.ActionWorkerManage, authz.ActionWorkerDelete}, true
	case models.RoleManager:
		return accountActions{authz.ActionManagerRead, authz.ActionManagerManage, authz.ActionManagerDelete}, true
	}
	return accountActions{}, false
}

// Get 查看账号。不存在、已移除、其他组织都返回 NotFound
func (s *AccountService) Get(ctx context.Context, actor *models.Actor, role models.Role, id uint) (*models.Actor, error) {
	actions, ok := actionsFor(role)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	target, err := s.load(ctx, actor.OrganizationID, role, id)
	if err != nil {
		return nil, err
	}
	resource := authz.Resource{OrganizationID: target.OrganizationID, AccountID: target.ID}
	if err := authz.Require(authz.ActorFrom(actor), actions.read, resource); err != nil {
		return nil, err
	}
	return target, nil
}

// List 某个角色的账号列表
func (s *AccountService) List(ctx context.Context, actor *models.Actor, role models.Role, page *pagination.PageParams) ([]models.Actor, int64, error) {
	actions, ok := actionsFor(role)
	if !ok {
		return nil, 0, apperrors.ErrNotFound
	}
	if err := authz.Require(authz.ActorFrom(actor), actions.read, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.Actor{}).
		Where("organization_id = ? AND role = ? AND removed_at IS NULL", actor.OrganizationID, role)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询账号失败", err)
	}
	page = page.Normalize()
	var list []models.Actor
	if err := query.Order("name ASC, id ASC").Scopes(page.Scope()).Find(&list).Error; err != nil {
		return nil, 0, apperrors.Internal("查询账号失败", err)
	}
	return list, total, nil
}

// Create 直接创建账号，受套餐限制
func (s *AccountService) Create(ctx context.Context, actor *models.Actor, role models.Role, req *CreateAccountRequest) (*models.Actor, error) {
	actions, ok := actionsFor(role)
	if !ok {
		return nil, apperrors.ErrInvalidInput.WithMessage("无效的角色")
	}
	if err := authz.Require(authz.ActorFrom(actor), actions.manage, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, err
	}
	if req.UnitID != nil && role != models.RoleTenant {
		return nil, apperrors.ErrInvalidInput.WithMessage("只有租客可以指定单元")
	}

	email := normalizeEmail(req.Email)
	var existing models.Actor
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND email = ?", actor.OrganizationID, email).
		First(&existing).Error
	if err == nil && existing.RemovedAt == nil {
		return nil, apperrors.ErrAlreadyMember
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Internal("查询账号失败", err)
	}

	if resource, ok := models.ResourceForRole(role); ok {
		if err := s.limiter.Ensure(ctx, actor.OrganizationID, resource); err != nil {
			return nil, err
		}
	}

	account := &models.Actor{
		OrganizationID: actor.OrganizationID,
		Email:          email,
		Preferences:    datatypes.NewJSONType(models.DefaultNotificationPrefs()),
	}
	if err == nil {
		// 曾被移出组织，恢复原账号
		account = &existing
		account.RemovedAt = nil
		account.UnitID = nil
	}
	account.Role = role
	account.Name = strings.TrimSpace(req.Name)
	account.InvitedBy = uintPtr(actor.ID)
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		account.Phone = &phone
	}
	if err := account.SetPassword(req.Password); err != nil {
		return nil, apperrors.Internal("密码加密失败", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(account).Error; err != nil {
			return err
		}
		if req.UnitID != nil {
			if err := moveTenantIntoUnit(tx, actor.OrganizationID, account.ID, *req.UnitID); err != nil {
				return err
			}
			account.UnitID = req.UnitID
		}
		return nil
	})
	if err != nil {
		return nil, wrapTxError(err, "创建账号失败")
	}

	s.log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"role":       role,
		"actor_id":   actor.ID,
	}).Info("account created")
	return account, nil
}

// Delete 把账号移出组织（软删除）。维修人员有未结束的报修单时不能删除，
// 租客移出时释放其单元
func (s *AccountService) Delete(ctx context.Context, actor *models.Actor, role models.Role, id uint) error {
	actions, ok := actionsFor(role)
	if !ok {
		return apperrors.ErrNotFound
	}
	target, err := s.load(ctx, actor.OrganizationID, role, id)
	if err != nil {
		return err
	}
	resource := authz.Resource{OrganizationID: target.OrganizationID, AccountID: target.ID}
	if err := authz.Require(authz.ActorFrom(actor), actions.remove, resource); err != nil {
		return err
	}
	var active int64
	if err := s.db.WithContext(ctx).Model(&models.MaintenanceRequest{}).
		Where("organization_id = ? AND assigned_to = ? AND status IN ?", target.OrganizationID, target.ID,
			[]models.RequestStatus{models.StatusAssigned, models.StatusInProgress}).
		Count(&active).Error; err != nil {
		return apperrors.Internal("查询报修单失败", err)
	}
	if active > 0 {
		return apperrors.ErrActiveAssignments.WithDetails(map[string]interface{}{"active_requests": active})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if role == models.RoleTenant {
			if err := releaseTenantUnit(tx, target.OrganizationID, target.ID); err != nil {
				return err
			}
		}
		return tx.Model(&models.Actor{}).Where("id = ?", target.ID).Update("removed_at", s.now()).Error
	})
	if err != nil {
		return apperrors.Internal("删除账号失败", err)
	}

	s.log.WithFields(logrus.Fields{"account_id": target.ID, "role": role, "actor_id": actor.ID}).Info("account removed")
	return nil
}

// AssignUnit 租客搬入单元，原住户和租客原单元同时释放
func (s *AccountService) AssignUnit(ctx context.Context, actor *models.Actor, tenantID, unitID uint) (*models.Actor, error) {
	tenant, err := s.load(ctx, actor.OrganizationID, models.RoleTenant, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionTenantManage, authz.OrgResource(tenant.OrganizationID)); err != nil {
		return nil, err
	}
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionUnitManage, authz.OrgResource(tenant.OrganizationID)); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return moveTenantIntoUnit(tx, tenant.OrganizationID, tenant.ID, unitID)
	})
	if err != nil {
		return nil, wrapTxError(err, "分配单元失败")
	}
	tenant.UnitID = uintPtr(unitID)
	return tenant, nil
}

// UpdateProfile 修改自己的姓名、手机号和通知偏好
func (s *AccountService) UpdateProfile(ctx context.Context, actor *models.Actor, req *UpdateProfileRequest) (*models.Actor, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.ErrInvalidInput.WithMessage("姓名不能为空")
		}
		updates["name"] = name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			updates["phone"] = nil
		} else {
			updates["phone"] = phone
		}
	}
	if req.Preferences != nil {
		updates["preferences"] = datatypes.NewJSONType(*req.Preferences)
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Actor{}).
			Where("id = ? AND organization_id = ?", actor.ID, actor.OrganizationID).
			Updates(updates).Error; err != nil {
			return nil, apperrors.Internal("更新资料失败", err)
		}
	}
	return findActiveActor(ctx, s.db, actor.OrganizationID, actor.ID)
}

func (s *AccountService) load(ctx context.Context, orgID uint, role models.Role, id uint) (*models.Actor, error) {
	var target models.Actor
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ? AND role = ? AND removed_at IS NULL", id, orgID, role).
		First(&target).Error
	if err != nil {
		return nil, notFoundOr(err, "账号不存在")
	}
	return &target, nil
}
