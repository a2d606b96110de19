package services

import (
	"context"
	"strings"

	"github.com/Dungyy/Gerz-platform-sub000/internal/authz"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PropertyService 物业和单元
type PropertyService struct {
	db      *gorm.DB
	log     *logrus.Logger
	limiter *UsageLimiter
}

// NewPropertyService 创建物业服务
func NewPropertyService(db *gorm.DB, limiter *UsageLimiter) *PropertyService {
	return &PropertyService{
		db:      db,
		log:     logger.GetLogger(),
		limiter: limiter,
	}
}

// CreatePropertyRequest 创建物业
type CreatePropertyRequest struct {
	Name         string `json:"name" binding:"required,max=100"`
	AddressLine1 string `json:"address_line1" binding:"max=200"`
	AddressLine2 string `json:"address_line2" binding:"max=200"`
	City         string `json:"city" binding:"max=100"`
	State        string `json:"state" binding:"max=50"`
	PostalCode   string `json:"postal_code" binding:"max=20"`
}

// CreateUnitRequest 创建单元
type CreateUnitRequest struct {
	Label string `json:"label" binding:"required,max=50"`
}

// CreateProperty 创建物业
func (s *PropertyService) CreateProperty(ctx context.Context, actor *models.Actor, req *CreatePropertyRequest) (*models.Property, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionPropertyManage, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.ErrInvalidInput.WithMessage("物业名称不能为空")
	}
	if err := s.limiter.Ensure(ctx, actor.OrganizationID, models.ResourceProperties); err != nil {
		return nil, err
	}

	property := &models.Property{
		OrganizationID: actor.OrganizationID,
		Name:           name,
		AddressLine1:   req.AddressLine1,
		AddressLine2:   req.AddressLine2,
		City:           req.City,
		State:          req.State,
		PostalCode:     req.PostalCode,
	}
	if err := s.db.WithContext(ctx).Create(property).Error; err != nil {
		return nil, apperrors.Internal("创建物业失败", err)
	}
	s.log.WithFields(logrus.Fields{"property_id": property.ID, "org_id": property.OrganizationID}).Info("property created")
	return property, nil
}

// ListProperties 物业列表
func (s *PropertyService) ListProperties(ctx context.Context, actor *models.Actor, page *pagination.PageParams) ([]models.Property, int64, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionPropertyRead, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, 0, err
	}
	query := s.db.WithContext(ctx).Model(&models.Property{}).Where("organization_id = ?", actor.OrganizationID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询物业失败", err)
	}
	page = page.Normalize()
	var list []models.Property
	if err := query.Order("name ASC, id ASC").Scopes(page.Scope()).Find(&list).Error; err != nil {
		return nil, 0, apperrors.Internal("查询物业失败", err)
	}
	return list, total, nil
}

// CreateUnit 在物业下创建单元
func (s *PropertyService) CreateUnit(ctx context.Context, actor *models.Actor, propertyID uint, req *CreateUnitRequest) (*models.Unit, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionUnitManage, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, err
	}
	property, err := s.loadProperty(ctx, actor.OrganizationID, propertyID)
	if err != nil {
		return nil, err
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return nil, apperrors.ErrInvalidInput.WithMessage("单元名称不能为空")
	}
	if err := s.limiter.Ensure(ctx, actor.OrganizationID, models.ResourceUnits); err != nil {
		return nil, err
	}

	unit := &models.Unit{
		OrganizationID: property.OrganizationID,
		PropertyID:     property.ID,
		Label:          label,
	}
	if err := s.db.WithContext(ctx).Create(unit).Error; err != nil {
		return nil, apperrors.Internal("创建单元失败", err)
	}
	return unit, nil
}

// ListUnits 物业下的单元
func (s *PropertyService) ListUnits(ctx context.Context, actor *models.Actor, propertyID uint) ([]models.Unit, error) {
	if err := authz.Require(authz.ActorFrom(actor), authz.ActionPropertyRead, authz.OrgResource(actor.OrganizationID)); err != nil {
		return nil, err
	}
	if _, err := s.loadProperty(ctx, actor.OrganizationID, propertyID); err != nil {
		return nil, err
	}
	var units []models.Unit
	if err := s.db.WithContext(ctx).
		Where("organization_id = ? AND property_id = ?", actor.OrganizationID, propertyID).
		Order("label ASC, id ASC").
		Find(&units).Error; err != nil {
		return nil, apperrors.Internal("查询单元失败", err)
	}
	return units, nil
}

func (s *PropertyService) loadProperty(ctx context.Context, orgID, id uint) (*models.Property, error) {
	var property models.Property
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&property).Error; err != nil {
		return nil, notFoundOr(err, "物业不存在")
	}
	return &property, nil
}
