package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/config"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"

	"gorm.io/gorm"
)

// seedDemo 创建演示组织、业主和一处物业，已存在时跳过
func seedDemo(ctx context.Context, db *gorm.DB, organizations *services.OrganizationService, seed config.SeedConfig) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	email := strings.ToLower(strings.TrimSpace(seed.OwnerEmail))
	var existing models.Actor
	err := db.WithContext(ctx).
		Where("email = ? AND role = ?", email, models.RoleOwner).
		First(&existing).Error
	if err == nil {
		var org models.Organization
		if err := db.WithContext(ctx).First(&org, existing.OrganizationID).Error; err != nil {
			return fmt.Errorf("查询演示组织失败: %w", err)
		}
		appLogger.Infof("演示组织已存在，跳过创建，组织码: %s", org.Code)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询演示业主失败: %w", err)
	}

	org, owner, err := organizations.Signup(ctx, &services.SignupRequest{
		OrganizationName: seed.OrgName,
		Name:             "Demo Owner",
		Email:            email,
		Password:         seed.OwnerPassword,
	})
	if err != nil {
		return fmt.Errorf("创建演示组织失败: %w", err)
	}

	property := &models.Property{
		OrganizationID: org.ID,
		Name:           seed.OrgName,
	}
	if err := db.WithContext(ctx).Create(property).Error; err != nil {
		return fmt.Errorf("创建演示物业失败: %w", err)
	}
	for _, label := range []string{"101", "102"} {
		unit := &models.Unit{OrganizationID: org.ID, PropertyID: property.ID, Label: label}
		if err := db.WithContext(ctx).Create(unit).Error; err != nil {
			return fmt.Errorf("创建演示单元失败: %w", err)
		}
	}

	appLogger.Infof("演示组织创建完成，组织码: %s，业主: %s (ID %d)", org.Code, owner.Email, owner.ID)
	return nil
}
