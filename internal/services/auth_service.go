package services

import (
	"context"
	"strings"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/jwt"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthService 登录和会话
type AuthService struct {
	db  *gorm.DB
	log *logrus.Logger
	jwt *jwt.JWTManager
	now Clock
}

// NewAuthService 创建认证服务
func NewAuthService(db *gorm.DB, jwtManager *jwt.JWTManager) *AuthService {
	return &AuthService{
		db:  db,
		log: logger.GetLogger(),
		jwt: jwtManager,
		now: systemClock,
	}
}

// LoginRequest 登录请求，邮箱在组织内唯一
type LoginRequest struct {
	OrganizationCode string `json:"organization_code" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required"`
}

// Session 登录会话
type Session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Actor     *models.Actor `json:"actor"`
}

// Login 组织码 + 邮箱 + 密码登录
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	invalid := apperrors.Unauthorized("组织码、邮箱或密码错误")

	var org models.Organization
	code := strings.ToUpper(strings.TrimSpace(req.OrganizationCode))
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&org).Error; err != nil {
		return nil, invalid
	}

	var actor models.Actor
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND email = ? AND removed_at IS NULL", org.ID, normalizeEmail(req.Email)).
		First(&actor).Error
	if err != nil || !actor.CheckPassword(req.Password) {
		s.log.WithField("org_id", org.ID).Warn("login failed")
		return nil, invalid
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.Actor{}).
		Where("id = ?", actor.ID).
		Update("last_login_at", now).Error; err != nil {
		s.log.WithError(err).Warn("update last_login_at failed")
	}
	actor.LastLoginAt = &now

	return s.IssueSession(&actor)
}

// IssueSession 为账号签发会话令牌
func (s *AuthService) IssueSession(actor *models.Actor) (*Session, error) {
	token, expiresAt, err := s.jwt.GenerateToken(actor.ID, actor.OrganizationID, string(actor.Role), actor.Email)
	if err != nil {
		return nil, apperrors.Internal("生成令牌失败", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Actor: actor}, nil
}

// Authenticate 校验令牌并加载账号，角色以数据库为准
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Actor, error) {
	claims, err := s.jwt.VerifyToken(token)
	if err != nil {
		return nil, apperrors.ErrUnauthorized.WithMessage("令牌无效或已过期")
	}
	actor, err := findActiveActor(ctx, s.db, claims.OrganizationID, claims.ActorID)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok && appErr.Kind == apperrors.KindNotFound {
			return nil, apperrors.ErrUnauthorized.WithMessage("账号不存在或已被移出组织")
		}
		return nil, err
	}
	return actor, nil
}
