package middleware

import (
	"strings"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	actorKey = "actor"
	// ActorIDKey 当前账号ID
	ActorIDKey = "actor_id"
	// OrganizationIDKey 当前组织ID
	OrganizationIDKey = "org_id"
)

// AuthMiddleware 登录校验
type AuthMiddleware struct {
	auth *services.AuthService
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(auth *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireLogin 校验 Bearer 令牌并把当前账号放进上下文
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.FromError(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		actor, err := m.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Set(ActorIDKey, actor.ID)
		c.Set(OrganizationIDKey, actor.OrganizationID)
		c.Next()
	}
}

// RequireRole 限定角色，粗粒度过滤，细粒度权限由服务层判断
func (m *AuthMiddleware) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			response.FromError(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		response.FromError(c, errors.ErrRoleInsufficient)
		c.Abort()
	}
}

// CurrentActor 取当前登录账号
func CurrentActor(c *gin.Context) (*models.Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return nil, false
	}
	actor, ok := v.(*models.Actor)
	return actor, ok && actor != nil
}

// bearerToken Authorization 头优先，WebSocket 握手时浏览器无法设置请求头，退回 token 查询参数
func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", false
		}
		token := strings.TrimSpace(header[len("Bearer "):])
		return token, token != ""
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
