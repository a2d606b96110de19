package router

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/handlers"
	"github.com/Dungyy/Gerz-platform-sub000/internal/middleware"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/config"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Dependencies 路由需要的服务
type Dependencies struct {
	DB            *gorm.DB
	Bus           *queue.RedisBus
	CORS          config.CORSConfig
	Organizations *services.OrganizationService
	Auth          *services.AuthService
	Invitations   *services.InvitationService
	Requests      *services.RequestService
	Accounts      *services.AccountService
	Properties    *services.PropertyService
	Notifications *services.NotificationService
}

// SetupRouter 设置路由
func SetupRouter(deps *Dependencies) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS(deps.CORS))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 注册路由
	registerRoutes(router, deps)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine, deps *Dependencies) {
	auth := middleware.NewAuthMiddleware(deps.Auth)
	admin := auth.RequireRole(models.RoleOwner, models.RoleManager)

	api := router.Group("/api/v1")
	{
		systemHandler := handlers.NewSystemHandler(deps.DB, deps.Bus)
		api.GET("/health", systemHandler.Health)

		// 认证（注册、登录、兑换邀请无需登录）
		authHandler := handlers.NewAuthHandler(deps.Organizations, deps.Auth, deps.Invitations)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.Signup)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/redeem", authHandler.Redeem)
			authGroup.GET("/me", auth.RequireLogin(), authHandler.Me)
		}

		// 邀请
		invitationHandler := handlers.NewInvitationHandler(deps.Invitations)
		api.GET("/invitations/preview/:token", invitationHandler.PreviewInvitation)
		invitations := api.Group("/invitations", auth.RequireLogin(), admin)
		{
			invitations.POST("", invitationHandler.CreateInvitation)
			invitations.GET("", invitationHandler.ListInvitations)
			invitations.DELETE("/:id", invitationHandler.RevokeInvitation)
		}

		// 报修单，可见范围由服务层按角色判断
		requestHandler := handlers.NewRequestHandler(deps.Requests)
		requests := api.Group("/requests", auth.RequireLogin())
		{
			requests.POST("", requestHandler.Create)
			requests.GET("", requestHandler.List)
			requests.GET("/:id", requestHandler.Get)
			requests.PUT("/:id", requestHandler.Update)
			requests.DELETE("/:id", requestHandler.Delete)
			requests.GET("/:id/comments", requestHandler.ListComments)
			requests.POST("/:id/comments", requestHandler.AddComment)
		}

		// 账号
		accountHandler := handlers.NewAccountHandler(deps.Accounts)
		for path, role := range map[string]models.Role{
			"/managers": models.RoleManager,
			"/workers":  models.RoleWorker,
			"/tenants":  models.RoleTenant,
		} {
			group := api.Group(path, auth.RequireLogin())
			group.GET("", accountHandler.List(role))
			group.POST("", accountHandler.Create(role))
			group.GET("/:id", accountHandler.Get(role))
			group.DELETE("/:id", accountHandler.Delete(role))
		}
		api.PUT("/tenants/:id/unit", auth.RequireLogin(), admin, accountHandler.AssignUnit)
		api.PUT("/me/preferences", auth.RequireLogin(), accountHandler.UpdateProfile)

		// 物业和单元
		propertyHandler := handlers.NewPropertyHandler(deps.Properties)
		properties := api.Group("/properties", auth.RequireLogin())
		{
			properties.POST("", propertyHandler.CreateProperty)
			properties.GET("", propertyHandler.ListProperties)
			properties.POST("/:id/units", propertyHandler.CreateUnit)
			properties.GET("/:id/units", propertyHandler.ListUnits)
		}

		// 组织
		organizationHandler := handlers.NewOrganizationHandler(deps.Organizations)
		organization := api.Group("/organization", auth.RequireLogin())
		{
			organization.GET("", organizationHandler.Get)
			organization.PUT("", organizationHandler.Update)
			organization.GET("/usage", organizationHandler.Usage)
		}

		// 通知
		notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
		wsHandler := handlers.NewWebSocketHandler(deps.Bus, deps.Notifications, deps.CORS.AllowOrigins)
		notifications := api.Group("/notifications", auth.RequireLogin())
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
			notifications.GET("/stream", wsHandler.Stream)
		}
	}
}
