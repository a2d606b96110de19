package handlers

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler 注册、登录、兑换邀请
type AuthHandler struct {
	orgs        *services.OrganizationService
	auth        *services.AuthService
	invitations *services.InvitationService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(orgs *services.OrganizationService, auth *services.AuthService, invitations *services.InvitationService) *AuthHandler {
	return &AuthHandler{orgs: orgs, auth: auth, invitations: invitations}
}

// SignupResponse 注册结果
type SignupResponse struct {
	Organization *models.Organization `json:"organization"`
	*services.Session
}

// Signup 注册组织和业主
// @Summary 注册组织
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body services.SignupRequest true "组织和业主信息"
// @Success 201 {object} response.Response{data=SignupResponse}
// @Router /api/v1/auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req services.SignupRequest
	if !bindJSON(c, &req) {
		return
	}
	org, owner, err := h.orgs.Signup(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	session, err := h.auth.IssueSession(owner)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, SignupResponse{Organization: org, Session: session})
}

// Login 组织码 + 邮箱 + 密码登录
// @Summary 登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body services.LoginRequest true "登录信息"
// @Success 200 {object} response.Response{data=services.Session}
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, session)
}

// Redeem 兑换邀请并直接登录。兑换失败一律按 400 返回，由 reason 区分原因
// @Summary 兑换邀请
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body services.RedeemInvitationRequest true "邀请令牌和账号信息"
// @Success 201 {object} response.Response{data=services.Session}
// @Router /api/v1/auth/redeem [post]
func (h *AuthHandler) Redeem(c *gin.Context) {
	var req services.RedeemInvitationRequest
	if !bindJSON(c, &req) {
		return
	}
	actor, err := h.invitations.Redeem(c.Request.Context(), &req)
	if err != nil {
		if appErr, ok := errors.As(err); ok && appErr.Kind != errors.KindInternal {
			response.FromAppError(c, errors.CodeInvalidParam, appErr)
			return
		}
		response.FromError(c, err)
		return
	}
	session, err := h.auth.IssueSession(actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, session)
}

// Me 当前登录账号
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	response.Success(c, actor)
}
