package handlers

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// InvitationHandler 邀请处理器
type InvitationHandler struct {
	invitationService *services.InvitationService
}

// NewInvitationHandler 创建邀请处理器
func NewInvitationHandler(invitationService *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// CreateInvitation 创建邀请
// @Summary 签发邀请
// @Description 经理和业主邀请维修人员、租客，业主还可以邀请经理
// @Tags 邀请管理
// @Accept json
// @Produce json
// @Param request body services.CreateInvitationRequest true "邀请信息"
// @Success 200 {object} response.Response{data=services.IssuedInvitation}
// @Router /api/v1/invitations [post]
func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req services.CreateInvitationRequest
	if !bindJSON(c, &req) {
		return
	}

	issued, err := h.invitationService.CreateInvitation(c.Request.Context(), actor, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, issued)
}

// ListInvitations 邀请列表
// @Summary 获取邀请列表
// @Tags 邀请管理
// @Produce json
// @Param status query string false "邀请状态(pending/accepted/expired/revoked)"
// @Success 200 {object} response.Response{data=[]services.InvitationView}
// @Router /api/v1/invitations [get]
func (h *InvitationHandler) ListInvitations(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	page := pagination.ParsePageParams(c)
	list, total, err := h.invitationService.ListInvitations(c.Request.Context(), actor, c.Query("status"), page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, list, pagination.NewPageInfo(page.Page, page.PageSize, total))
}

// RevokeInvitation 撤销邀请
func (h *InvitationHandler) RevokeInvitation(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.invitationService.RevokeInvitation(c.Request.Context(), actor, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "邀请已撤销", nil)
}

// PreviewInvitation 注册页查看邀请，无需登录
func (h *InvitationHandler) PreviewInvitation(c *gin.Context) {
	preview, err := h.invitationService.Preview(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, preview)
}
