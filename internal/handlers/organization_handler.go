package handlers

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// OrganizationHandler 当前组织
type OrganizationHandler struct {
	orgs *services.OrganizationService
}

// NewOrganizationHandler 创建组织处理器
func NewOrganizationHandler(orgs *services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs}
}

// Get 组织信息
func (h *OrganizationHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	org, err := h.orgs.Get(c.Request.Context(), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, org)
}

// Update 修改组织设置，仅业主
func (h *OrganizationHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req services.UpdateOrganizationRequest
	if !bindJSON(c, &req) {
		return
	}
	org, err := h.orgs.Update(c.Request.Context(), actor, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, org)
}

// Usage 套餐用量
func (h *OrganizationHandler) Usage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	report, err := h.orgs.Usage(c.Request.Context(), actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}
