package handlers

import (
	"strconv"

	"github.com/Dungyy/Gerz-platform-sub000/internal/middleware"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// parseID 解析路径中的数字ID，失败时已写入响应
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "ID格式错误")
		return 0, false
	}
	return uint(id), true
}

// bindJSON 绑定请求体，失败时已写入响应
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.FromError(c, errors.ErrInvalidInput.WithMessage("请求参数错误: "+err.Error()))
		return false
	}
	return true
}

// currentActor 登录中间件之后一定存在，缺失时按未登录处理
func currentActor(c *gin.Context) (*models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.FromError(c, errors.ErrUnauthorized)
		return nil, false
	}
	return actor, true
}
