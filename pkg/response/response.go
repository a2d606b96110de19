package response

import (
	"net/http"

	"github.com/Dungyy/Gerz-platform-sub000/pkg/errors"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/pagination"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Response 统一返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// RequestIDKey gin上下文中关联ID的键
const RequestIDKey = "request_id"

// ========== 基础返回方法 ==========

// Success 成功返回
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

// SuccessWithMessage 成功返回（自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// SuccessWithPage 分页成功返回
func SuccessWithPage(c *gin.Context, data interface{}, pageInfo *pagination.PageInfo) {
	c.JSON(http.StatusOK, gin.H{
		"code":      errors.CodeSuccess,
		"message":   "success",
		"data":      data,
		"page_info": pageInfo,
	})
}

// Error 通用错误返回，code 同时作为HTTP状态码
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// FromError 把业务错误转换成响应。非业务错误一律按内部错误处理，只记录日志不外泄细节
func FromError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal("服务器内部错误", err)
	}
	FromAppError(c, appErr.HTTPStatus(), appErr)
}

// FromAppError 指定HTTP状态码返回业务错误
func FromAppError(c *gin.Context, status int, appErr *errors.AppError) {
	if appErr.Kind == errors.KindInternal {
		logger.GetLogger().WithFields(logrus.Fields{
			"request_id": c.GetString(RequestIDKey),
			"path":       c.FullPath(),
		}).WithError(appErr).Error("request failed")

		c.JSON(status, Response{
			Code:    status,
			Message: "服务器内部错误",
			Reason:  appErr.Reason,
		})
		return
	}

	var data interface{}
	if len(appErr.Details) > 0 {
		data = appErr.Details
	}
	c.JSON(status, Response{
		Code:    status,
		Message: appErr.Message,
		Reason:  appErr.Reason,
		Data:    data,
	})
}

// ========== HTTP错误快捷方法 ==========

func BadRequest(c *gin.Context, message string) {
	Error(c, errors.CodeInvalidParam, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, errors.CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, errors.CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, errors.CodeNotFound, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, errors.CodeServerError, message)
}
