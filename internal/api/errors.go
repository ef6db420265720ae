package api

import (
	"errors"
	"net/http"

	"cleancycle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 错误码定义
const (
	// 通用错误码
	ErrCodeInvalidRequest = "ERR_INVALID_REQUEST"
	ErrCodeUnauthorized   = "ERR_UNAUTHORIZED"
	ErrCodeForbidden      = "ERR_FORBIDDEN"
	ErrCodeNotFound       = "ERR_NOT_FOUND"
	ErrCodeInternalError  = "ERR_INTERNAL_ERROR"

	// 认证错误码
	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "ERR_EMAIL_EXISTS"
	ErrCodeWeakPassword       = "ERR_WEAK_PASSWORD"
	ErrCodeRegistrationClosed = "ERR_REGISTRATION_CLOSED"
	ErrCodeAccountSuspended   = "ERR_ACCOUNT_SUSPENDED"
	ErrCodeAccountInactive    = "ERR_ACCOUNT_INACTIVE"
	ErrCodeSessionExpired     = "ERR_SESSION_EXPIRED"

	// 资源错误码
	ErrCodeUserNotFound         = "ERR_USER_NOT_FOUND"
	ErrCodeNotificationNotFound = "ERR_NOTIFICATION_NOT_FOUND"

	// 业务逻辑错误码
	ErrCodeMissingField        = "ERR_MISSING_FIELD"
	ErrCodeInvalidRole         = "ERR_INVALID_ROLE"
	ErrCodeInvalidStatus       = "ERR_INVALID_STATUS"
	ErrCodeInvalidNotification = "ERR_INVALID_NOTIFICATION"
	ErrCodeCannotDeleteSelf    = "ERR_CANNOT_DELETE_SELF"
)

// APIError 统一的 API 错误响应结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
	})
}

// ErrorResponseWithDetails 返回带详情的错误响应
func ErrorResponseWithDetails(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, APIError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// 常用错误响应快捷函数

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden 403 禁止访问
func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound 404 资源不存在
func NotFound(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusNotFound, code, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// MissingField 缺少必填字段
func MissingField(c *gin.Context, field string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeMissingField, field+" is required", gin.H{"field": field})
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request payload")
}

type serviceErrorMapping struct {
	target error
	status int
	code   string
}

var serviceErrorMappings = []serviceErrorMapping{
	{target: service.ErrDuplicateEmail, status: http.StatusConflict, code: ErrCodeEmailExists},
	{target: service.ErrWeakPassword, status: http.StatusBadRequest, code: ErrCodeWeakPassword},
	{target: service.ErrInvalidCredentials, status: http.StatusUnauthorized, code: ErrCodeInvalidCredentials},
	{target: service.ErrAccountSuspended, status: http.StatusForbidden, code: ErrCodeAccountSuspended},
	{target: service.ErrAccountInactive, status: http.StatusForbidden, code: ErrCodeAccountInactive},
	{target: service.ErrInvalidRole, status: http.StatusBadRequest, code: ErrCodeInvalidRole},
	{target: service.ErrInvalidStatus, status: http.StatusBadRequest, code: ErrCodeInvalidStatus},
	{target: service.ErrInvalidNotification, status: http.StatusBadRequest, code: ErrCodeInvalidNotification},
}

// ServiceError 将服务层错误映射为 HTTP 响应，未知错误记录日志并返回 500
func ServiceError(c *gin.Context, err error, fallback string) {
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.target) {
			ErrorResponse(c, m.status, m.code, err.Error())
			return
		}
	}
	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error(fallback)
	InternalError(c, fallback)
}
