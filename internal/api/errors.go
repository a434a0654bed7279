package api

import (
	"context"
	"errors"
	"net/http"

	"genstudio/internal/entity"
	"genstudio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 错误码定义
const (
	// 通用错误码
	ErrCodeInvalidRequest     = "ERR_INVALID_REQUEST"
	ErrCodeUnauthorized       = "ERR_UNAUTHORIZED"
	ErrCodeForbidden          = "ERR_FORBIDDEN"
	ErrCodeNotFound           = "ERR_NOT_FOUND"
	ErrCodeInternalError      = "ERR_INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
	ErrCodeTimeout            = "ERR_TIMEOUT"

	// 认证错误码
	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "ERR_EMAIL_EXISTS"
	ErrCodeUserDisabled       = "ERR_USER_DISABLED"
	ErrCodeSessionExpired     = "ERR_SESSION_EXPIRED"
	ErrCodeUserNotFound       = "ERR_USER_NOT_FOUND"

	// 资源错误码
	ErrCodeArtifactNotFound = "ERR_ARTIFACT_NOT_FOUND"
	ErrCodeInvalidProvider  = "ERR_INVALID_PROVIDER"

	// 业务逻辑错误码
	ErrCodeMissingField          = "ERR_MISSING_FIELD"
	ErrCodeCannotDeleteSelf      = "ERR_CANNOT_DELETE_SELF"
	ErrCodeSignupRequired        = "ERR_SIGNUP_REQUIRED"
	ErrCodeInsufficientCredits   = "ERR_INSUFFICIENT_CREDITS"
	ErrCodeGenerationFailed      = "ERR_GENERATION_FAILED"
	ErrCodeVideoGenerationFailed = "ERR_VIDEO_GENERATION_FAILED"
)

// statusClientClosedRequest 客户端已断开，响应不会被读取
const statusClientClosedRequest = 499

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

// ServiceUnavailable 503 服务不可用
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// MissingField 缺少必填字段
func MissingField(c *gin.Context, field string) {
	ErrorResponseWithDetails(c, http.StatusBadRequest, ErrCodeMissingField, field+" is required", gin.H{"field": field})
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request payload")
}

// generationFailureDetails 生成失败时返回给客户端的诊断信息
type generationFailureDetails struct {
	Stage              service.VideoStage         `json:"stage,omitempty"`
	Attempts           []entity.AttemptDiagnostic `json:"attempts,omitempty"`
	MissingCredentials []string                   `json:"missing_credentials,omitempty"`
}

func newFailureDetails(failed *service.AllProvidersFailedError) generationFailureDetails {
	details := generationFailureDetails{Attempts: failed.Diagnostics()}
	for _, p := range failed.Missing {
		details.MissingCredentials = append(details.MissingCredentials, p.CredentialLabel())
	}
	return details
}

// ServiceError 将服务层错误映射为统一的错误响应
func ServiceError(c *gin.Context, err error, fallback string) {
	var (
		denied      *service.PolicyDeniedError
		videoFailed *service.VideoGenerationFailedError
		allFailed   *service.AllProvidersFailedError
	)

	switch {
	case errors.Is(err, context.Canceled):
		logrus.WithError(err).Info("client cancelled request")
		c.AbortWithStatus(statusClientClosedRequest)
	case errors.As(err, &denied):
		if denied.Code == service.DenialSignupRequired {
			ErrorResponse(c, http.StatusForbidden, ErrCodeSignupRequired, denied.Reason)
			return
		}
		ErrorResponse(c, http.StatusBadRequest, ErrCodeInsufficientCredits, denied.Reason)
	case errors.As(err, &videoFailed):
		details := generationFailureDetails{}
		if errors.As(videoFailed.Cause, &allFailed) {
			details = newFailureDetails(allFailed)
		}
		details.Stage = videoFailed.Stage
		ErrorResponseWithDetails(c, http.StatusBadGateway, ErrCodeVideoGenerationFailed, videoFailed.Error(), details)
	case errors.As(err, &allFailed):
		ErrorResponseWithDetails(c, http.StatusBadGateway, ErrCodeGenerationFailed, allFailed.Error(), newFailureDetails(allFailed))
	case errors.Is(err, service.ErrEmptyPrompt):
		MissingField(c, "prompt")
	case errors.Is(err, service.ErrUnknownProvider):
		BadRequest(c, ErrCodeInvalidProvider, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, ErrCodeNotFound, "resource not found")
	case errors.Is(err, context.DeadlineExceeded):
		ErrorResponse(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		logrus.WithError(err).Error(fallback)
		InternalError(c, fallback)
	}
}
