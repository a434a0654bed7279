package api

import (
	"net/http"
	"strings"

	"genstudio/internal/entity"

	"github.com/gin-gonic/gin"
)

func (h *HTTPHandler) GetCredits(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	balance, err := h.accountService.Credits(c.Request.Context(), user.ID)
	if err != nil {
		ServiceError(c, err, "failed to load credits")
		return
	}
	c.JSON(http.StatusOK, balance)
}

// ListCredentials 返回各服务商的密钥状态（掩码后）
func (h *HTTPHandler) ListCredentials(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	statuses, err := h.accountService.Credentials(c.Request.Context(), user.ID)
	if err != nil {
		ServiceError(c, err, "failed to load api keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": statuses})
}

func (h *HTTPHandler) SaveCredential(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	var req entity.CredentialSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	status, err := h.accountService.SaveCredential(c.Request.Context(), user.ID, req.Provider, req.APIKey)
	if err != nil {
		ServiceError(c, err, "failed to save api key")
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *HTTPHandler) DeleteCredential(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	if err := h.accountService.DeleteCredential(c.Request.Context(), user.ID, c.Param("provider")); err != nil {
		ServiceError(c, err, "failed to delete api key")
		return
	}
	c.Status(http.StatusNoContent)
}

// VerifyCredential 校验密钥但不保存
func (h *HTTPHandler) VerifyCredential(c *gin.Context) {
	var req entity.CredentialVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	result, err := h.accountService.VerifyCredential(c.Request.Context(), req.Provider, req.APIKey)
	if err != nil {
		ServiceError(c, err, "failed to verify api key")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) SelectModel(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	var req entity.ModelSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	status, err := h.accountService.SelectModel(c.Request.Context(), user.ID, c.Param("provider"), req.Model)
	if err != nil {
		ServiceError(c, err, "failed to select model")
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *HTTPHandler) ListModels(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	models, err := h.accountService.AvailableModels(c.Request.Context(), user.ID)
	if err != nil {
		ServiceError(c, err, "failed to list models")
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": models})
}

func (h *HTTPHandler) TestModel(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}
	var req entity.ModelTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	result, err := h.accountService.TestModel(c.Request.Context(), user.ID, req.Provider, strings.TrimSpace(req.Model))
	if err != nil {
		ServiceError(c, err, "failed to test model")
		return
	}
	c.JSON(http.StatusOK, result)
}
