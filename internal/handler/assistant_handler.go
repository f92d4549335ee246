// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"assistant-console-go/internal/model"
	"assistant-console-go/internal/repository"
	"assistant-console-go/internal/service"
	"assistant-console-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AssistantHandler 负责处理所有与助手管理相关的 API 请求。
type AssistantHandler struct {
	assistantService service.AssistantService
}

// NewAssistantHandler 创建一个新的 AssistantHandler 实例。
func NewAssistantHandler(assistantService service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistantService: assistantService}
}

// UpdateRulesRequest 定义了保存训练规则 API 的请求体结构。
type UpdateRulesRequest struct {
	Rules string `json:"rules"`
}

// List 返回缓存中的助手列表。
func (h *AssistantHandler) List(c *gin.Context) {
	assistants, err := h.assistantService.List(c.Request.Context())
	if err != nil {
		log.Error("List: 获取助手列表失败", err)
		respondError(c, err, "获取助手列表失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": assistants})
}

// Refresh 强制从数据源重新加载列表。
func (h *AssistantHandler) Refresh(c *gin.Context) {
	assistants, err := h.assistantService.Refresh(c.Request.Context())
	if err != nil {
		log.Error("Refresh: 刷新助手列表失败", err)
		respondError(c, err, "刷新助手列表失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": assistants})
}

// Get 返回单个助手。
func (h *AssistantHandler) Get(c *gin.Context) {
	assistant, err := h.assistantService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "获取助手失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": assistant})
}

// Create 处理创建新助手的请求。
func (h *AssistantHandler) Create(c *gin.Context) {
	var req model.CreateAssistantInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Create: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	assistant, err := h.assistantService.Create(c.Request.Context(), req)
	if err != nil {
		log.Error("Create: 创建助手失败", err)
		respondError(c, err, "创建助手失败")
		return
	}
	log.Infof("已创建助手 '%s' (%s)", assistant.Name, assistant.ID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "助手创建成功", "data": assistant})
}

// Update 处理部分更新助手的请求。
func (h *AssistantHandler) Update(c *gin.Context) {
	var req model.UpdateAssistantInput
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Update: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	assistant, err := h.assistantService.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		log.Error("Update: 更新助手失败", err)
		respondError(c, err, "更新助手失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "助手更新成功", "data": assistant})
}

// UpdateRules 保存训练规则。
func (h *AssistantHandler) UpdateRules(c *gin.Context) {
	var req UpdateRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	assistant, err := h.assistantService.UpdateRules(c.Request.Context(), c.Param("id"), req.Rules)
	if err != nil {
		log.Error("UpdateRules: 保存训练规则失败", err)
		respondError(c, err, "保存训练规则失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "训练规则保存成功", "data": assistant})
}

// Delete 处理乐观删除请求。
func (h *AssistantHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.assistantService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "删除助手失败")
		return
	}
	log.Infof("已删除助手 %s", id)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "助手删除成功", "data": nil})
}

// respondError 将错误分类映射为 HTTP 状态码和面向用户的提示。
func respondError(c *gin.Context, err error, fallback string) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": validationErr.Message, "data": gin.H{"field": validationErr.Field}})
	case errors.Is(err, repository.ErrAssistantNotFound), errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error(), "data": nil})
	case errors.Is(err, repository.ErrTransientFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": err.Error(), "data": gin.H{"retryable": true}})
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
	case errors.Is(err, service.ErrAwaitingResponse):
		c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": err.Error(), "data": nil})
	case errors.Is(err, service.ErrInvalidConfirmation):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": service.ErrInvalidConfirmation.Error(), "data": nil})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": fallback, "data": nil})
	}
}
