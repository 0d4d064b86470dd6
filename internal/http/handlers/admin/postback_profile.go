package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/convtrack/internal/http/handlers/shared"
	"github.com/convtrack/internal/http/response"
	"github.com/convtrack/internal/repository"
	"github.com/convtrack/internal/service"

	"github.com/gin-gonic/gin"
)

// GetPostbackProfiles 获取当前归属下的回传配置列表
func (h *Handler) GetPostbackProfiles(c *gin.Context) {
	owner, ok := handlershared.GetOwner(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	filter := repository.PostbackProfileListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if raw := strings.TrimSpace(c.Query("enabled")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid enabled filter", nil)
			return
		}
		filter.Enabled = &parsed
	}

	profiles, total, err := h.PostbackProfileService.List(owner, filter)
	if err != nil {
		respondWithMappedError(c, err, ownerErrorRules, "failed to list postback profiles")
		return
	}
	response.SuccessWithPage(c, profiles, handlershared.BuildPagination(page, pageSize, total))
}

// GetPostbackProfile 获取回传配置详情
func (h *Handler) GetPostbackProfile(c *gin.Context) {
	owner, ok := handlershared.GetOwner(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid id", nil)
		return
	}
	profile, err := h.PostbackProfileService.Get(owner, id)
	if err != nil {
		respondWithMappedError(c, err, ownerErrorRules, "failed to fetch postback profile")
		return
	}
	response.Success(c, profile)
}

// CreatePostbackProfile 创建回传配置
func (h *Handler) CreatePostbackProfile(c *gin.Context) {
	owner, ok := handlershared.GetOwner(c)
	if !ok {
		return
	}
	var req service.PostbackProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}
	profile, err := h.PostbackProfileService.Create(owner, req)
	if err != nil {
		respondWithMappedError(c, err, ownerErrorRules, "failed to create postback profile")
		return
	}
	response.Success(c, profile)
}

// UpdatePostbackProfile 更新回传配置
func (h *Handler) UpdatePostbackProfile(c *gin.Context) {
	owner, ok := handlershared.GetOwner(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid id", nil)
		return
	}
	var req service.PostbackProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", err)
		return
	}
	profile, err := h.PostbackProfileService.Update(owner, id, req)
	if err != nil {
		respondWithMappedError(c, err, ownerErrorRules, "failed to update postback profile")
		return
	}
	response.Success(c, profile)
}

// DeletePostbackProfile 删除回传配置
func (h *Handler) DeletePostbackProfile(c *gin.Context) {
	owner, ok := handlershared.GetOwner(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid id", nil)
		return
	}
	if err := h.PostbackProfileService.Delete(owner, id); err != nil {
		respondWithMappedError(c, err, ownerErrorRules, "failed to delete postback profile")
		return
	}
	response.Success(c, nil)
}
