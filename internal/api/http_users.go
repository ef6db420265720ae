package api

import (
	"cleancycle/internal/entity"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *HTTPHandler) ListUsers(c *gin.Context) {
	var query entity.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}

	users, meta := h.identity.ListUsers(query)

	response := entity.UserListResponse{
		Users: make([]entity.UserSummary, 0, len(users)),
		Meta:  meta,
	}
	for idx := range users {
		response.Users = append(response.Users, users[idx].Summary())
	}

	c.JSON(http.StatusOK, response)
}

func (h *HTTPHandler) UserStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.identity.Stats())
}

func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, ok := h.identity.GetUser(id); !ok {
		NotFound(c, ErrCodeUserNotFound, "user not found")
		return
	}

	var req entity.UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	updates := entity.UserUpdates{
		Name:        req.Name,
		Email:       req.Email,
		Role:        req.Role,
		Status:      req.Status,
		CommunityID: req.CommunityID,
	}
	if err := h.identity.UpdateUser(ctx, id, updates); err != nil {
		ServiceError(c, err, "failed to update user")
		return
	}

	updated, ok := h.identity.GetUser(id)
	if !ok {
		NotFound(c, ErrCodeUserNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, updated.Summary())
}

// ToggleUserStatus 社区管理页面的启用/停用切换
func (h *HTTPHandler) ToggleUserStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	updated, err := h.identity.ToggleStatus(ctx, id)
	if err != nil {
		ServiceError(c, err, "failed to toggle user status")
		return
	}
	if updated == nil {
		NotFound(c, ErrCodeUserNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, updated.Summary())
}

func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	requestUser := CurrentUser(c)
	id := strings.TrimSpace(c.Param("id"))

	if requestUser != nil && requestUser.ID == id {
		BadRequest(c, ErrCodeCannotDeleteSelf, "cannot delete current user")
		return
	}
	if _, ok := h.identity.GetUser(id); !ok {
		NotFound(c, ErrCodeUserNotFound, "user not found")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.identity.DeleteUser(ctx, id); err != nil {
		ServiceError(c, err, "failed to delete user")
		return
	}

	c.Status(http.StatusNoContent)
}
