package api

import (
	"cleancycle/internal/entity"
	"cleancycle/internal/service"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (h *HTTPHandler) Register(c *gin.Context) {
	var req entity.AuthRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == entity.UserRoleAdmin && !h.cfg.AllowAdminRegistration {
		ErrorResponse(c, http.StatusForbidden, ErrCodeRegistrationClosed, "admin self-registration is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.authTimeout())
	defer cancel()

	session, err := h.identity.Register(ctx, req.Name, req.Email, req.Password, role)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Warn("registration failed")
		ServiceError(c, err, "failed to register user")
		return
	}

	c.JSON(http.StatusCreated, makeAuthResponse(session))
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var req entity.AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.authTimeout())
	defer cancel()

	session, err := h.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Warn("login attempt failed")
		ServiceError(c, err, "failed to create session")
		return
	}

	c.JSON(http.StatusOK, makeAuthResponse(session))
}

// Logout 结束当前会话，令牌随之失效
func (h *HTTPHandler) Logout(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := h.identity.Logout(ctx); err != nil {
		ServiceError(c, err, "failed to clear session")
		return
	}
	logrus.WithField("user_id", user.ID).Info("user logged out")

	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	dbUser, ok := h.identity.GetUser(user.ID)
	if !ok {
		NotFound(c, ErrCodeUserNotFound, "user not found")
		return
	}

	c.JSON(http.StatusOK, dbUser.Summary())
}

func (h *HTTPHandler) UpdateProfile(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			MissingField(c, "name")
			return
		}
		req.Name = &name
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	updates := entity.UserUpdates{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		CommunityID: req.CommunityID,
	}
	if err := h.identity.UpdateUser(ctx, user.ID, updates); err != nil {
		ServiceError(c, err, "failed to update profile")
		return
	}

	updated, ok := h.identity.GetUser(user.ID)
	if !ok {
		NotFound(c, ErrCodeUserNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, updated.Summary())
}

func makeAuthResponse(session *service.Session) entity.AuthResponse {
	if session == nil {
		return entity.AuthResponse{}
	}
	return entity.AuthResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      session.User.Summary(),
	}
}
