package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"cleancycle/internal/auth"
	"cleancycle/internal/config"
	"cleancycle/internal/entity"
	"cleancycle/internal/service"
	"cleancycle/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	auth.SetBcryptCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

type testServer struct {
	router  *gin.Engine
	handler *HTTPHandler
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Config{
		JWTSecret:            "test-secret",
		JWTIssuer:            "cleancycle",
		JWTExpirationMinutes: 60,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ctx := context.Background()
	store := storage.NewMemoryStorage()
	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry())
	require.NoError(t, err)
	identity, err := service.NewIdentityService(ctx, store, tokens, service.IdentityOptions{Seed: true})
	require.NoError(t, err)
	notifications, err := service.NewNotificationService(ctx, store, service.NotificationOptions{Seed: true})
	require.NoError(t, err)

	handler, err := NewHTTPHandler(cfg, tokens, identity, notifications)
	require.NoError(t, err)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, handler: handler}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp entity.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     "Jane Roe",
		"email":    "jane@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	registered := decode[entity.AuthResponse](t, w)
	assert.Equal(t, entity.UserRoleUser, registered.User.Role)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = s.do(t, http.MethodGet, "/api/auth/me", registered.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[entity.UserSummary](t, w)
	assert.Equal(t, "jane@example.com", me.Email)

	w = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     "Jane Again",
		"email":    "jane@example.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeEmailExists, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     "Weak",
		"email":    "weak@example.com",
		"password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeWeakPassword, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     "Blank",
		"email":    "blank@example.com",
		"password": "      ",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeWeakPassword, decode[APIError](t, w).Code)
}

func TestAdminSelfRegistration(t *testing.T) {
	payload := gin.H{"name": "Boss", "email": "boss@example.com", "password": "secret1", "role": "admin"}

	closed := newTestServer(t, nil)
	w := closed.do(t, http.MethodPost, "/api/auth/register", "", payload)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodeRegistrationClosed, decode[APIError](t, w).Code)

	open := newTestServer(t, func(cfg *config.Config) { cfg.AllowAdminRegistration = true })
	w = open.do(t, http.MethodPost, "/api/auth/register", "", payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, entity.UserRoleAdmin, decode[entity.AuthResponse](t, w).User.Role)
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "admin@cleancycle.com", "password": "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeInvalidCredentials, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "admin@cleancycle.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "user@cleancycle.com", "user123")
	require.True(t, s.handler.identity.IsAuthenticated())

	w := s.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, s.handler.identity.IsAuthenticated())

	// 登出后令牌虽未过期也不能再使用
	w = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeSessionExpired, decode[APIError](t, w).Code)
	w = s.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewLoginReplacesSessionToken(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.login(t, "user@cleancycle.com", "user123")
	second := s.login(t, "admin@cleancycle.com", "admin123")

	w := s.do(t, http.MethodGet, "/api/auth/me", first, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeSessionExpired, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodGet, "/api/auth/me", second, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", decode[entity.UserSummary](t, w).ID)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/notifications", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeUnauthorized, decode[APIError](t, w).Code)

	userToken := s.login(t, "john.doe@gmail.com", "password123")
	w = s.do(t, http.MethodGet, "/api/notifications", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 会话用户被停用后，其令牌立即被拒绝
	suspended, err := s.handler.identity.ToggleStatus(context.Background(), "user2")
	require.NoError(t, err)
	require.Equal(t, entity.UserStatusSuspended, suspended.Status)
	w = s.do(t, http.MethodGet, "/api/notifications", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodeAccountSuspended, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "john.doe@gmail.com", "password": "password123"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodeAccountSuspended, decode[APIError](t, w).Code)

	adminToken := s.login(t, "admin@cleancycle.com", "admin123")
	w = s.do(t, http.MethodPost, "/api/users/user2/toggle-status", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.UserStatusActive, decode[entity.UserSummary](t, w).Status)

	w = s.do(t, http.MethodDelete, "/api/users/user2", adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "john.doe@gmail.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeInvalidCredentials, decode[APIError](t, w).Code)
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "user@cleancycle.com", "user123")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/users/stats"},
		{http.MethodPut, "/api/users/user2"},
		{http.MethodPost, "/api/users/user2/toggle-status"},
		{http.MethodDelete, "/api/users/user2"},
		{http.MethodGet, "/api/admin/notifications"},
		{http.MethodGet, "/api/admin/notifications/stats"},
		{http.MethodPost, "/api/notifications"},
		{http.MethodPut, "/api/notifications/1"},
		{http.MethodPost, "/api/notifications/1/send"},
		{http.MethodDelete, "/api/notifications/1"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := s.do(t, route.method, route.path, token, gin.H{})
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "manager@cleancycle.com", "manager123")

	w := s.do(t, http.MethodGet, "/api/users?role=admin", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[entity.UserListResponse](t, w)
	assert.Len(t, list.Users, 2)
	assert.Equal(t, int64(2), list.Meta.Total)

	w = s.do(t, http.MethodGet, "/api/users/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6, decode[entity.UserStats](t, w).Total)

	w = s.do(t, http.MethodPut, "/api/users/user3", token, gin.H{"name": "Emma W.", "role": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[entity.UserSummary](t, w)
	assert.Equal(t, "Emma W.", updated.Name)
	assert.Equal(t, entity.UserRoleAdmin, updated.Role)
	assert.NotNil(t, updated.UpdatedAt)

	w = s.do(t, http.MethodPut, "/api/users/user3", token, gin.H{"status": "banned"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidStatus, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodPut, "/api/users/missing", token, gin.H{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/users/manager", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeCannotDeleteSelf, decode[APIError](t, w).Code)
}

func TestUpdateProfile(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t, "user@cleancycle.com", "user123")

	w := s.do(t, http.MethodPut, "/api/auth/update-profile", token, gin.H{"name": "John S.", "password": "brand-new"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "John S.", decode[entity.UserSummary](t, w).Name)
	assert.Equal(t, "John S.", s.handler.identity.CurrentUser().Name)

	fresh := s.login(t, "user@cleancycle.com", "brand-new")

	w = s.do(t, http.MethodPut, "/api/auth/update-profile", token, gin.H{"name": "Stale"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/auth/update-profile", fresh, gin.H{"email": "admin@cleancycle.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNotificationLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	userToken := s.login(t, "user@cleancycle.com", "user123")

	w := s.do(t, http.MethodGet, "/api/notifications/unread-count", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[map[string]int](t, w)["count"])

	// 同一时间只有一个会话，管理员与用户轮流登录
	adminToken := s.login(t, "admin@cleancycle.com", "admin123")
	w = s.do(t, http.MethodPost, "/api/notifications", adminToken, gin.H{
		"title":    "Glass collection",
		"message":  "Glass is collected on Friday.",
		"priority": "urgent",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[entity.Notification](t, w)
	assert.Equal(t, entity.NotificationStatusSent, created.Status)
	assert.Equal(t, "Admin User", created.CreatedBy)

	userToken = s.login(t, "user@cleancycle.com", "user123")
	w = s.do(t, http.MethodGet, "/api/notifications/unread-count", userToken, nil)
	assert.Equal(t, 3, decode[map[string]int](t, w)["count"])

	w = s.do(t, http.MethodGet, "/api/notifications/stats", userToken, nil)
	assert.Equal(t, entity.ViewerNotificationStats{Total: 5, Unread: 3, Urgent: 1}, decode[entity.ViewerNotificationStats](t, w))

	w = s.do(t, http.MethodPost, "/api/notifications/"+created.ID+"/read", userToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodPost, "/api/notifications/"+created.ID+"/read", userToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/notifications?read=unread", userToken, nil)
	unread := decode[entity.NotificationListResponse](t, w)
	assert.Equal(t, 2, unread.Total)

	w = s.do(t, http.MethodPost, "/api/notifications/read-all", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[map[string]int](t, w)["marked"])

	// 用户看不到仅管理员可见的通知
	w = s.do(t, http.MethodPost, "/api/notifications/5/read", userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/api/notifications", userToken, nil)
	for _, n := range decode[entity.NotificationListResponse](t, w).Notifications {
		assert.NotEqual(t, entity.NotificationTargetAdmins, n.Target)
	}

	adminToken = s.login(t, "admin@cleancycle.com", "admin123")
	w = s.do(t, http.MethodDelete, "/api/notifications/"+created.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/notifications/"+created.ID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotificationNotFound, decode[APIError](t, w).Code)
}

func TestRescheduleAndSendOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	adminToken := s.login(t, "admin@cleancycle.com", "admin123")

	w := s.do(t, http.MethodPost, "/api/notifications", adminToken, gin.H{"title": "Draft", "draft": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	draft := decode[entity.Notification](t, w)
	assert.Equal(t, entity.NotificationStatusDraft, draft.Status)

	future := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	w = s.do(t, http.MethodPut, "/api/notifications/"+draft.ID, adminToken, gin.H{"scheduledDate": future})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scheduled := decode[entity.Notification](t, w)
	assert.Equal(t, entity.NotificationStatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledDate)
	assert.True(t, future.Equal(*scheduled.ScheduledDate))

	w = s.do(t, http.MethodGet, "/api/admin/notifications?status=scheduled", adminToken, nil)
	assert.Equal(t, 1, decode[entity.NotificationListResponse](t, w).Total)

	w = s.do(t, http.MethodPost, "/api/notifications/"+draft.ID+"/send", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sent := decode[entity.Notification](t, w)
	assert.Equal(t, entity.NotificationStatusSent, sent.Status)
	assert.NotNil(t, sent.SentDate)
	assert.Nil(t, sent.ScheduledDate)

	w = s.do(t, http.MethodGet, "/api/admin/notifications/stats", adminToken, nil)
	assert.Equal(t, 6, decode[entity.NotificationStats](t, w).Sent)

	w = s.do(t, http.MethodPut, "/api/notifications/"+draft.ID, adminToken, gin.H{"type": "alarm"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidNotification, decode[APIError](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/notifications/missing/send", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSentNotificationsReachVisibleSubscribers(t *testing.T) {
	s := newTestServer(t, nil)
	userEvents := make(chan sseMessage, 4)
	adminEvents := make(chan sseMessage, 4)
	s.handler.registerSSEClient("user1", userEvents)
	s.handler.registerSSEClient("admin", adminEvents)
	defer s.handler.unregisterSSEClient("user1", userEvents)
	defer s.handler.unregisterSSEClient("admin", adminEvents)

	ctx := context.Background()
	_, err := s.handler.notifications.Create(ctx, entity.NotificationDraft{Title: "Admins only", Target: entity.NotificationTargetAdmins})
	require.NoError(t, err)
	_, err = s.handler.notifications.Create(ctx, entity.NotificationDraft{Title: "Everyone"})
	require.NoError(t, err)

	msg := <-adminEvents
	assert.Equal(t, eventNotificationSent, msg.event)
	assert.Equal(t, "Admins only", msg.data.(entity.Notification).Title)
	msg = <-adminEvents
	assert.Equal(t, "Everyone", msg.data.(entity.Notification).Title)

	msg = <-userEvents
	assert.Equal(t, "Everyone", msg.data.(entity.Notification).Title)
	select {
	case extra := <-userEvents:
		t.Fatalf("unexpected event for user: %+v", extra)
	default:
	}
}
