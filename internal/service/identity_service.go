package service

import (
	"cleancycle/internal/auth"
	"cleancycle/internal/entity"
	"cleancycle/internal/storage"
	"cleancycle/internal/utils"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 持久化键
const (
	KeyAllUsers      = "cleancycle_all_users"
	KeySessionUser   = "cleancycle_user"
	KeySessionToken  = "cleancycle_token"
	KeyNotifications = "cleancycle_notifications"
)

// Session 当前登录用户的完整副本与签名令牌
type Session struct {
	User      entity.User
	Token     string
	ExpiresAt time.Time
}

// IdentityOptions 身份服务配置
type IdentityOptions struct {
	// Delay 登录/注册前的固定等待，不可取消
	Delay              time.Duration
	DefaultCommunityID string
	Seed               bool
	Now                func() time.Time
}

// IdentityService 用户名册与单一会话的持有者
type IdentityService struct {
	mu      sync.Mutex
	store   storage.Storage
	tokens  *auth.Manager
	opts    IdentityOptions
	users   []entity.User
	session *Session
}

// NewIdentityService 从持久化存储加载名册并恢复会话
func NewIdentityService(ctx context.Context, store storage.Storage, tokens *auth.Manager, opts IdentityOptions) (*IdentityService, error) {
	if store == nil {
		return nil, errors.New("identity service requires a storage backend")
	}
	if tokens == nil {
		return nil, errors.New("identity service requires a token manager")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if strings.TrimSpace(opts.DefaultCommunityID) == "" {
		opts.DefaultCommunityID = defaultCommunityID
	}

	s := &IdentityService{
		store:  store,
		tokens: tokens,
		opts:   opts,
	}
	if err := s.loadRoster(ctx); err != nil {
		return nil, err
	}
	if err := s.restoreSession(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IdentityService) loadRoster(ctx context.Context) error {
	raw, err := s.store.Get(ctx, KeyAllUsers)
	if err == nil {
		var users []entity.User
		jsonErr := json.Unmarshal([]byte(raw), &users)
		if jsonErr == nil {
			if users == nil {
				users = []entity.User{}
			}
			s.users = users
			return nil
		}
		logrus.WithError(jsonErr).Warn("stored roster is unreadable, reseeding")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load roster: %w", err)
	}

	users := []entity.User{}
	if s.opts.Seed {
		users, err = SeedUsers()
		if err != nil {
			return err
		}
	}
	if err := s.writeRoster(ctx, users); err != nil {
		return err
	}
	s.users = users
	logrus.WithField("users", len(users)).Info("initialized user roster")
	return nil
}

// restoreSession 仅当用户与令牌都存在且令牌校验通过时恢复会话
func (s *IdentityService) restoreSession(ctx context.Context) error {
	rawUser, userErr := s.store.Get(ctx, KeySessionUser)
	token, tokenErr := s.store.Get(ctx, KeySessionToken)
	for _, err := range []error{userErr, tokenErr} {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load session: %w", err)
		}
	}
	if userErr != nil && tokenErr != nil {
		return nil
	}

	session, err := s.parseSession(rawUser, token, userErr, tokenErr)
	if err != nil {
		logrus.WithError(err).Info("discarding stored session")
		return s.clearSessionKeys(ctx)
	}
	s.session = session
	return nil
}

func (s *IdentityService) parseSession(rawUser, token string, userErr, tokenErr error) (*Session, error) {
	if userErr != nil || tokenErr != nil {
		return nil, errors.New("incomplete session")
	}
	var user entity.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, fmt.Errorf("parse session user: %w", err)
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}
	if claims.UserID != user.ID {
		return nil, errors.New("session token belongs to another user")
	}
	idx := s.indexByID(user.ID)
	if idx < 0 {
		return nil, errors.New("session user no longer exists")
	}

	session := &Session{User: s.users[idx], Token: token}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// Register 注册新用户并建立会话
func (s *IdentityService) Register(ctx context.Context, name, email, password, role string) (*Session, error) {
	s.simulateLatency()

	email = utils.NormalizeEmail(email)
	role = strings.TrimSpace(role)
	if role == "" {
		role = entity.UserRoleUser
	}
	if !entity.ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexByEmail(email) >= 0 {
		return nil, ErrDuplicateEmail
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.opts.Now().UTC()
	user := entity.User{
		ID:           utils.GenerateUniqueID(func(id string) bool { return s.indexByID(id) >= 0 }),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		Status:       entity.UserStatusActive,
		CommunityID:  s.opts.DefaultCommunityID,
		CreatedAt:    now,
		LastLogin:    &now,
		PasswordHash: hash,
	}

	users := make([]entity.User, 0, len(s.users)+1)
	users = append(users, user)
	users = append(users, s.users...)
	if err := s.writeRoster(ctx, users); err != nil {
		return nil, err
	}
	s.users = users

	session, err := s.establishSessionLocked(ctx, user)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return session, nil
}

// Login 校验凭据、刷新 lastLogin 并建立会话
func (s *IdentityService) Login(ctx context.Context, email, password string) (*Session, error) {
	s.simulateLatency()

	email = utils.NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByEmail(email)
	if idx < 0 || password == "" {
		return nil, ErrInvalidCredentials
	}
	found := s.users[idx]
	if err := auth.VerifyPassword(found.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	switch found.Status {
	case entity.UserStatusSuspended:
		return nil, ErrAccountSuspended
	case entity.UserStatusInactive:
		return nil, ErrAccountInactive
	}

	now := s.opts.Now().UTC()
	found.LastLogin = &now
	users := s.replaceAt(idx, found)
	if err := s.writeRoster(ctx, users); err != nil {
		return nil, err
	}
	s.users = users

	return s.establishSessionLocked(ctx, found)
}

// Logout 清除会话，可重复调用
func (s *IdentityService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutLocked(ctx)
}

func (s *IdentityService) logoutLocked(ctx context.Context) error {
	if err := s.clearSessionKeys(ctx); err != nil {
		return err
	}
	s.session = nil
	return nil
}

// UpdateUser 合并字段到指定用户，用户不存在时不做任何事
func (s *IdentityService) UpdateUser(ctx context.Context, id string, updates entity.UserUpdates) error {
	_, err := s.updateUser(ctx, id, func(entity.User) (entity.UserUpdates, error) {
		return updates, nil
	})
	return err
}

// ToggleStatus 在 active 与 suspended 之间切换，inactive 切换为 active
func (s *IdentityService) ToggleStatus(ctx context.Context, id string) (*entity.User, error) {
	return s.updateUser(ctx, id, func(current entity.User) (entity.UserUpdates, error) {
		next := entity.UserStatusSuspended
		if current.Status != entity.UserStatusActive {
			next = entity.UserStatusActive
		}
		return entity.UserUpdates{Status: &next}, nil
	})
}

func (s *IdentityService) updateUser(ctx context.Context, id string, build func(entity.User) (entity.UserUpdates, error)) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(id)
	if idx < 0 {
		return nil, nil
	}
	current := s.users[idx]

	updates, err := build(current)
	if err != nil {
		return nil, err
	}
	if updates.Role != nil && !entity.ValidRole(*updates.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, *updates.Role)
	}
	if updates.Status != nil && !entity.ValidUserStatus(*updates.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *updates.Status)
	}
	if updates.Email != nil {
		email := utils.NormalizeEmail(*updates.Email)
		if email == "" {
			updates.Email = nil
		} else {
			if other := s.indexByEmail(email); other >= 0 && other != idx {
				return nil, ErrDuplicateEmail
			}
			updates.Email = &email
		}
	}

	updated := current
	updates.ApplyTo(&updated)
	if updates.Password != nil {
		if err := checkPassword(*updates.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*updates.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updated.PasswordHash = hash
	}
	now := s.opts.Now().UTC()
	updated.UpdatedAt = &now

	users := s.replaceAt(idx, updated)
	if err := s.writeRoster(ctx, users); err != nil {
		return nil, err
	}
	s.users = users

	if s.session != nil && s.session.User.ID == updated.ID {
		if err := s.writeSessionUser(ctx, updated); err != nil {
			return nil, err
		}
		s.session.User = updated
	}

	result := updated
	return &result, nil
}

// DeleteUser 删除用户；若为当前会话用户则同时登出
func (s *IdentityService) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(id)
	if idx < 0 {
		return nil
	}
	users := make([]entity.User, 0, len(s.users)-1)
	users = append(users, s.users[:idx]...)
	users = append(users, s.users[idx+1:]...)
	if err := s.writeRoster(ctx, users); err != nil {
		return err
	}
	s.users = users

	if s.session != nil && s.session.User.ID == id {
		return s.logoutLocked(ctx)
	}
	return nil
}

func (s *IdentityService) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// CurrentUser 返回会话用户快照，未登录时为 nil
func (s *IdentityService) CurrentUser() *entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	user := s.session.User
	return &user
}

// IsLiveToken 判断令牌是否属于当前会话；登出或被新会话替换后旧令牌不再有效
func (s *IdentityService) IsLiveToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.session.Token), []byte(token)) == 1
}

func (s *IdentityService) CurrentSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	session := *s.session
	return &session
}

func (s *IdentityService) GetUser(id string) (entity.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexByID(id)
	if idx < 0 {
		return entity.User{}, false
	}
	return s.users[idx], true
}

// Users 返回名册副本，顺序为最新在前
func (s *IdentityService) Users() []entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.User, len(s.users))
	copy(out, s.users)
	return out
}

// ListUsers 按条件过滤并分页，按创建时间倒序
func (s *IdentityService) ListUsers(query entity.UserQuery) ([]entity.User, *entity.Meta) {
	query.Normalize()
	all := s.Users()

	filtered := make([]entity.User, 0, len(all))
	for _, user := range all {
		if query.Role != "" && user.Role != query.Role {
			continue
		}
		if query.Status != "" && user.Status != query.Status {
			continue
		}
		if !utils.ContainsFold(user.Name, query.Keyword) && !utils.ContainsFold(user.Email, query.Keyword) {
			continue
		}
		filtered = append(filtered, user)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start, end := query.Window(len(filtered))
	return filtered[start:end], &entity.Meta{
		Page:     query.Page,
		PageSize: query.PageSize,
		Total:    int64(len(filtered)),
	}
}

func (s *IdentityService) Stats() entity.UserStats {
	var stats entity.UserStats
	for _, user := range s.Users() {
		stats.Total++
		if user.IsAdmin() {
			stats.Admins++
		} else {
			stats.Users++
		}
		switch user.Status {
		case entity.UserStatusActive:
			stats.Active++
		case entity.UserStatusInactive:
			stats.Inactive++
		case entity.UserStatusSuspended:
			stats.Suspended++
		}
	}
	return stats
}

func (s *IdentityService) establishSessionLocked(ctx context.Context, user entity.User) (*Session, error) {
	token, expiresAt, err := s.tokens.GenerateToken(&user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	if err := s.writeSessionUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, KeySessionToken, token); err != nil {
		return nil, fmt.Errorf("persist session token: %w", err)
	}

	s.session = &Session{User: user, Token: token, ExpiresAt: expiresAt}
	session := *s.session
	return &session, nil
}

// checkPassword 长度不足或全为空白的密码视为弱密码
func checkPassword(password string) error {
	if len(password) < minPasswordLength || strings.TrimSpace(password) == "" {
		return ErrWeakPassword
	}
	return nil
}

func (s *IdentityService) simulateLatency() {
	if s.opts.Delay > 0 {
		time.Sleep(s.opts.Delay)
	}
}

func (s *IdentityService) writeRoster(ctx context.Context, users []entity.User) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	if err := s.store.Set(ctx, KeyAllUsers, string(data)); err != nil {
		return fmt.Errorf("persist roster: %w", err)
	}
	return nil
}

func (s *IdentityService) writeSessionUser(ctx context.Context, user entity.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	if err := s.store.Set(ctx, KeySessionUser, string(data)); err != nil {
		return fmt.Errorf("persist session user: %w", err)
	}
	return nil
}

func (s *IdentityService) clearSessionKeys(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeySessionUser); err != nil {
		return fmt.Errorf("remove session user: %w", err)
	}
	if err := s.store.Delete(ctx, KeySessionToken); err != nil {
		return fmt.Errorf("remove session token: %w", err)
	}
	return nil
}

func (s *IdentityService) replaceAt(idx int, user entity.User) []entity.User {
	users := make([]entity.User, len(s.users))
	copy(users, s.users)
	users[idx] = user
	return users
}

func (s *IdentityService) indexByID(id string) int {
	for i := range s.users {
		if s.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *IdentityService) indexByEmail(email string) int {
	for i := range s.users {
		if s.users[i].Email == email {
			return i
		}
	}
	return -1
}
