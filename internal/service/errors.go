package service

import "errors"

var (
	// 注册校验
	ErrDuplicateEmail = errors.New("email already exists")
	ErrWeakPassword   = errors.New("password must be at least 6 characters long")

	// 登录校验
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountSuspended   = errors.New("account has been suspended")
	ErrAccountInactive    = errors.New("account is inactive")

	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidNotification = errors.New("invalid notification")
)

const minPasswordLength = 6
