package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAttemptDeleted     = errors.New("attempt deleted")
	ErrModelNotTrained    = errors.New("dropout model not trained yet")
	ErrNoTrainingData     = errors.New("no training data")
)
