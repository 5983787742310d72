package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"

	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"

	"github.com/google/uuid"
)

// UserService 用户侧能力：学习统计、资料维护、每日签到
type UserService struct {
	Users    *repository.UserRepository
	Attempts *repository.AttemptRepository
	Checkins *repository.CheckinRepository
	Storage  *StorageService
}

func NewUserService(
	users *repository.UserRepository,
	attempts *repository.AttemptRepository,
	checkins *repository.CheckinRepository,
	storage *StorageService,
) *UserService {
	return &UserService{
		Users:    users,
		Attempts: attempts,
		Checkins: checkins,
		Storage:  storage,
	}
}

// UserStats 学习统计
type UserStats struct {
	TopicsStarted    int `json:"topicsStarted"`
	ModulesCompleted int `json:"modulesCompleted"`
	TotalXP          int `json:"totalXp"`
	Level            int `json:"level"`
	CheckinStreak    int `json:"checkinStreak"`
}

// Stats 汇总用户的学习数据，单项读取失败不阻断整体返回
func (s *UserService) Stats(userID uint) (*UserStats, error) {
	stats := &UserStats{Level: 1}

	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, err
	}
	stats.TotalXP = user.XP
	stats.Level = user.Level

	attempts, err := s.Attempts.FindByUser(userID, 0)
	if err == nil {
		stats.TopicsStarted = len(attempts)
		for _, a := range attempts {
			stats.ModulesCompleted += len(a.CompletedIndices())
		}
	}

	if streak, err := s.Checkins.Streak(userID); err == nil {
		stats.CheckinStreak = streak
	}

	return stats, nil
}

// UpdateProfile 修改昵称
func (s *UserService) UpdateProfile(userID uint, name string) (*model.User, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return nil, err
	}
	user.Name = name
	if err := s.Users.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// UploadAvatar 上传头像并更新用户资料
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, file *multipart.FileHeader) (string, error) {
	user, err := s.Users.FindByID(userID)
	if err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	ext := filepath.Ext(file.Filename)
	filename := fmt.Sprintf("avatars/%d_%s%s", userID, uuid.New().String(), ext)

	url, err := s.Storage.Provider.Upload(ctx, filename, src, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}

	user.AvatarURL = url
	if err := s.Users.Update(user); err != nil {
		return "", err
	}
	return url, nil
}

// CheckinResult 签到响应
type CheckinResult struct {
	Checked bool `json:"checked"` // 本次是否新签（当天重复签到为 false）
	Streak  int  `json:"streak"`
}

// Checkin 每日签到，天级去重
func (s *UserService) Checkin(userID uint) (*CheckinResult, error) {
	created, err := s.Checkins.Checkin(userID)
	if err != nil {
		return nil, err
	}
	streak, err := s.Checkins.Streak(userID)
	if err != nil {
		return nil, err
	}
	return &CheckinResult{Checked: created, Streak: streak}, nil
}

// CheckinStats 签到统计
type CheckinStats struct {
	Streak int   `json:"streak"`
	Total  int64 `json:"total"`
	Today  bool  `json:"today"`
}

func (s *UserService) CheckinStats(userID uint) (*CheckinStats, error) {
	streak, err := s.Checkins.Streak(userID)
	if err != nil {
		return nil, err
	}
	total, err := s.Checkins.Count(userID)
	if err != nil {
		return nil, err
	}
	return &CheckinStats{
		Streak: streak,
		Total:  total,
		Today:  s.Checkins.CheckedToday(userID),
	}, nil
}
