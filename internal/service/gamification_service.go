package service

import (
	"context"
	"encoding/json"
	"time"

	"learnai_backend/internal/repository"
	"learnai_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	leaderboardCacheKey = "leaderboard:xp"
	leaderboardCacheTTL = 60 * time.Second
	leaderboardSize     = 20
)

// LeaderboardEntry 排行榜单行
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	XP    int    `json:"xp"`
	Level int    `json:"level"`
}

// GamificationService 经验值排行榜，短 TTL 的 Redis 缓存挡读放大
type GamificationService struct {
	Users *repository.UserRepository
	Redis *redis.Client
}

func NewGamificationService(users *repository.UserRepository, rdb *redis.Client) *GamificationService {
	return &GamificationService{Users: users, Redis: rdb}
}

// Leaderboard 返回按经验值排序的前 20 名。Redis 不可用时直接回源数据库。
func (s *GamificationService) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	if s.Redis != nil {
		val, err := s.Redis.Get(ctx, leaderboardCacheKey).Result()
		if err == nil {
			var entries []LeaderboardEntry
			if json.Unmarshal([]byte(val), &entries) == nil {
				return entries, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("leaderboard cache read failed", zap.Error(err))
		}
	}

	users, err := s.Users.FindTopByXP(leaderboardSize)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:  i + 1,
			Name:  u.Name,
			XP:    u.XP,
			Level: u.Level,
		})
	}

	if s.Redis != nil {
		if data, err := json.Marshal(entries); err == nil {
			if err := s.Redis.Set(ctx, leaderboardCacheKey, data, leaderboardCacheTTL).Err(); err != nil {
				logger.Log.Warn("leaderboard cache write failed", zap.Error(err))
			}
		}
	}

	return entries, nil
}
