package repository

import (
	"time"

	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

type CheckinRepository struct {
	DB *gorm.DB
}

func NewCheckinRepository(db *gorm.DB) *CheckinRepository {
	return &CheckinRepository{DB: db}
}

// Checkin 记录当日打卡，同一天重复打卡返回 false
func (r *CheckinRepository) Checkin(userID uint) (bool, error) {
	today := truncateDay(time.Now())

	var count int64
	if err := r.DB.Model(&model.Checkin{}).
		Where("user_id = ? AND checkin_date = ?", userID, today).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	err := r.DB.Create(&model.Checkin{UserID: userID, CheckinDate: today}).Error
	if err != nil {
		if IsDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Streak 截至今天（或昨天）的连续打卡天数
func (r *CheckinRepository) Streak(userID uint) (int, error) {
	var checkins []model.Checkin
	err := r.DB.Where("user_id = ?", userID).
		Order("checkin_date DESC").Limit(366).Find(&checkins).Error
	if err != nil {
		return 0, err
	}
	if len(checkins) == 0 {
		return 0, nil
	}

	today := truncateDay(time.Now())
	cursor := today
	// 今天还没打卡时，从昨天起算仍视为连续
	if !sameDay(checkins[0].CheckinDate, today) {
		cursor = today.AddDate(0, 0, -1)
	}

	streak := 0
	for _, c := range checkins {
		if sameDay(c.CheckinDate, cursor) {
			streak++
			cursor = cursor.AddDate(0, 0, -1)
			continue
		}
		break
	}
	return streak, nil
}

// CheckedToday 当天是否已打卡
func (r *CheckinRepository) CheckedToday(userID uint) bool {
	var count int64
	r.DB.Model(&model.Checkin{}).
		Where("user_id = ? AND checkin_date = ?", userID, truncateDay(time.Now())).
		Count(&count)
	return count > 0
}

func (r *CheckinRepository) Count(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Checkin{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
