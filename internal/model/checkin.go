package model

import "time"

// Checkin 每日打卡记录，用于连续学习天数统计
type Checkin struct {
	BaseModel
	UserID      uint      `gorm:"uniqueIndex:uk_user_date;not null" json:"userId"`
	CheckinDate time.Time `gorm:"type:date;uniqueIndex:uk_user_date;not null" json:"checkinDate"`
}

func (Checkin) TableName() string {
	return "checkins"
}
