package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

type User struct {
	BaseModel
	Email     string    `gorm:"size:150;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"size:200;not null" json:"-"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	Role      UserRole  `gorm:"size:20;default:student" json:"role"`
	XP        int       `gorm:"default:0" json:"xp"`
	Level     int       `gorm:"default:1" json:"level"`
	AvatarURL string    `gorm:"size:500" json:"avatarUrl,omitempty"`
	LastLogin time.Time `json:"lastLogin"`
}

func (User) TableName() string {
	return "users"
}

// LevelForXP 根据经验值计算等级，每100XP升一级
func LevelForXP(xp int) int {
	return xp/100 + 1
}
