package model

import (
	"encoding/json"
)

// Lesson 已生成的课程内容缓存。
// 同一会话内以 (attempt_id, node_title) 为唯一键；NodeIndex 仅作展示与错峰排序用。
type Lesson struct {
	BaseModel
	AttemptID uint   `gorm:"uniqueIndex:uk_attempt_title;not null" json:"attemptId"`
	NodeIndex int    `gorm:"default:0" json:"nodeIndex"`
	NodeTitle string `gorm:"size:200;uniqueIndex:uk_attempt_title;not null" json:"nodeTitle"`
	Content   string `gorm:"type:longtext" json:"content"`
	ImageURL  string `gorm:"size:1000" json:"imageUrl,omitempty"`
	QuizData  string `gorm:"type:longtext" json:"-"`
	Completed bool   `gorm:"default:false" json:"completed"`
}

func (Lesson) TableName() string {
	return "module_lessons"
}

// Quiz 解析缓存的测验题，数据损坏时返回 nil（调用方视同缓存未命中）
func (l *Lesson) Quiz() []QuizQuestion {
	if l.QuizData == "" {
		return []QuizQuestion{}
	}
	var quiz []QuizQuestion
	if err := json.Unmarshal([]byte(l.QuizData), &quiz); err != nil {
		return nil
	}
	return quiz
}

// ToContent 转换为接口层返回的内容结构；QuizData 损坏时返回 nil
func (l *Lesson) ToContent() *LessonContent {
	quiz := l.Quiz()
	if quiz == nil {
		return nil
	}
	return &LessonContent{
		Content:  l.Content,
		Quiz:     quiz,
		ImageURL: l.ImageURL,
	}
}
