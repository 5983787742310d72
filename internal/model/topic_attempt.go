package model

import (
	"encoding/json"
)

// TopicAttempt 一次学习会话：某个用户对某个主题的一轮学习。
// RoadmapData/IntroData 是生成后缓存的 JSON 文本，生成前为空。
// 删除即墓碑化：删除后所有在途和后续的生成任务都必须静默放弃。
type TopicAttempt struct {
	BaseModel
	UserID           uint   `gorm:"index" json:"userId"`
	TopicName        string `gorm:"size:200;not null" json:"topicName"`
	CompletedModules string `gorm:"type:text;default:'[]'" json:"-"`
	RoadmapData      string `gorm:"type:longtext" json:"-"`
	IntroData        string `gorm:"type:longtext" json:"-"`
}

func (TopicAttempt) TableName() string {
	return "topic_attempts"
}

// CompletedIndices 解析已完成模块下标，坏数据按空处理
func (t *TopicAttempt) CompletedIndices() []int {
	var indices []int
	if err := json.Unmarshal([]byte(t.CompletedModules), &indices); err != nil {
		return []int{}
	}
	return indices
}

// Roadmap 解析缓存的顶层路线图，未生成或数据损坏时返回 nil（视同缓存未命中）
func (t *TopicAttempt) Roadmap() []RoadmapNode {
	if t.RoadmapData == "" {
		return nil
	}
	var nodes []RoadmapNode
	if err := json.Unmarshal([]byte(t.RoadmapData), &nodes); err != nil {
		return nil
	}
	if len(nodes) == 0 {
		return nil
	}
	return nodes
}

// Intro 解析缓存的主题引言，数据损坏时返回 nil
func (t *TopicAttempt) Intro() *TopicIntro {
	if t.IntroData == "" {
		return nil
	}
	var intro TopicIntro
	if err := json.Unmarshal([]byte(t.IntroData), &intro); err != nil {
		return nil
	}
	return &intro
}
