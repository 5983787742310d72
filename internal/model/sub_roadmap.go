package model

import (
	"encoding/json"
)

// SubRoadmap 模块下钻后的课程列表缓存，
// 同一会话内以 (attempt_id, module_index) 为唯一键，至多生成一次
type SubRoadmap struct {
	BaseModel
	AttemptID   uint   `gorm:"uniqueIndex:uk_attempt_module;not null" json:"attemptId"`
	ModuleIndex int    `gorm:"uniqueIndex:uk_attempt_module;not null" json:"moduleIndex"`
	Data        string `gorm:"type:longtext" json:"-"`
}

func (SubRoadmap) TableName() string {
	return "sub_roadmaps"
}

// Nodes 解析课程节点列表，数据损坏或为空时返回 nil（视同缓存未命中）
func (s *SubRoadmap) Nodes() []RoadmapNode {
	var nodes []RoadmapNode
	if err := json.Unmarshal([]byte(s.Data), &nodes); err != nil {
		return nil
	}
	if len(nodes) == 0 {
		return nil
	}
	return nodes
}
