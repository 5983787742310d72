package model

// NodeResult 单节课程的测验结果
type NodeResult struct {
	BaseModel
	AttemptID uint   `gorm:"index" json:"attemptId"`
	NodeIndex int    `json:"nodeIndex"`
	NodeTitle string `gorm:"size:200" json:"nodeTitle"`
	Score     int    `json:"score"`
	Passed    bool   `gorm:"default:false" json:"passed"`
}

func (NodeResult) TableName() string {
	return "node_results"
}
