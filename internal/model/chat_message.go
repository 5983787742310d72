package model

// ChatMessage 课程节点下的答疑对话消息
type ChatMessage struct {
	BaseModel
	AttemptID uint   `gorm:"index:idx_attempt_node" json:"attemptId"`
	NodeTitle string `gorm:"size:200;index:idx_attempt_node" json:"nodeTitle"`
	Sender    string `gorm:"size:10;not null" json:"sender"` // user 或 ai
	Message   string `gorm:"type:text" json:"text"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
