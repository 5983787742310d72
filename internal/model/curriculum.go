package model

// RoadmapNode 路线图节点：顶层模块或模块内的课程
type RoadmapNode struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords,omitempty"`
}

// QuizQuestion 测验题。CorrectAnswer 持久化前必须归一化为选项原文，
// 不允许存储 "A"/"B" 之类的裸字母
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// LessonContent 单节课程生成产物
type LessonContent struct {
	Content  string         `json:"content"`
	Quiz     []QuizQuestion `json:"quiz"`
	ImageURL string         `json:"image_url,omitempty"`
}

// TopicIntro 主题引言
type TopicIntro struct {
	Topic string `json:"topic"`
	Intro string `json:"intro"`
	Hook  string `json:"hook,omitempty"`
}
