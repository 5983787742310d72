package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// 测验通过一次奖励的经验值
const QuizPassXP = 50
