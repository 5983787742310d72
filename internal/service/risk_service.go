package service

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"learnai_backend/internal/config"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/logger"

	"github.com/go-co-op/gocron"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const riskFeatureCount = 4 // xp, level, modules_count, days_inactive

// riskModel 逻辑回归模型参数，JSON 持久化到磁盘
type riskModel struct {
	Weights   [riskFeatureCount]float64 `json:"weights"`
	Bias      float64                   `json:"bias"`
	Means     [riskFeatureCount]float64 `json:"means"`
	Stds      [riskFeatureCount]float64 `json:"stds"`
	Samples   int                       `json:"samples"`
	TrainedAt time.Time                 `json:"trainedAt"`
}

func (m *riskModel) predict(features [riskFeatureCount]float64) float64 {
	z := m.Bias
	for i, x := range features {
		z += m.Weights[i] * (x - m.Means[i]) / m.Stds[i]
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// RiskService 流失风险分类器：离线批量训练，在线单行推断。
// 标注规则：不活跃超过 14 天且累计完成模块数少于 2 视为流失。
type RiskService struct {
	Users *repository.UserRepository
	Cfg   config.RiskConfig

	mu        sync.RWMutex
	model     *riskModel
	scheduler *gocron.Scheduler
}

func NewRiskService(users *repository.UserRepository, cfg config.RiskConfig) *RiskService {
	s := &RiskService{Users: users, Cfg: cfg}
	// 磁盘上有历史模型就直接加载，服务重启不丢训练结果
	if model, err := loadModel(cfg.ModelPath); err == nil {
		s.model = model
	}
	return s
}

func loadModel(path string) (*riskModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model riskModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	return &model, nil
}

func riskFeatures(row *repository.RiskRow) [riskFeatureCount]float64 {
	return [riskFeatureCount]float64{
		float64(row.XP),
		float64(row.Level),
		float64(row.ModulesCount),
		float64(row.DaysInactive),
	}
}

func riskLabel(row *repository.RiskRow) float64 {
	if row.DaysInactive > 14 && row.ModulesCount < 2 {
		return 1
	}
	return 0
}

// TrainResult 训练摘要
type TrainResult struct {
	Samples   int       `json:"samples"`
	Positives int       `json:"positives"`
	Epochs    int       `json:"epochs"`
	Loss      float64   `json:"loss"`
	TrainedAt time.Time `json:"trainedAt"`
}

// Train 全量拉取用户特征并重新训练模型，成功后原子替换内存模型并落盘
func (s *RiskService) Train() (*TrainResult, error) {
	rows, err := s.Users.RiskRows()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, util.ErrNoTrainingData
	}

	n := len(rows)
	features := make([][riskFeatureCount]float64, n)
	labels := make([]float64, n)
	positives := 0
	for i := range rows {
		features[i] = riskFeatures(&rows[i])
		labels[i] = riskLabel(&rows[i])
		if labels[i] == 1 {
			positives++
		}
	}

	model := &riskModel{Samples: n, TrainedAt: time.Now()}

	// 特征标准化，零方差特征的权重在梯度下降中自然归零
	for j := 0; j < riskFeatureCount; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += features[i][j]
		}
		mean := sum / float64(n)

		variance := 0.0
		for i := 0; i < n; i++ {
			d := features[i][j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(n))
		if std == 0 {
			std = 1
		}
		model.Means[j] = mean
		model.Stds[j] = std
	}

	epochs := s.Cfg.TrainEpochs
	if epochs <= 0 {
		epochs = 400
	}
	lr := s.Cfg.LearningRate
	if lr <= 0 {
		lr = 0.1
	}

	loss := 0.0
	for epoch := 0; epoch < epochs; epoch++ {
		var gradW [riskFeatureCount]float64
		gradB := 0.0
		loss = 0.0

		for i := 0; i < n; i++ {
			p := model.predict(features[i])
			diff := p - labels[i]
			for j := 0; j < riskFeatureCount; j++ {
				gradW[j] += diff * (features[i][j] - model.Means[j]) / model.Stds[j]
			}
			gradB += diff

			// 交叉熵，夹住概率避免 log(0)
			clamped := math.Min(math.Max(p, 1e-9), 1-1e-9)
			loss += -(labels[i]*math.Log(clamped) + (1-labels[i])*math.Log(1-clamped))
		}

		for j := 0; j < riskFeatureCount; j++ {
			model.Weights[j] -= lr * gradW[j] / float64(n)
		}
		model.Bias -= lr * gradB / float64(n)
		loss /= float64(n)
	}

	if err := s.saveModel(model); err != nil {
		logger.Log.Error("failed to persist dropout model", zap.Error(err))
	}

	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	logger.Log.Info("dropout model retrained",
		zap.Int("samples", n), zap.Int("positives", positives), zap.Float64("loss", loss))

	return &TrainResult{
		Samples:   n,
		Positives: positives,
		Epochs:    epochs,
		Loss:      loss,
		TrainedAt: model.TrainedAt,
	}, nil
}

func (s *RiskService) saveModel(model *riskModel) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Cfg.ModelPath, data, 0644)
}

// RiskAssessment 单用户风险评估结果
type RiskAssessment struct {
	UserID    uint    `json:"userId"`
	RiskScore float64 `json:"riskScore"` // 百分比
	RiskLevel string  `json:"riskLevel"` // High / Medium / Low
}

func riskBand(prob float64) string {
	switch {
	case prob > 0.7:
		return "High"
	case prob > 0.3:
		return "Medium"
	default:
		return "Low"
	}
}

// Predict 单用户流失概率推断
func (s *RiskService) Predict(userID uint) (*RiskAssessment, error) {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()
	if model == nil {
		return nil, util.ErrModelNotTrained
	}

	row, err := s.Users.RiskRowFor(userID)
	if err != nil {
		return nil, err
	}

	prob := model.predict(riskFeatures(row))
	return &RiskAssessment{
		UserID:    userID,
		RiskScore: math.Round(prob*10000) / 100,
		RiskLevel: riskBand(prob),
	}, nil
}

// SeedResult 冷启动样本播种摘要
type SeedResult struct {
	Seeded int `json:"seeded"`
}

// SeedDemoData 写入三类典型学生样本并立即用它们重训模型，
// 用于空库冷启动后马上可以做风险推断
func (s *RiskService) SeedDemoData() (*SeedResult, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	seeded, err := s.Users.SeedRiskCohorts(string(hashed))
	if err != nil {
		return nil, err
	}
	if _, err := s.Train(); err != nil {
		return nil, err
	}
	return &SeedResult{Seeded: seeded}, nil
}

// ExportReport 导出全量学生的风险评估到 xlsx
func (s *RiskService) ExportReport(w io.Writer) error {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()
	if model == nil {
		return util.ErrModelNotTrained
	}

	rows, err := s.Users.RiskRows()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	headers := []string{"User ID", "XP", "Level", "Modules Completed", "Days Inactive", "Risk Score (%)", "Risk Level"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		prob := model.predict(riskFeatures(&row))
		values := []interface{}{
			row.UserID,
			row.XP,
			row.Level,
			row.ModulesCount,
			row.DaysInactive,
			math.Round(prob*10000) / 100,
			riskBand(prob),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	_, err = f.WriteTo(w)
	return err
}

// StartRetrainSchedule 启动夜间定时重训
func (s *RiskService) StartRetrainSchedule() error {
	if s.Cfg.RetrainCron == "" {
		return nil
	}
	s.scheduler = gocron.NewScheduler(time.Local)
	_, err := s.scheduler.Cron(s.Cfg.RetrainCron).Do(func() {
		if _, err := s.Train(); err != nil {
			logger.Log.Warn("scheduled dropout model retrain failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retrain cron %q: %w", s.Cfg.RetrainCron, err)
	}
	s.scheduler.StartAsync()
	return nil
}

// StopRetrainSchedule 停止定时重训
func (s *RiskService) StopRetrainSchedule() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
