package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.DB.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.DB.Save(user).Error
}

// AddXP 增加经验值并按新总值重算等级
func (r *UserRepository) AddXP(userID uint, delta int) (*model.User, error) {
	var user model.User
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}
		user.XP += delta
		if lv := model.LevelForXP(user.XP); lv > user.Level {
			user.Level = lv
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindTopByXP(limit int) ([]model.User, error) {
	var users []model.User
	err := r.DB.Order("xp DESC").Limit(limit).Find(&users).Error
	return users, err
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).
		Update("last_login", time.Now()).Error
}

// RiskRow 流失风险模型的一行特征
type RiskRow struct {
	UserID       uint
	XP           int
	Level        int
	ModulesCount int
	DaysInactive int
}

// RiskRows 拉取全量用户的风险特征：经验值、等级、累计完成模块数与不活跃天数
func (r *UserRepository) RiskRows() ([]RiskRow, error) {
	var users []model.User
	if err := r.DB.Find(&users).Error; err != nil {
		return nil, err
	}

	rows := make([]RiskRow, 0, len(users))
	for _, u := range users {
		var attempts []model.TopicAttempt
		if err := r.DB.Where("user_id = ?", u.ID).Find(&attempts).Error; err != nil {
			return nil, err
		}

		modules := 0
		for _, a := range attempts {
			modules += len(a.CompletedIndices())
		}

		inactive := 0
		if !u.LastLogin.IsZero() {
			inactive = int(time.Since(u.LastLogin).Hours() / 24)
		}

		rows = append(rows, RiskRow{
			UserID:       u.ID,
			XP:           u.XP,
			Level:        u.Level,
			ModulesCount: modules,
			DaysInactive: inactive,
		})
	}

	return rows, nil
}

// SeedRiskCohorts 写入三类典型学生样本，供风险模型冷启动训练。
// 邮箱统一使用 @fake.com 后缀，重复播种前会清掉旧样本。
// 返回写入的用户数。
func (r *UserRepository) SeedRiskCohorts(hashedPassword string) (int, error) {
	type cohort struct {
		prefix  string
		count   int
		xp      func(i int) int
		level   func(i int) int
		days    func(i int) int
		modules []int
	}

	cohorts := []cohort{
		// 高活跃：近两天登录，多模块完成
		{"achiever", 20,
			func(i int) int { return 500 + i*75 },
			func(i int) int { return 5 + i%5 },
			func(i int) int { return i % 3 },
			[]int{0, 1, 2, 3}},
		// 挣扎：一周未登录，卡在第一个模块
		{"struggler", 20,
			func(i int) int { return 50 + i*12 },
			func(i int) int { return 1 + i%3 },
			func(i int) int { return 3 + i%6 },
			[]int{0}},
		// 流失：不活跃超两周，零进度
		{"dropout", 10,
			func(i int) int { return i * 10 },
			func(i int) int { return 1 },
			func(i int) int { return 15 + i },
			nil},
	}

	seeded := 0
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var old []model.User
		if err := tx.Where("email LIKE ?", "%@fake.com").Find(&old).Error; err != nil {
			return err
		}
		for _, u := range old {
			if err := tx.Unscoped().Where("user_id = ?", u.ID).Delete(&model.TopicAttempt{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Delete(&u).Error; err != nil {
				return err
			}
		}

		for _, c := range cohorts {
			for i := 0; i < c.count; i++ {
				user := &model.User{
					Email:     fmt.Sprintf("%s%d@fake.com", c.prefix, i),
					Password:  hashedPassword,
					Name:      fmt.Sprintf("%s %d", c.prefix, i),
					XP:        c.xp(i),
					Level:     c.level(i),
					LastLogin: time.Now().AddDate(0, 0, -c.days(i)),
				}
				if err := tx.Create(user).Error; err != nil {
					return err
				}

				modules, err := json.Marshal(c.modules)
				if err != nil {
					return err
				}
				if c.modules == nil {
					modules = []byte("[]")
				}
				attempt := &model.TopicAttempt{
					UserID:           user.ID,
					TopicName:        "Python 基础",
					CompletedModules: string(modules),
				}
				if err := tx.Create(attempt).Error; err != nil {
					return err
				}
				seeded++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seeded, nil
}

// RiskRowFor 单个用户的风险特征，用户不存在时返回 gorm.ErrRecordNotFound
func (r *UserRepository) RiskRowFor(userID uint) (*RiskRow, error) {
	var user model.User
	if err := r.DB.First(&user, userID).Error; err != nil {
		return nil, err
	}

	var attempts []model.TopicAttempt
	if err := r.DB.Where("user_id = ?", user.ID).Find(&attempts).Error; err != nil {
		return nil, err
	}

	modules := 0
	for _, a := range attempts {
		modules += len(a.CompletedIndices())
	}

	inactive := 0
	if !user.LastLogin.IsZero() {
		inactive = int(time.Since(user.LastLogin).Hours() / 24)
	}

	return &RiskRow{
		UserID:       user.ID,
		XP:           user.XP,
		Level:        user.Level,
		ModulesCount: modules,
		DaysInactive: inactive,
	}, nil
}
