package service

import (
	"errors"
	"strings"
	"testing"

	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"

	"gorm.io/gorm"
)

// fakeTopicGenerator 主题级生成桩
type fakeTopicGenerator struct {
	introErr    error
	roadmapErr  error
	remedialErr error
}

func (f *fakeTopicGenerator) GenerateTopicIntro(topic string) (*model.TopicIntro, error) {
	if f.introErr != nil {
		return nil, f.introErr
	}
	return &model.TopicIntro{Topic: topic, Intro: "**简介**", Hook: "一句话"}, nil
}

func (f *fakeTopicGenerator) GenerateRoadmap(topic string) ([]model.RoadmapNode, error) {
	if f.roadmapErr != nil {
		return nil, f.roadmapErr
	}
	return []model.RoadmapNode{{Title: "Module 1: 基础"}, {Title: "Module 2: 进阶"}}, nil
}

func (f *fakeTopicGenerator) GenerateRemedialLesson(topic, nodeTitle string, failedConcepts []string) (*model.LessonContent, error) {
	if f.remedialErr != nil {
		return nil, f.remedialErr
	}
	return &model.LessonContent{Content: "## 简化版 " + nodeTitle, Quiz: []model.QuizQuestion{}}, nil
}

type topicFixture struct {
	db      *gorm.DB
	gen     *fakeTopicGenerator
	lessGen *fakeGenerator
	users   *repository.UserRepository
	lessons *repository.LessonRepository
	results *repository.NodeResultRepository
	svc     *TopicService
	user    *model.User
}

func newTopicFixture(t *testing.T) *topicFixture {
	t.Helper()
	db := newTestDB(t)
	user := newTestUser(t, db)

	attempts := repository.NewAttemptRepository(db)
	lessons := repository.NewLessonRepository(db)
	subMaps := repository.NewSubRoadmapRepository(db)
	results := repository.NewNodeResultRepository(db)
	users := repository.NewUserRepository(db)

	lessGen := &fakeGenerator{
		subMapNodes: []model.RoadmapNode{{Title: "第一课"}},
	}
	orch := NewOrchestrator(lessGen, &fakeImages{}, attempts, lessons, subMaps, config.PrefetchConfig{})
	t.Cleanup(orch.Stop)

	gen := &fakeTopicGenerator{}
	svc := NewTopicService(attempts, lessons, results, users, gen, orch)

	return &topicFixture{
		db:      db,
		gen:     gen,
		lessGen: lessGen,
		users:   users,
		lessons: lessons,
		results: results,
		svc:     svc,
		user:    user,
	}
}

func TestStartTopicCreatesAttemptWithIntro(t *testing.T) {
	f := newTopicFixture(t)

	result, err := f.svc.StartTopic(f.user.ID, "数据结构")
	if err != nil {
		t.Fatalf("StartTopic: %v", err)
	}
	if result.AttemptID == 0 {
		t.Fatalf("attempt id not assigned")
	}
	if result.Intro == nil || result.Intro.Topic != "数据结构" {
		t.Errorf("intro missing: %+v", result.Intro)
	}

	roadmap, err := f.svc.GetRoadmap(result.AttemptID)
	if err != nil {
		t.Fatalf("GetRoadmap: %v", err)
	}
	if roadmap.Intro == nil {
		t.Errorf("intro was not cached on the attempt")
	}
}

func TestStartTopicSurvivesIntroFailure(t *testing.T) {
	f := newTopicFixture(t)
	f.gen.introErr = errors.New("upstream down")

	result, err := f.svc.StartTopic(f.user.ID, "数据结构")
	if err != nil {
		t.Fatalf("StartTopic should not fail on intro failure: %v", err)
	}
	if result.Intro == nil || result.Intro.Topic != "数据结构" {
		t.Errorf("fallback intro missing: %+v", result.Intro)
	}
}

func TestGetRoadmapGeneratesOnceAndCaches(t *testing.T) {
	f := newTopicFixture(t)
	start, _ := f.svc.StartTopic(f.user.ID, "数据结构")

	first, err := f.svc.GetRoadmap(start.AttemptID)
	if err != nil {
		t.Fatalf("GetRoadmap: %v", err)
	}
	if len(first.Roadmap) != 2 {
		t.Fatalf("roadmap len = %d, want 2", len(first.Roadmap))
	}

	// 第二次读取走缓存：即使生成端故障也能返回
	f.gen.roadmapErr = errors.New("upstream down")
	second, err := f.svc.GetRoadmap(start.AttemptID)
	if err != nil {
		t.Fatalf("GetRoadmap (cached): %v", err)
	}
	if len(second.Roadmap) != 2 {
		t.Errorf("cached roadmap len = %d, want 2", len(second.Roadmap))
	}
}

func TestGetRoadmapUnknownAttempt(t *testing.T) {
	f := newTopicFixture(t)

	if _, err := f.svc.GetRoadmap(99999); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected record-not-found, got %v", err)
	}
}

func TestSubmitQuizPassAwardsXP(t *testing.T) {
	f := newTopicFixture(t)
	start, _ := f.svc.StartTopic(f.user.ID, "数据结构")

	// 先生成课程再提交测验
	if _, err := f.svc.GetNode(start.AttemptID, 0, "第一课"); err != nil {
		t.Fatalf("GetNode: %v", err)
	}

	result, err := f.svc.SubmitQuiz(start.AttemptID, 0, 0, "第一课", 3, true, nil)
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if result.XPGained != util.QuizPassXP {
		t.Errorf("xp gained = %d, want %d", result.XPGained, util.QuizPassXP)
	}
	if result.TotalXP != util.QuizPassXP {
		t.Errorf("total xp = %d, want %d", result.TotalXP, util.QuizPassXP)
	}
	if result.Level != 1 {
		t.Errorf("level = %d, want 1 (50xp)", result.Level)
	}
	if result.RemedialLesson != nil {
		t.Errorf("pass should not produce a remedial lesson")
	}

	lesson, err := f.lessons.Get(start.AttemptID, "第一课")
	if err != nil {
		t.Fatalf("read lesson: %v", err)
	}
	if !lesson.Completed {
		t.Errorf("lesson not marked complete")
	}

	results, _ := f.results.ListByAttempt(start.AttemptID)
	if len(results) != 1 || !results[0].Passed {
		t.Errorf("node result not recorded: %+v", results)
	}
}

func TestSubmitQuizLevelUpAtHundredXP(t *testing.T) {
	f := newTopicFixture(t)
	start, _ := f.svc.StartTopic(f.user.ID, "数据结构")

	if _, err := f.svc.SubmitQuiz(start.AttemptID, 0, -1, "第一课", 3, true, nil); err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	result, err := f.svc.SubmitQuiz(start.AttemptID, 1, -1, "第二课", 3, true, nil)
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if result.TotalXP != 100 {
		t.Errorf("total xp = %d, want 100", result.TotalXP)
	}
	if result.Level != 2 {
		t.Errorf("level = %d, want 2 at 100xp", result.Level)
	}
}

func TestSubmitQuizFailProducesRemedialLesson(t *testing.T) {
	f := newTopicFixture(t)
	start, _ := f.svc.StartTopic(f.user.ID, "数据结构")

	result, err := f.svc.SubmitQuiz(start.AttemptID, 0, -1, "第一课", 1, false, []string{"递归"})
	if err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	if result.XPGained != 0 {
		t.Errorf("fail should not award xp, got %d", result.XPGained)
	}
	if result.RemedialLesson == nil || !strings.Contains(result.RemedialLesson.Content, "简化版") {
		t.Errorf("remedial lesson missing: %+v", result.RemedialLesson)
	}

	user, _ := f.users.FindByID(f.user.ID)
	if user.XP != 0 {
		t.Errorf("user xp = %d after failed quiz, want 0", user.XP)
	}
}

func TestSubmitQuizRecordsModuleProgress(t *testing.T) {
	f := newTopicFixture(t)
	start, _ := f.svc.StartTopic(f.user.ID, "数据结构")

	if _, err := f.svc.SubmitQuiz(start.AttemptID, 0, 1, "第一课", 3, true, nil); err != nil {
		t.Fatalf("SubmitQuiz: %v", err)
	}
	// 重复提交同一模块，进度幂等
	if _, err := f.svc.SubmitQuiz(start.AttemptID, 0, 1, "第一课", 3, true, nil); err != nil {
		t.Fatalf("SubmitQuiz (repeat): %v", err)
	}

	roadmap, _ := f.svc.GetRoadmap(start.AttemptID)
	if len(roadmap.CompletedIndices) != 1 || roadmap.CompletedIndices[0] != 1 {
		t.Errorf("completed indices = %v, want [1]", roadmap.CompletedIndices)
	}
}

func TestDeleteTopicEnforcesOwnership(t *testing.T) {
	f := newTopicFixture(t)
	other := newTestUser(t, f.db)
	start, _ := f.svc.StartTopic(f.user.ID, "数据结构")

	if err := f.svc.DeleteTopic(other.ID, start.AttemptID); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("foreign delete should fail with not-found, got %v", err)
	}

	if err := f.svc.DeleteTopic(f.user.ID, start.AttemptID); err != nil {
		t.Fatalf("DeleteTopic: %v", err)
	}
	if _, err := f.svc.GetRoadmap(start.AttemptID); err == nil {
		t.Errorf("deleted attempt still readable")
	}
}

func TestHistoryListsOwnAttempts(t *testing.T) {
	f := newTopicFixture(t)
	other := newTestUser(t, f.db)

	f.svc.StartTopic(f.user.ID, "主题甲")
	f.svc.StartTopic(f.user.ID, "主题乙")
	f.svc.StartTopic(other.ID, "别人的主题")

	attempts, err := f.svc.History(f.user.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(attempts) != 2 {
		t.Errorf("history len = %d, want 2", len(attempts))
	}
	for _, a := range attempts {
		if a.UserID != f.user.ID {
			t.Errorf("history leaked attempt of user %d", a.UserID)
		}
	}
}
