package service

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"

	"gorm.io/gorm"
)

// fakeGenerator 可编程的内容生成桩，记录调用顺序
type fakeGenerator struct {
	mu          sync.Mutex
	calls       []string
	lessonCalls int32

	lessonErr    error
	lessonShort  bool
	lessonDelay  time.Duration
	subMapErr    error
	subMapNodes  []model.RoadmapNode
	roadmapNodes []model.RoadmapNode
}

func (f *fakeGenerator) record(kind, title string) {
	f.mu.Lock()
	f.calls = append(f.calls, kind+":"+title)
	f.mu.Unlock()
}

func (f *fakeGenerator) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeGenerator) GenerateRoadmap(topic string) ([]model.RoadmapNode, error) {
	f.record("roadmap", topic)
	return f.roadmapNodes, nil
}

func (f *fakeGenerator) GenerateSubRoadmap(topic, moduleTitle string) ([]model.RoadmapNode, error) {
	f.record("submap", moduleTitle)
	if f.subMapErr != nil {
		return nil, f.subMapErr
	}
	return f.subMapNodes, nil
}

func (f *fakeGenerator) GenerateLesson(topic, nodeTitle string) (*model.LessonContent, error) {
	atomic.AddInt32(&f.lessonCalls, 1)
	f.record("lesson", nodeTitle)
	if f.lessonDelay > 0 {
		time.Sleep(f.lessonDelay)
	}
	if f.lessonErr != nil {
		return nil, f.lessonErr
	}
	content := strings.Repeat("内容", 100)
	if f.lessonShort {
		content = "太短"
	}
	return &model.LessonContent{
		Content: content,
		Quiz: []model.QuizQuestion{{
			Question:      "什么是 " + nodeTitle + "?",
			Options:       []string{"甲", "乙", "丙", "丁"},
			CorrectAnswer: "甲",
			Explanation:   "略",
		}},
	}, nil
}

type fakeImages struct{ url string }

func (f *fakeImages) Find(topic, subtopic string) string { return f.url }

type orchFixture struct {
	db       *gorm.DB
	gen      *fakeGenerator
	attempts *repository.AttemptRepository
	lessons  *repository.LessonRepository
	subMaps  *repository.SubRoadmapRepository
	orch     *Orchestrator
	attempt  *model.TopicAttempt
}

func newOrchFixture(t *testing.T, cfg config.PrefetchConfig) *orchFixture {
	t.Helper()
	db := newTestDB(t)
	user := newTestUser(t, db)
	attempt := newTestAttempt(t, db, user.ID, "操作系统")

	gen := &fakeGenerator{}
	attempts := repository.NewAttemptRepository(db)
	lessons := repository.NewLessonRepository(db)
	subMaps := repository.NewSubRoadmapRepository(db)

	orch := NewOrchestrator(gen, &fakeImages{url: "https://img.test/x.png"}, attempts, lessons, subMaps, cfg)
	orch.sleep = func(time.Duration) {}
	t.Cleanup(orch.Stop)

	return &orchFixture{
		db:       db,
		gen:      gen,
		attempts: attempts,
		lessons:  lessons,
		subMaps:  subMaps,
		orch:     orch,
		attempt:  attempt,
	}
}

func TestEnsureLessonCachesResult(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})

	first, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "进程与线程")
	if err != nil {
		t.Fatalf("EnsureLesson: %v", err)
	}
	if first == nil || first.Content == "" {
		t.Fatalf("expected generated content, got %+v", first)
	}
	if first.ImageURL != "https://img.test/x.png" {
		t.Errorf("image url not attached: %q", first.ImageURL)
	}

	second, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "进程与线程")
	if err != nil {
		t.Fatalf("EnsureLesson (cached): %v", err)
	}
	if second.Content != first.Content {
		t.Errorf("cached content differs from generated content")
	}
	if got := atomic.LoadInt32(&f.gen.lessonCalls); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}

	count, _ := f.lessons.CountByAttempt(f.attempt.ID)
	if count != 1 {
		t.Errorf("lesson rows = %d, want 1", count)
	}
}

func TestEnsureLessonConcurrentCallsGenerateOnce(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})
	f.gen.lessonDelay = 30 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "虚拟内存"); err != nil {
				t.Errorf("EnsureLesson: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&f.gen.lessonCalls); got != 1 {
		t.Errorf("generator called %d times under concurrency, want 1", got)
	}
	count, _ := f.lessons.CountByAttempt(f.attempt.ID)
	if count != 1 {
		t.Errorf("lesson rows = %d, want 1", count)
	}
}

func TestEnsureLessonTombstonedAttempt(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})

	if err := f.attempts.DeleteCascade(f.attempt.ID); err != nil {
		t.Fatalf("delete attempt: %v", err)
	}

	content, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "调度算法")
	if err != nil {
		t.Fatalf("EnsureLesson: %v", err)
	}
	if content != nil {
		t.Errorf("tombstoned attempt should yield nil, got %+v", content)
	}
	if got := atomic.LoadInt32(&f.gen.lessonCalls); got != 0 {
		t.Errorf("generator called %d times for tombstoned attempt", got)
	}
	count, _ := f.lessons.CountByAttempt(f.attempt.ID)
	if count != 0 {
		t.Errorf("lesson rows = %d after tombstone, want 0", count)
	}
}

func TestEnsureLessonPlaceholderAfterRetries(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})
	f.gen.lessonErr = errors.New("upstream down")

	content, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "文件系统")
	if err != nil {
		t.Fatalf("EnsureLesson: %v", err)
	}
	if content == nil {
		t.Fatalf("expected placeholder, got nil")
	}
	if !strings.Contains(content.Content, "内容生成失败") {
		t.Errorf("placeholder content missing, got %q", content.Content)
	}
	if len(content.Quiz) != 0 {
		t.Errorf("placeholder quiz should be empty")
	}
	if content.ImageURL == "" {
		t.Errorf("image url should still be attached to placeholder")
	}

	if got := atomic.LoadInt32(&f.gen.lessonCalls); got != 3 {
		t.Errorf("generator called %d times, want exactly 3", got)
	}

	// 占位内容不落库，下次访问重新生成
	count, _ := f.lessons.CountByAttempt(f.attempt.ID)
	if count != 0 {
		t.Errorf("placeholder was persisted: %d rows", count)
	}

	f.gen.lessonErr = nil
	again, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "文件系统")
	if err != nil {
		t.Fatalf("EnsureLesson (recovered): %v", err)
	}
	if strings.Contains(again.Content, "内容生成失败") {
		t.Errorf("recovered generation still returned placeholder")
	}
}

func TestEnsureLessonRejectsShortContent(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})
	f.gen.lessonShort = true

	content, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "死锁")
	if err != nil {
		t.Fatalf("EnsureLesson: %v", err)
	}
	if !strings.Contains(content.Content, "内容生成失败") {
		t.Errorf("short content should degrade to placeholder, got %q", content.Content)
	}
	if got := atomic.LoadInt32(&f.gen.lessonCalls); got != 3 {
		t.Errorf("generator called %d times, want 3", got)
	}
}

func TestEnsureLessonCorruptCacheRegenerates(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})

	// 手工塞入测验字段损坏的缓存行
	bad := &model.Lesson{
		AttemptID: f.attempt.ID,
		NodeIndex: 0,
		NodeTitle: "中断处理",
		Content:   "旧内容",
		QuizData:  "{oops",
	}
	if err := f.db.Create(bad).Error; err != nil {
		t.Fatalf("seed corrupt lesson: %v", err)
	}

	content, err := f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "中断处理")
	if err != nil {
		t.Fatalf("EnsureLesson: %v", err)
	}
	if content.Content == "旧内容" {
		t.Errorf("corrupt cache row was served as a hit")
	}
	if got := atomic.LoadInt32(&f.gen.lessonCalls); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}

	fresh, err := f.lessons.Get(f.attempt.ID, "中断处理")
	if err != nil {
		t.Fatalf("read regenerated lesson: %v", err)
	}
	if fresh.Quiz() == nil {
		t.Errorf("regenerated row still has corrupt quiz data")
	}
}

func TestEnsureSubRoadmapCachesAndFansOut(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{LessonFanout: 2})
	f.gen.subMapNodes = []model.RoadmapNode{
		{Title: "课1"}, {Title: "课2"}, {Title: "课3"}, {Title: "课4"},
	}

	nodes, err := f.orch.EnsureSubRoadmap(f.attempt.ID, 0, "操作系统", "Module 1: 基础")
	if err != nil {
		t.Fatalf("EnsureSubRoadmap: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("got %d nodes, want 4", len(nodes))
	}

	// 新生成后前 LessonFanout 节课进入后台预取
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := f.lessons.CountByAttempt(f.attempt.ID); n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	count, _ := f.lessons.CountByAttempt(f.attempt.ID)
	if count != 2 {
		t.Errorf("prefetched lesson rows = %d, want 2", count)
	}

	// 二次访问命中缓存，不再生成
	before := len(f.gen.callLog())
	again, err := f.orch.EnsureSubRoadmap(f.attempt.ID, 0, "操作系统", "Module 1: 基础")
	if err != nil {
		t.Fatalf("EnsureSubRoadmap (cached): %v", err)
	}
	if len(again) != 4 {
		t.Errorf("cached sub-roadmap has %d nodes, want 4", len(again))
	}
	if after := len(f.gen.callLog()); after != before {
		t.Errorf("cache hit still invoked the generator")
	}
}

func TestEnsureSubRoadmapFailureReturnsEmpty(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})
	f.gen.subMapErr = errors.New("upstream down")

	nodes, err := f.orch.EnsureSubRoadmap(f.attempt.ID, 0, "操作系统", "Module 1: 基础")
	if err != nil {
		t.Fatalf("EnsureSubRoadmap: %v", err)
	}
	if nodes == nil || len(nodes) != 0 {
		t.Errorf("expected empty list, got %v", nodes)
	}

	// 失败结果不落库
	if _, err := f.subMaps.Get(f.attempt.ID, 0); err == nil {
		t.Errorf("failed sub-roadmap was persisted")
	}
}

func TestCascadeFromSubRoadmapIsBreadthFirst(t *testing.T) {
	// 单 worker 池：执行顺序即提交顺序
	f := newOrchFixture(t, config.PrefetchConfig{Workers: 1})
	f.gen.subMapNodes = []model.RoadmapNode{{Title: "下一模块的课"}}

	subRoadmap := []model.RoadmapNode{{Title: "课A"}, {Title: "课B"}, {Title: "课C"}}
	fullRoadmap := []model.RoadmapNode{{Title: "Module 1"}, {Title: "Module 2"}}

	f.orch.CascadeFromSubRoadmap(f.attempt.ID, 0, "操作系统", subRoadmap, fullRoadmap)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		calls := f.gen.callLog()
		if len(calls) >= 4 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	calls := f.gen.callLog()
	if len(calls) < 4 {
		t.Fatalf("expected 4 generator calls, got %v", calls)
	}

	want := []string{"lesson:课A", "lesson:课B", "lesson:课C", "submap:Module 2"}
	for i, w := range want {
		if calls[i] != w {
			t.Fatalf("call order %v, want %v: current module lessons must precede next module", calls, want)
		}
	}
}

func TestCascadeFromRoadmapPrefetchesFirstModuleOnly(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{Workers: 1, LessonFanout: 1})
	f.gen.subMapNodes = []model.RoadmapNode{{Title: "第一课"}}

	roadmap := []model.RoadmapNode{{Title: "Module 1"}, {Title: "Module 2"}, {Title: "Module 3"}}
	f.orch.CascadeFromRoadmap(f.attempt.ID, "操作系统", roadmap)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := f.subMaps.Get(f.attempt.ID, 0); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := f.subMaps.Get(f.attempt.ID, 0); err != nil {
		t.Fatalf("module 0 sub-roadmap not prefetched: %v", err)
	}

	calls := f.gen.callLog()
	for _, call := range calls {
		if call == "submap:Module 2" || call == "submap:Module 3" {
			t.Errorf("deeper modules should not be prefetched from the top-level roadmap: %v", calls)
		}
	}
}

func TestPrefetchDiscardsResultWhenAttemptDeletedMidFlight(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{})
	f.gen.lessonDelay = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orch.EnsureLesson(f.attempt.ID, 0, "操作系统", "内存分配")
	}()

	// 等生成开始后删除会话
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&f.gen.lessonCalls) == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := f.attempts.DeleteCascade(f.attempt.ID); err != nil {
		t.Fatalf("delete attempt: %v", err)
	}
	<-done

	if f.lessons.Exists(f.attempt.ID, "内存分配") {
		t.Errorf("lesson persisted after its attempt was deleted")
	}
}

func TestCleanNodeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Module 3: 指针与内存", "指针与内存"},
		{"指针与内存", "指针与内存"},
		{"  前后有空格  ", "前后有空格"},
	}
	for _, c := range cases {
		if got := cleanNodeTitle(c.in); got != c.want {
			t.Errorf("cleanNodeTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPrefetchLessonIsIdempotent(t *testing.T) {
	f := newOrchFixture(t, config.PrefetchConfig{Workers: 2})

	for i := 0; i < 5; i++ {
		f.orch.PrefetchLesson(f.attempt.ID, 0, "操作系统", "同一节课")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.lessons.Exists(f.attempt.ID, "同一节课") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	count, _ := f.lessons.CountByAttempt(f.attempt.ID)
	if count != 1 {
		t.Errorf("lesson rows = %d, want 1", count)
	}
	if got := atomic.LoadInt32(&f.gen.lessonCalls); got != 1 {
		t.Errorf("generator called %d times, want 1 (singleflight + cache)", got)
	}
}
