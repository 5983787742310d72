package repository

import (
	"errors"
	"testing"

	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

func sampleContent() *model.LessonContent {
	return &model.LessonContent{
		Content: "## 指针基础\n指针保存变量的地址。",
		Quiz: []model.QuizQuestion{
			{Question: "指针保存什么？", Options: []string{"地址", "值"}, CorrectAnswer: "地址"},
		},
		ImageURL: "https://example.com/ptr.png",
	}
}

func TestLessonPutAndGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewLessonRepository(db)
	user := seedUser(t, db)
	attempt := seedAttempt(t, db, user.ID)

	if err := repo.Put(attempt.ID, 0, "指针", sampleContent()); err != nil {
		t.Fatalf("put: %v", err)
	}

	lesson, err := repo.Get(attempt.ID, "指针")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	content := lesson.ToContent()
	if content == nil {
		t.Fatal("缓存行应能还原为课程内容")
	}
	if content.Content != sampleContent().Content {
		t.Fatalf("内容不一致: %q", content.Content)
	}
	if len(content.Quiz) != 1 || content.Quiz[0].CorrectAnswer != "地址" {
		t.Fatalf("测验题还原异常: %+v", content.Quiz)
	}
	if !repo.Exists(attempt.ID, "指针") {
		t.Fatal("Exists 应命中")
	}
}

func TestLessonDuplicatePutHitsUniqueIndex(t *testing.T) {
	db := newTestDB(t)
	repo := NewLessonRepository(db)
	user := seedUser(t, db)
	attempt := seedAttempt(t, db, user.ID)

	if err := repo.Put(attempt.ID, 0, "指针", sampleContent()); err != nil {
		t.Fatalf("first put: %v", err)
	}
	err := repo.Put(attempt.ID, 0, "指针", sampleContent())
	if err == nil {
		t.Fatal("重复写入应触发唯一索引冲突")
	}
	if !IsDuplicateKey(err) {
		t.Fatalf("应识别为唯一索引冲突: %v", err)
	}

	// 不同会话的同名节点互不冲突
	other := seedAttempt(t, db, user.ID)
	if err := repo.Put(other.ID, 0, "指针", sampleContent()); err != nil {
		t.Fatalf("put other attempt: %v", err)
	}
}

func TestLessonInvalidateAllowsRegeneration(t *testing.T) {
	db := newTestDB(t)
	repo := NewLessonRepository(db)
	user := seedUser(t, db)
	attempt := seedAttempt(t, db, user.ID)

	if err := repo.Put(attempt.ID, 0, "指针", sampleContent()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.Invalidate(attempt.ID, "指针"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if repo.Exists(attempt.ID, "指针") {
		t.Fatal("失效后不应再命中")
	}
	// 物理删除后同键可重新写入
	if err := repo.Put(attempt.ID, 0, "指针", sampleContent()); err != nil {
		t.Fatalf("re-put after invalidate: %v", err)
	}
}

func TestLessonMarkComplete(t *testing.T) {
	db := newTestDB(t)
	repo := NewLessonRepository(db)
	user := seedUser(t, db)
	attempt := seedAttempt(t, db, user.ID)

	if err := repo.Put(attempt.ID, 0, "指针", sampleContent()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.MarkComplete(attempt.ID, "指针"); err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	lesson, err := repo.Get(attempt.ID, "指针")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !lesson.Completed {
		t.Fatal("完成标记未写入")
	}
}

func TestAttemptDeleteCascadeRemovesDerivedRows(t *testing.T) {
	db := newTestDB(t)
	attempts := NewAttemptRepository(db)
	lessons := NewLessonRepository(db)
	user := seedUser(t, db)
	attempt := seedAttempt(t, db, user.ID)

	if err := lessons.Put(attempt.ID, 0, "指针", sampleContent()); err != nil {
		t.Fatalf("put lesson: %v", err)
	}
	if err := db.Create(&model.ChatMessage{AttemptID: attempt.ID, NodeTitle: "指针", Sender: "user", Message: "为什么"}).Error; err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	if err := db.Create(&model.SubRoadmap{AttemptID: attempt.ID, ModuleIndex: 0, Data: "[]"}).Error; err != nil {
		t.Fatalf("seed sub roadmap: %v", err)
	}

	if err := attempts.DeleteCascade(attempt.ID); err != nil {
		t.Fatalf("delete cascade: %v", err)
	}

	if attempts.Exists(attempt.ID) {
		t.Fatal("删除后会话不应存活")
	}
	if _, err := attempts.FindByID(attempt.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("应返回记录不存在: %v", err)
	}
	if lessons.Exists(attempt.ID, "指针") {
		t.Fatal("派生课程应被级联删除")
	}
	var chatCount int64
	db.Model(&model.ChatMessage{}).Where("attempt_id = ?", attempt.ID).Count(&chatCount)
	if chatCount != 0 {
		t.Fatalf("派生对话应被级联删除，剩余 %d", chatCount)
	}
}
