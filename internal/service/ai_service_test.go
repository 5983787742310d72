package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
)

// chatStub 返回固定模型回复的 OpenAI 兼容接口桩
func chatStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		resp := ChatCompletionResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message AIChatMessage `json:"message"`
		}{Message: AIChatMessage{Role: "assistant", Content: reply}})
		json.NewEncoder(w).Encode(resp)
	}))
}

func newStubAI(srvURL string) *AIService {
	return NewAIService(config.AIConfig{BaseURL: srvURL, APIKey: "test-key", Model: "test-model"})
}

func TestCleanJSONText(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"代码围栏", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"首尾杂文", "Here you go:\n{\"a\": 1}\nHope that helps!", `{"a": 1}`},
		{"纯对象", `{"a": 1}`, `{"a": 1}`},
		{"空串", "", ""},
		{"嵌套对象", `prefix {"a": {"b": 2}} suffix`, `{"a": {"b": 2}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CleanJSONText(c.in); got != c.want {
				t.Errorf("CleanJSONText(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestNormalizeQuizAnswers(t *testing.T) {
	quiz := []model.QuizQuestion{
		{Options: []string{"栈", "堆", "队列", "链表"}, CorrectAnswer: "A"},
		{Options: []string{"栈", "堆", "队列", "链表"}, CorrectAnswer: "B."},
		{Options: []string{"栈", "堆", "队列", "链表"}, CorrectAnswer: " c "},
		{Options: []string{"栈", "堆", "队列", "链表"}, CorrectAnswer: "队列"},
	}
	NormalizeQuizAnswers(quiz)

	want := []string{"栈", "堆", "队列", "队列"}
	for i, w := range want {
		if quiz[i].CorrectAnswer != w {
			t.Errorf("quiz[%d].CorrectAnswer = %q, want %q", i, quiz[i].CorrectAnswer, w)
		}
	}
}

func TestGenerateLessonParsesAndNormalizes(t *testing.T) {
	reply := "```json\n" + `{
  "content": "# 指针\n` + strings.Repeat("详细讲解。", 40) + `",
  "quiz": [
    {"question": "指针存什么?", "options": ["地址", "值", "类型", "名字"], "correct_answer": "A", "explanation": "指针保存地址"}
  ]
}` + "\n```"

	srv := chatStub(t, reply)
	defer srv.Close()

	lesson, err := newStubAI(srv.URL).GenerateLesson("C语言", "指针基础")
	if err != nil {
		t.Fatalf("GenerateLesson: %v", err)
	}
	if !strings.HasPrefix(lesson.Content, "# 指针") {
		t.Errorf("content not parsed, got %q", lesson.Content)
	}
	if len(lesson.Quiz) != 1 {
		t.Fatalf("quiz len = %d, want 1", len(lesson.Quiz))
	}
	if lesson.Quiz[0].CorrectAnswer != "地址" {
		t.Errorf("answer not normalized to option text: %q", lesson.Quiz[0].CorrectAnswer)
	}
}

func TestGenerateLessonMissingQuizYieldsEmptySlice(t *testing.T) {
	srv := chatStub(t, `{"content": "正文"}`)
	defer srv.Close()

	lesson, err := newStubAI(srv.URL).GenerateLesson("C语言", "编译流程")
	if err != nil {
		t.Fatalf("GenerateLesson: %v", err)
	}
	if lesson.Quiz == nil || len(lesson.Quiz) != 0 {
		t.Errorf("quiz should be empty slice, got %#v", lesson.Quiz)
	}
}

func TestGenerateRoadmap(t *testing.T) {
	srv := chatStub(t, `{"topic_name": "C语言", "roadmap": [{"title": "Module 1: 基础", "keywords": ["变量"]}, {"title": "Module 2: 指针", "keywords": ["内存"]}]}`)
	defer srv.Close()

	nodes, err := newStubAI(srv.URL).GenerateRoadmap("C语言")
	if err != nil {
		t.Fatalf("GenerateRoadmap: %v", err)
	}
	if len(nodes) != 2 || nodes[0].Title != "Module 1: 基础" {
		t.Errorf("unexpected roadmap: %+v", nodes)
	}
}

func TestGenerateTopicIntroFillsTopicFallback(t *testing.T) {
	srv := chatStub(t, `{"intro": "**简介**", "hook": "一句话"}`)
	defer srv.Close()

	intro, err := newStubAI(srv.URL).GenerateTopicIntro("数据结构")
	if err != nil {
		t.Fatalf("GenerateTopicIntro: %v", err)
	}
	if intro.Topic != "数据结构" {
		t.Errorf("missing topic should fall back to request topic, got %q", intro.Topic)
	}
}

func TestChatErrorsOnUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := newStubAI(srv.URL).Chat("问题", ""); err == nil {
		t.Errorf("expected error on 429 response")
	}
}

func TestAnswerDoubtFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	answer := newStubAI(srv.URL).AnswerDoubt("C语言", "指针基础", "这是什么?")
	if answer == "" {
		t.Errorf("AnswerDoubt should return fallback text, not empty string")
	}
}
