package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
)

// AIService 调用 OpenAI 兼容接口生成课程内容。
// 所有生成方法都只做一次调用，重试策略由编排器统一负责。
type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []AIChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *AIService) Chat(prompt string, context string) (string, error) {
	messages := []AIChatMessage{}

	if context != "" {
		messages = append(messages, AIChatMessage{
			Role:    "system",
			Content: fmt.Sprintf("你是一个教育助教。请结合以下背景知识回答问题：\n\n%s", context),
		})
	} else {
		messages = append(messages, AIChatMessage{
			Role:    "system",
			Content: "你是一个专业的教育助教，请尽力回答学生的问题。",
		})
	}

	messages = append(messages, AIChatMessage{
		Role:    "user",
		Content: prompt,
	})

	reqBody := ChatCompletionRequest{
		Model:    s.config.Model,
		Messages: messages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("AI returned no choices")
}

// CleanJSONText 剥离模型输出里的 Markdown 代码围栏和首尾杂文，
// 截取第一个配平的大括号对象
func CleanJSONText(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.TrimSpace(strings.Join(kept, "\n"))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// generateJSON 调用一次模型并把输出解析到 out。
// 解析失败且疑似裸控制字符时，转义换行与制表符后再试一次。
func (s *AIService) generateJSON(prompt string, out interface{}) error {
	raw, err := s.Chat(prompt, "")
	if err != nil {
		return err
	}

	cleaned := CleanJSONText(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		escaped := strings.ReplaceAll(cleaned, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")
		if err2 := json.Unmarshal([]byte(escaped), out); err2 != nil {
			return fmt.Errorf("malformed AI JSON: %w", err)
		}
	}
	return nil
}

// NormalizeQuizAnswers 把 "A"/"B."/"c" 形式的答案归一化为选项原文。
// 已经是选项原文的保持不变。
func NormalizeQuizAnswers(quiz []model.QuizQuestion) {
	idxMap := map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}
	for i := range quiz {
		ans := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(quiz[i].CorrectAnswer, ".", "")))
		if idx, ok := idxMap[ans]; ok && idx < len(quiz[i].Options) {
			quiz[i].CorrectAnswer = quiz[i].Options[idx]
		}
	}
}

type roadmapPayload struct {
	TopicName string              `json:"topic_name"`
	Roadmap   []model.RoadmapNode `json:"roadmap"`
}

type subRoadmapPayload struct {
	SubRoadmap []model.RoadmapNode `json:"sub_roadmap"`
}

type lessonPayload struct {
	Content string               `json:"content"`
	Quiz    []model.QuizQuestion `json:"quiz"`
}

// GenerateTopicIntro 生成主题引言
func (s *AIService) GenerateTopicIntro(topic string) (*model.TopicIntro, error) {
	prompt := fmt.Sprintf(`The user wants to learn about: '%s'.
Generate a concise but engaging introduction.
Return strictly valid JSON:
{ "topic": "%s", "intro": "**Markdown introduction** covering what it is, why it's important, and real-world applications.", "hook": "A short, catchy tagline." }`, topic, topic)

	var intro model.TopicIntro
	if err := s.generateJSON(prompt, &intro); err != nil {
		return nil, err
	}
	if intro.Topic == "" {
		intro.Topic = topic
	}
	return &intro, nil
}

// GenerateRoadmap 生成顶层路线图（5-8 个模块）
func (s *AIService) GenerateRoadmap(topic string) ([]model.RoadmapNode, error) {
	prompt := fmt.Sprintf(`Create a comprehensive learning roadmap for '%s'.
Break the topic down into 5-8 logical modules.
Return strictly valid JSON:
{ "topic_name": "%s", "roadmap": [ { "title": "Module 1: Name", "keywords": ["Key1", "Key2"] } ] }`, topic, topic)

	var payload roadmapPayload
	if err := s.generateJSON(prompt, &payload); err != nil {
		return nil, err
	}
	return payload.Roadmap, nil
}

// GenerateSubRoadmap 把一个模块拆分为 4-6 节课程
func (s *AIService) GenerateSubRoadmap(topic, moduleTitle string) ([]model.RoadmapNode, error) {
	prompt := fmt.Sprintf(`The user is learning '%s'. Current Module: '%s'.
Break this into 4-6 specific sub-topics/lessons.
Return strictly valid JSON:
{ "sub_roadmap": [ { "title": "Lesson 1 Title", "keywords": ["tag1"] } ] }`, topic, moduleTitle)

	var payload subRoadmapPayload
	if err := s.generateJSON(prompt, &payload); err != nil {
		return nil, err
	}
	return payload.SubRoadmap, nil
}

// GenerateLesson 生成单节课程正文与测验。答案在返回前归一化为选项原文。
func (s *AIService) GenerateLesson(topic, nodeTitle string) (*model.LessonContent, error) {
	prompt := fmt.Sprintf(`Teach '%s' -> '%s'. Level: beginner.
Return strictly valid JSON:
1. 'content': Markdown lesson (use \n for newlines). Must be detailed (>150 words). Include code examples if coding related.
2. 'quiz': 3 MCQs with 'explanation'.

Structure:
{ "content": "# Heading\nText...", "quiz": [ { "question": "Q?", "options": ["A", "B", "C", "D"], "correct_answer": "A", "explanation": "Reasoning..." } ] }`, topic, nodeTitle)

	var payload lessonPayload
	if err := s.generateJSON(prompt, &payload); err != nil {
		return nil, err
	}

	NormalizeQuizAnswers(payload.Quiz)
	if payload.Quiz == nil {
		payload.Quiz = []model.QuizQuestion{}
	}
	return &model.LessonContent{Content: payload.Content, Quiz: payload.Quiz}, nil
}

// GenerateRemedialLesson 测验未通过后生成更简化的补救课程
func (s *AIService) GenerateRemedialLesson(topic, nodeTitle string, failedConcepts []string) (*model.LessonContent, error) {
	prompt := fmt.Sprintf(`The user FAILED the quiz for: '%s' (Subject: %s).
Concepts failed: %s.

Goal: RE-WRITE the lesson to be SIMPLER (ELI5). Use analogies.
Generate a NEW, EASIER quiz (3 questions).

Return strictly valid JSON: { "content": "Markdown...", "quiz": [ { "question": "Q?", "options": ["A", "B", "C", "D"], "correct_answer": "A", "explanation": "..." } ] }`,
		nodeTitle, topic, strings.Join(failedConcepts, ", "))

	var payload lessonPayload
	if err := s.generateJSON(prompt, &payload); err != nil {
		return nil, err
	}

	NormalizeQuizAnswers(payload.Quiz)
	if payload.Quiz == nil {
		payload.Quiz = []model.QuizQuestion{}
	}
	return &model.LessonContent{Content: payload.Content, Quiz: payload.Quiz}, nil
}

// AnswerDoubt 课程节点下的即时答疑，失败时返回兜底文案而非错误
func (s *AIService) AnswerDoubt(topic, nodeTitle, question string) string {
	answer, err := s.Chat(
		fmt.Sprintf("Context: %s - %s. Question: %s", topic, nodeTitle, question), "")
	if err != nil {
		return "I'm having trouble connecting right now."
	}
	return answer
}
