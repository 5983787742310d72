package util

import (
	"testing"
	"time"

	"learnai_backend/internal/model"
)

func testUser() *model.User {
	u := &model.User{
		Email: "student@test.local",
		Role:  model.Student,
	}
	u.ID = 42
	return u
}

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT(testUser(), "secret-key", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseJWT(token, "secret-key")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("user_id 应为 42，实际 %d", claims.UserID)
	}
	if claims.Email != "student@test.local" {
		t.Fatalf("email 不一致: %q", claims.Email)
	}
	if claims.Role != model.Student {
		t.Fatalf("role 不一致: %q", claims.Role)
	}
}

func TestParseJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT(testUser(), "secret-key", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseJWT(token, "other-key"); err == nil {
		t.Fatal("错误密钥应解析失败")
	}
}

func TestParseJWTRejectsExpiredToken(t *testing.T) {
	token, err := GenerateJWT(testUser(), "secret-key", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseJWT(token, "secret-key"); err == nil {
		t.Fatal("过期令牌应解析失败")
	}
}

func TestParseJWTRejectsGarbage(t *testing.T) {
	if _, err := ParseJWT("not-a-token", "secret-key"); err == nil {
		t.Fatal("非法令牌应解析失败")
	}
}
