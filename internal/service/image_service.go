package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"learnai_backend/internal/config"
	"learnai_backend/pkg/logger"

	"go.uber.org/zap"
)

// ImageService 从维基媒体公共库检索课程配图，只返回直链 URL。
// 检索失败不是错误：课程内容可以没有配图。
type ImageService struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

func NewImageService(cfg config.ImageConfig) *ImageService {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://commons.wikimedia.org/w/api.php"
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "LearnAI-Backend/1.0 (educational use)"
	}

	return &ImageService{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type wikiImageInfo struct {
	URL string `json:"url"`
}

type wikiPage struct {
	ImageInfo []wikiImageInfo `json:"imageinfo"`
}

type wikiResponse struct {
	Query struct {
		Pages map[string]wikiPage `json:"pages"`
	} `json:"query"`
}

// Find 按多组检索词依次搜索，优先示意图与结构图，返回第一个可用直链；
// 全部落空时返回空串
func (s *ImageService) Find(topic, subtopic string) string {
	clean := strings.TrimSpace(strings.NewReplacer("Module", "", "Foundations", "").Replace(subtopic))

	searchTerms := []string{
		fmt.Sprintf("%s %s diagram", topic, clean),
		fmt.Sprintf("%s architecture", topic),
		fmt.Sprintf("%s structure", topic),
		fmt.Sprintf("%s diagram", clean),
	}

	for _, term := range searchTerms {
		if u := s.search(term); u != "" {
			return u
		}
	}
	return ""
}

func (s *ImageService) search(term string) string {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("generator", "search")
	params.Set("gsrsearch", "filetype:bitmap "+term)
	params.Set("gsrnamespace", "6")
	params.Set("gsrlimit", "5")
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url")
	params.Set("format", "json")

	req, err := http.NewRequest("GET", s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Log.Warn("wikimedia search failed", zap.String("term", term), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	var data wikiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}

	for _, page := range data.Query.Pages {
		for _, info := range page.ImageInfo {
			lower := strings.ToLower(info.URL)
			if info.URL != "" && (strings.Contains(lower, ".jpg") ||
				strings.Contains(lower, ".jpeg") || strings.Contains(lower, ".png")) {
				return info.URL
			}
		}
	}
	return ""
}
