package service

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"learnai_backend/internal/config"
)

func wikiStub(t *testing.T, handler http.HandlerFunc) *ImageService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewImageService(config.ImageConfig{Endpoint: srv.URL, UserAgent: "test-agent"})
}

func wikiResult(urls ...string) string {
	pages := ""
	for i, u := range urls {
		if i > 0 {
			pages += ","
		}
		pages += fmt.Sprintf(`"%d": {"imageinfo": [{"url": "%s"}]}`, i+1, u)
	}
	return `{"query": {"pages": {` + pages + `}}}`
}

func TestFindReturnsBitmapURL(t *testing.T) {
	svc := wikiStub(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("custom User-Agent not sent, got %q", got)
		}
		if got := r.URL.Query().Get("gsrnamespace"); got != "6" {
			t.Errorf("gsrnamespace = %q, want 6", got)
		}
		fmt.Fprint(w, wikiResult("https://upload.test/os_diagram.png"))
	})

	if got := svc.Find("操作系统", "进程调度"); got != "https://upload.test/os_diagram.png" {
		t.Errorf("Find = %q", got)
	}
}

func TestFindSkipsNonBitmapFormats(t *testing.T) {
	svc := wikiStub(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, wikiResult("https://upload.test/chart.svg", "https://upload.test/photo.jpeg"))
	})

	if got := svc.Find("网络", "拓扑"); got != "https://upload.test/photo.jpeg" {
		t.Errorf("Find = %q, want the jpeg result", got)
	}
}

func TestFindTriesTieredSearchTerms(t *testing.T) {
	var calls int32
	svc := wikiStub(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			fmt.Fprint(w, `{"query": {"pages": {}}}`)
			return
		}
		fmt.Fprint(w, wikiResult("https://upload.test/structure.jpg"))
	})

	if got := svc.Find("数据库", "索引"); got != "https://upload.test/structure.jpg" {
		t.Errorf("Find = %q", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("made %d searches, want fallback to third term", calls)
	}
}

func TestFindReturnsEmptyOnUpstreamFailure(t *testing.T) {
	svc := wikiStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	})

	if got := svc.Find("主题", "子主题"); got != "" {
		t.Errorf("Find should return empty string on failure, got %q", got)
	}
}
