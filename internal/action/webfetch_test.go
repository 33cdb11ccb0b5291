package action

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testPage = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
<nav>skip this nav</nav>
<article>
<h1>Heading</h1>
<p>Body   text here.</p>
</article>
<footer>skip this footer</footer>
</body>
</html>`

func TestWebFetchHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	}))
	defer srv.Close()

	h := NewWebFetchHandler()
	inv := &Invocation{Params: CustomParams{Name: "web_fetch", Args: map[string]any{"url": srv.URL}}}

	result, err := h.Handle(context.Background(), inv)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := result["title"]; got != "Test Page" {
		t.Errorf("title = %v, want Test Page", got)
	}
	text, _ := result["text"].(string)
	if !strings.Contains(text, "Body text here.") {
		t.Errorf("text = %q, want collapsed body text", text)
	}
	if strings.Contains(text, "skip this nav") {
		t.Errorf("text = %q, nav content not stripped", text)
	}
}

func TestWebFetchHandlerMissingURL(t *testing.T) {
	h := NewWebFetchHandler()
	inv := &Invocation{Params: CustomParams{Name: "web_fetch"}}
	if _, err := h.Handle(context.Background(), inv); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestWebFetchHandlerBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewWebFetchHandler()
	inv := &Invocation{Params: CustomParams{Name: "web_fetch", Args: map[string]any{"url": srv.URL}}}
	if _, err := h.Handle(context.Background(), inv); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestWebFetchThroughExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(testPage))
	}))
	defer srv.Close()

	exec := newTestExecutor(newFakeRuntime())
	if err := exec.RegisterHandler(NewWebFetchHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	resp := exec.Execute(context.Background(), Request{
		Type:   TypeCustom,
		Params: CustomParams{Name: "web_fetch", Args: map[string]any{"url": srv.URL}},
	}, "")
	if resp.Status != StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", resp.Status, resp.Error)
	}
	if resp.Result["title"] != "Test Page" {
		t.Errorf("Result[title] = %v", resp.Result["title"])
	}
}
