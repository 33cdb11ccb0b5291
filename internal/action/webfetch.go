package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// webFetchMaxBody caps how much of a fetched page is read.
const webFetchMaxBody = 2 << 20 // 2MB

// WebFetchHandler is a custom action (name "web_fetch") that fetches a
// URL and returns its title and readable text. It is the reference
// implementation of the custom-handler extension point.
type WebFetchHandler struct {
	client *http.Client
}

// NewWebFetchHandler creates the handler with a default HTTP client.
func NewWebFetchHandler() *WebFetchHandler {
	return &WebFetchHandler{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements CustomHandler.
func (*WebFetchHandler) Name() string { return "web_fetch" }

// ActionType implements Handler.
func (*WebFetchHandler) ActionType() Type { return TypeCustom }

// Handle fetches Args["url"] and extracts the page title and main text.
func (h *WebFetchHandler) Handle(ctx context.Context, inv *Invocation) (map[string]any, error) {
	p := inv.Params.(CustomParams)
	rawURL, _ := p.Args["url"].(string)
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("web_fetch: missing url argument")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", "handbox/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web_fetch: status %d fetching %s", resp.StatusCode, rawURL)
	}

	title, text, err := extractReadableText(io.LimitReader(resp.Body, webFetchMaxBody))
	if err != nil {
		return nil, fmt.Errorf("web_fetch: parse page: %w", err)
	}

	return map[string]any{
		"url":    rawURL,
		"title":  title,
		"text":   text,
		"status": resp.StatusCode,
	}, nil
}

var collapseWhitespace = regexp.MustCompile(`[ \t]+`)

// extractReadableText pulls the title and main text out of an HTML page,
// preferring semantic content containers over the raw body.
func extractReadableText(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, footer, header, aside, noscript, iframe, form").Remove()

	content := doc.Find("body")
	for _, selector := range []string{"article", "main", "[role=main]", "#content", ".content"} {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}

	var lines []string
	for _, line := range strings.Split(content.Text(), "\n") {
		line = strings.TrimSpace(collapseWhitespace.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return title, strings.Join(lines, "\n"), nil
}
