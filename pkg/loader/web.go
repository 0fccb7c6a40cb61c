package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zavalabs/raft/internal/models"
)

// WebLoaderConfig configures the web crawler used for documentation corpora.
type WebLoaderConfig struct {
	BaseURL    string
	MaxDepth   int
	RateLimit  float64
	Timeout    time.Duration
	UserAgent  string
	Ignore     []string
	OnProgress func(url string)
}

// WebLoader crawls a documentation site and yields one Document per page.
type WebLoader struct {
	config  WebLoaderConfig
	client  *http.Client
	limiter *rate.Limiter
	base    *url.URL
	visited map[string]bool
}

// NewWebLoader creates a crawler for the given base URL.
func NewWebLoader(config WebLoaderConfig) (*WebLoader, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if config.MaxDepth <= 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2.0
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "raft-loader/1.0"
	}

	return &WebLoader{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		base:    base,
		visited: make(map[string]bool),
	}, nil
}

// Load crawls pages reachable from the base URL up to MaxDepth.
func (l *WebLoader) Load(ctx context.Context) ([]models.Document, error) {
	var documents []models.Document
	if err := l.crawl(ctx, l.config.BaseURL, 0, &documents); err != nil {
		return documents, err
	}
	if len(documents) == 0 {
		return nil, fmt.Errorf("no pages found under %s", l.config.BaseURL)
	}
	return documents, nil
}

func (l *WebLoader) crawl(ctx context.Context, pageURL string, depth int, out *[]models.Document) error {
	if depth > l.config.MaxDepth || l.visited[pageURL] {
		return nil
	}
	l.visited[pageURL] = true

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", l.config.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Skip broken links rather than abort the whole crawl.
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	if l.config.OnProgress != nil {
		l.config.OnProgress(pageURL)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content := extractMainContent(doc)
	if content != "" {
		*out = append(*out, models.Document{
			ID:      uuid.NewString(),
			Source:  pageURL,
			Title:   title,
			Content: content,
			Metadata: map[string]interface{}{
				"depth": depth,
				"time":  time.Now(),
			},
		})
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		next := l.resolve(pageURL, href)
		if next != "" && l.shouldVisit(next) {
			links = append(links, next)
		}
	})

	for _, link := range links {
		if err := l.crawl(ctx, link, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

func (l *WebLoader) resolve(pageURL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	resolved := page.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

func (l *WebLoader) shouldVisit(pageURL string) bool {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	if parsed.Host != l.base.Host {
		return false
	}
	if !strings.HasPrefix(parsed.Path, l.base.Path) {
		return false
	}

	lower := strings.ToLower(parsed.Path)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".css", ".js", ".pdf", ".zip", ".ico"} {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	for _, pattern := range l.config.Ignore {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return false
		}
	}
	return !l.visited[pageURL]
}

// extractMainContent pulls the primary text of a page, preferring semantic
// containers over the raw body.
func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, aside").Remove()

	for _, selector := range []string{"main", "article", ".content", "#content", ".documentation"} {
		if selection := doc.Find(selector).First(); selection.Length() > 0 {
			return normalizeWhitespace(selection.Text())
		}
	}
	return normalizeWhitespace(doc.Find("body").Text())
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
