package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"harmonyclass-api/internal/apperror"
	"harmonyclass-api/internal/config"
	"harmonyclass-api/pkg/logging"
)

const (
	naverNewsURL       = "https://openapi.naver.com/v1/search/news.json"
	defaultNewsKeyword = "음악교육"
	defaultNewsSource  = "네이버뉴스"
	newsDisplayCount   = 5
)

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	kst            = time.FixedZone("KST", 9*60*60)
)

// NewsItem is one article shown in the site's news widget
type NewsItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	PubDate     string `json:"pubDate"`
	Source      string `json:"source"`
}

// NewsCache stores rendered news lists
type NewsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// NewsService searches Naver news for music education articles
type NewsService struct {
	ClientID     string
	ClientSecret string
	BaseURL      string

	client   *http.Client
	cache    NewsCache
	cacheTTL time.Duration
}

// NewNewsService creates a news service. cache may be nil.
func NewNewsService(cfg *config.Config, cache NewsCache) *NewsService {
	return &NewsService{
		ClientID:     cfg.NaverClientID,
		ClientSecret: cfg.NaverClientSecret,
		BaseURL:      naverNewsURL,
		client:       &http.Client{Timeout: cfg.ExternalCallTimeout},
		cache:        cache,
		cacheTTL:     cfg.NewsCacheTTL,
	}
}

type naverNewsResponse struct {
	Items []struct {
		Title        string `json:"title"`
		OriginalLink string `json:"originallink"`
		Link         string `json:"link"`
		Description  string `json:"description"`
		PubDate      string `json:"pubDate"`
	} `json:"items"`
}

// Search returns the latest articles for keyword
func (s *NewsService) Search(ctx context.Context, keyword string) ([]NewsItem, error) {
	clientID, err := config.Require("NAVER_CLIENT_ID", s.ClientID)
	if err != nil {
		return nil, err
	}
	clientSecret, err := config.Require("NAVER_CLIENT_SECRET", s.ClientSecret)
	if err != nil {
		return nil, err
	}

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = defaultNewsKeyword
	}

	cacheKey := "news:" + keyword
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			var items []NewsItem
			if err := json.Unmarshal([]byte(cached), &items); err == nil {
				return items, nil
			}
		}
	}

	query := url.Values{}
	query.Set("query", keyword)
	query.Set("display", fmt.Sprint(newsDisplayCount))
	query.Set("sort", "date")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("X-Naver-Client-Id", clientID)
	httpReq.Header.Set("X-Naver-Client-Secret", clientSecret)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &apperror.ProviderError{Provider: "naver", Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var data naverNewsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode news response: %w", err)
	}

	items := make([]NewsItem, 0, len(data.Items))
	for i, item := range data.Items {
		items = append(items, NewsItem{
			ID:          i + 1,
			Title:       stripTags(item.Title),
			Description: stripTags(item.Description),
			Link:        item.Link,
			PubDate:     formatPubDate(item.PubDate),
			Source:      newsSource(item.OriginalLink),
		})
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if encoded, err := json.Marshal(items); err == nil {
			if err := s.cache.Set(ctx, cacheKey, encoded, s.cacheTTL); err != nil {
				logging.Warnf("Failed to cache news for %q: %v", keyword, err)
			}
		}
	}
	return items, nil
}

func stripTags(s string) string {
	return htmlTagPattern.ReplaceAllString(s, "")
}

// formatPubDate renders Naver's RFC 1123 date the way Korean locales print dates
func formatPubDate(pubDate string) string {
	t, err := time.Parse(time.RFC1123Z, pubDate)
	if err != nil {
		return pubDate
	}
	t = t.In(kst)
	return fmt.Sprintf("%d. %d. %d.", t.Year(), int(t.Month()), t.Day())
}

// newsSource is the publisher host, or Naver when the article has no original link
func newsSource(originalLink string) string {
	u, err := url.Parse(originalLink)
	if err != nil || u.Host == "" {
		return defaultNewsSource
	}
	return u.Host
}
