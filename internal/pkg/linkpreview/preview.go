package linkpreview

import (
	"Mosaic/internal/pkg/consts"
	"Mosaic/internal/pkg/redis"
	"context"
	log "log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
)

// Preview 链接卡片元数据，优先取 Open Graph 标签
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// Fetcher 抓取消息正文里的链接并生成预览卡片
// 结果写入 Redis 缓存，同一链接一天内不重复抓取
type Fetcher struct {
	httpClient *resty.Client
}

func NewFetcher() *Fetcher {
	ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", ua).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &Fetcher{httpClient: client}
}

// Fetch 返回链接预览，抓取失败返回 nil 而不是错误
// 预览只是消息的附加信息，不能因为它失败拒收消息
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *Preview {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil
	}

	cacheKey := consts.LinkPreviewKey + rawURL
	if cached, err := redis.GetValue(ctx, cacheKey); err == nil && cached != "" {
		var p Preview
		if err := json.Unmarshal([]byte(cached), &p); err == nil {
			return &p
		}
	}

	resp, err := f.httpClient.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		log.WarnContext(ctx, "link preview fetch failed", "url", rawURL, "err", err)
		return nil
	}
	if resp.StatusCode() != 200 || !strings.Contains(resp.Header().Get("Content-Type"), "text/html") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		log.WarnContext(ctx, "link preview parse failed", "url", rawURL, "err", err)
		return nil
	}

	p := &Preview{
		URL:         rawURL,
		Title:       metaContent(doc, "og:title"),
		Description: metaContent(doc, "og:description"),
		ImageURL:    metaContent(doc, "og:image"),
	}

	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if p.Description == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			p.Description = strings.TrimSpace(desc)
		}
	}
	if p.Title == "" && p.Description == "" {
		return nil
	}

	// 相对路径的图片补全为绝对地址
	if p.ImageURL != "" {
		if img, err := parsed.Parse(p.ImageURL); err == nil {
			p.ImageURL = img.String()
		}
	}

	if payload, err := json.Marshal(p); err == nil {
		_ = redis.SetWithExpiration(ctx, cacheKey, string(payload), 24*time.Hour)
	}

	return p
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).Attr("content")
	return strings.TrimSpace(content)
}
