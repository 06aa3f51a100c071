package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"repost/internal/config"
)

const defaultBaseURL = "https://www.instagram.com"

// instagramFetcher scrapes public profile pages for recent post links and
// resolves each post's media URL from its Open Graph tags.
type instagramFetcher struct {
	client  *http.Client
	baseURL string
}

func newInstagramFetcher(cfg *config.Config) *instagramFetcher {
	timeout := time.Duration(cfg.Ingest.FetchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Ingest.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &instagramFetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: base,
	}
}

func (f *instagramFetcher) RecentPosts(ctx context.Context, handle string, limit int) ([]Post, error) {
	doc, err := f.document(ctx, fmt.Sprintf("%s/%s/", f.baseURL, url.PathEscape(handle)))
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", handle, err)
	}

	seen := make(map[string]struct{})
	var ids []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		id, ok := postIDFromHref(href)
		if !ok {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	posts := make([]Post, 0, len(ids))
	for _, id := range ids {
		post, err := f.resolvePost(ctx, handle, id)
		if err != nil {
			return posts, fmt.Errorf("resolve post %s: %w", id, err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (f *instagramFetcher) resolvePost(ctx context.Context, handle, id string) (Post, error) {
	postURL := fmt.Sprintf("%s/p/%s/", f.baseURL, url.PathEscape(id))
	doc, err := f.document(ctx, postURL)
	if err != nil {
		return Post{}, err
	}

	post := Post{
		SourceID: id,
		URL:      postURL,
		Author:   handle,
	}
	if media, ok := metaContent(doc, "og:video"); ok {
		post.MediaURL = media
	} else if media, ok := metaContent(doc, "og:image"); ok {
		post.MediaURL = media
	}
	if caption, ok := metaContent(doc, "og:description"); ok {
		post.Caption = caption
	}
	if post.MediaURL == "" {
		return Post{}, fmt.Errorf("post %s exposes no media url", id)
	}
	return post, nil
}

func (f *instagramFetcher) Download(ctx context.Context, post Post, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, post.MediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media download returned %d", resp.StatusCode)
	}

	dest := filepath.Join(destDir, post.SourceID+mediaExtension(post.MediaURL, resp.Header.Get("Content-Type")))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create download: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write download: %w", err)
	}
	return dest, nil
}

func (f *instagramFetcher) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("source unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("source returned %d", resp.StatusCode)
	}
	return nil
}

func (f *instagramFetcher) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

const userAgent = "Mozilla/5.0 (compatible; repost/0.1)"

func postIDFromHref(href string) (string, bool) {
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return "", false
	}
	if segments[0] != "p" && segments[0] != "reel" {
		return "", false
	}
	id := segments[1]
	if id == "" {
		return "", false
	}
	return id, true
}

func metaContent(doc *goquery.Document, property string) (string, bool) {
	var content string
	doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
			content = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return content, content != ""
}

func mediaExtension(mediaURL, contentType string) string {
	if ext := path.Ext(strippedPath(mediaURL)); ext != "" && len(ext) <= 5 {
		return ext
	}
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mt {
			case "video/mp4":
				return ".mp4"
			case "image/jpeg":
				return ".jpg"
			case "image/png":
				return ".png"
			case "video/webm":
				return ".webm"
			}
		}
	}
	return ".bin"
}

func strippedPath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return parsed.Path
}
