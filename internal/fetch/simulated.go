package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var mediaExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".webm": {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// simulatedFetcher serves posts from a local sample directory. The layout is
// sampleDir/<handle>/<post_id>.<ext> with an optional <post_id>.txt sidecar
// holding the caption. Used for demo runs and tests.
type simulatedFetcher struct {
	sampleDir string
}

func newSimulatedFetcher(sampleDir string) (*simulatedFetcher, error) {
	if strings.TrimSpace(sampleDir) == "" {
		return nil, errors.New("simulated fetcher requires a sample directory")
	}
	return &simulatedFetcher{sampleDir: sampleDir}, nil
}

func (f *simulatedFetcher) RecentPosts(ctx context.Context, handle string, limit int) ([]Post, error) {
	dir := filepath.Join(f.sampleDir, handle)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sample dir: %w", err)
	}

	var posts []Post
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := mediaExtensions[ext]; !ok {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		post := Post{
			SourceID: id,
			URL:      "file://" + filepath.Join(dir, name),
			MediaURL: filepath.Join(dir, name),
			Author:   handle,
		}
		if caption, err := os.ReadFile(filepath.Join(dir, id+".txt")); err == nil {
			post.Caption = strings.TrimSpace(string(caption))
		}
		posts = append(posts, post)
	}

	// Directory order is not stable across platforms.
	sort.Slice(posts, func(i, j int) bool { return posts[i].SourceID > posts[j].SourceID })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (f *simulatedFetcher) Download(ctx context.Context, post Post, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}
	dest := filepath.Join(destDir, post.SourceID+filepath.Ext(post.MediaURL))

	src, err := os.Open(post.MediaURL)
	if err != nil {
		return "", fmt.Errorf("open sample media: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create download: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("copy sample media: %w", err)
	}
	return dest, nil
}

func (f *simulatedFetcher) Healthy(ctx context.Context) error {
	info, err := os.Stat(f.sampleDir)
	if err != nil {
		return fmt.Errorf("sample dir unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sample path %s is not a directory", f.sampleDir)
	}
	return nil
}
