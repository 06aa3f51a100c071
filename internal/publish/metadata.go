package publish

import (
	"strings"

	"repost/internal/ledger"
	"repost/internal/textutil"
)

const (
	maxTitleLength = 100
	maxTags        = 12
)

// Metadata is the SEO surface sent alongside the video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// BuildMetadata derives upload metadata from the source post: the caption's
// first line becomes the title, hashtags become tags, and the description
// always credits the original author.
func BuildMetadata(item *ledger.Item, channelTitle string) Metadata {
	caption := strings.TrimSpace(item.Caption)

	title := firstLine(caption)
	title = stripHashtags(title)
	if title == "" {
		title = "Video by @" + strings.TrimSpace(item.Author)
	}
	title = textutil.TruncateOnWord(title, maxTitleLength)

	var description strings.Builder
	if caption != "" {
		description.WriteString(caption)
		description.WriteString("\n\n")
	}
	description.WriteString("Credit: @")
	description.WriteString(strings.TrimSpace(item.Author))
	if item.SourceURL != "" {
		description.WriteString("\nOriginal: ")
		description.WriteString(item.SourceURL)
	}
	if channelTitle = strings.TrimSpace(channelTitle); channelTitle != "" {
		description.WriteString("\n\nFollow ")
		description.WriteString(channelTitle)
		description.WriteString(" for more.")
	}

	return Metadata{
		Title:       title,
		Description: description.String(),
		Tags:        extractTags(caption, item.Author),
	}
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

func stripHashtags(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, field := range fields {
		if strings.HasPrefix(field, "#") {
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}

func extractTags(caption, author string) []string {
	seen := make(map[string]struct{})
	var tags []string
	add := func(tag string) {
		tag = textutil.NormalizeTag(tag)
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, field := range strings.Fields(caption) {
		if strings.HasPrefix(field, "#") && len(field) > 1 {
			add(strings.TrimPrefix(field, "#"))
		}
		if len(tags) >= maxTags {
			return tags
		}
	}
	add(author)
	return tags
}
