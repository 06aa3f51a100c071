package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"repost/internal/approval"
	"repost/internal/dedup"
	"repost/internal/ledger"
	"repost/internal/media"
	"repost/internal/notifications"
	"repost/internal/publish"
	"repost/internal/services"
	"repost/internal/stage"
)

// transformStage re-encodes downloaded media and renders the thumbnail.
type transformStage struct {
	transformer media.Transformer
}

func newTransformStage(transformer media.Transformer) *transformStage {
	return &transformStage{transformer: transformer}
}

func (s *transformStage) Prepare(ctx context.Context, item *ledger.Item) error {
	if strings.TrimSpace(item.MediaPath) == "" {
		return services.Wrap(services.ErrValidation, "transform", "prepare", "item has no downloaded media", nil)
	}
	if _, err := os.Stat(item.MediaPath); err != nil {
		return services.Wrap(services.ErrPermanent, "transform", "prepare", "downloaded media missing", err)
	}
	return nil
}

func (s *transformStage) Execute(ctx context.Context, item *ledger.Item) error {
	output, err := s.transformer.Transform(ctx, item)
	if err != nil {
		return err
	}
	item.TransformedPath = output.VideoPath
	item.ThumbnailPath = output.ThumbnailPath
	return nil
}

func (s *transformStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.transformer.Healthy(ctx); err != nil {
		return stage.Unhealthy("transform", err.Error())
	}
	return stage.Healthy("transform")
}

// dedupStage fingerprints the transformed content and consults the index.
// A match surfaces as ErrDuplicate so the manager parks the item instead of
// failing it.
type dedupStage struct {
	engine   *dedup.Engine
	notifier notifications.Service
}

func newDedupStage(engine *dedup.Engine, notifier notifications.Service) *dedupStage {
	return &dedupStage{engine: engine, notifier: notifier}
}

func (s *dedupStage) Prepare(ctx context.Context, item *ledger.Item) error {
	if strings.TrimSpace(item.ThumbnailPath) == "" {
		return services.Wrap(services.ErrValidation, "dedup", "prepare", "item has no thumbnail to fingerprint", nil)
	}
	return nil
}

func (s *dedupStage) Execute(ctx context.Context, item *ledger.Item) error {
	hash, err := dedup.HashFile(item.ThumbnailPath)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "dedup", "execute", "fingerprint thumbnail", err)
	}
	item.Fingerprint = hash.String()

	match, err := s.engine.CheckAndRegister(ctx, item.ID, item.SourceID, hash)
	if err != nil {
		return services.Wrap(services.ErrTransient, "dedup", "execute", "consult fingerprint index", err)
	}
	if match != nil {
		matched := fmt.Sprintf("item %d (%s)", match.ItemID, match.SourceID)
		item.ReviewReason = fmt.Sprintf("duplicate of %s, distance %d", matched, match.Distance)
		// Parking the duplicate matters more than announcing it.
		_ = s.notifier.NotifyDuplicate(ctx, item.SourceID, matched, match.Distance)
		return services.Wrap(services.ErrDuplicate, "dedup", "execute", item.ReviewReason, nil)
	}
	return nil
}

func (s *dedupStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("dedup")
}

// reviewStage hands the item to the approval gate and announces the pending
// review.
type reviewStage struct {
	gate     *approval.Gate
	notifier notifications.Service
}

func newReviewStage(gate *approval.Gate, notifier notifications.Service) *reviewStage {
	return &reviewStage{gate: gate, notifier: notifier}
}

func (s *reviewStage) Prepare(ctx context.Context, item *ledger.Item) error {
	return nil
}

func (s *reviewStage) Execute(ctx context.Context, item *ledger.Item) error {
	if _, err := s.gate.Request(ctx, item); err != nil {
		return err
	}
	_ = s.notifier.NotifyAwaitingReview(ctx, item.Caption, item.Author)
	return nil
}

func (s *reviewStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("review")
}

// publishStage uploads approved content and records where it landed.
type publishStage struct {
	store        *ledger.Store
	publisher    publish.Publisher
	channelTitle string
	notifier     notifications.Service
}

func newPublishStage(store *ledger.Store, publisher publish.Publisher, channelTitle string, notifier notifications.Service) *publishStage {
	return &publishStage{
		store:        store,
		publisher:    publisher,
		channelTitle: channelTitle,
		notifier:     notifier,
	}
}

func (s *publishStage) Prepare(ctx context.Context, item *ledger.Item) error {
	if strings.TrimSpace(item.TransformedPath) == "" {
		return services.Wrap(services.ErrValidation, "publish", "prepare", "item has no transformed media", nil)
	}
	return nil
}

func (s *publishStage) Execute(ctx context.Context, item *ledger.Item) error {
	meta := publish.BuildMetadata(item, s.channelTitle)
	result, err := s.publisher.Publish(ctx, item, meta)
	if err != nil {
		return err
	}
	item.PublishedURL = result.URL
	if encoded, err := json.Marshal(meta); err == nil {
		item.MetadataJSON = string(encoded)
	}

	record := &ledger.PublishRecord{
		ItemID:      item.ID,
		URL:         result.URL,
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        strings.Join(meta.Tags, ","),
		PublishedAt: time.Now().UTC(),
	}
	// The upload already happened; a failed record insert must not trigger
	// a retry that would publish twice.
	_ = s.store.InsertPublishRecord(ctx, record)
	_ = s.notifier.NotifyPublished(ctx, meta.Title, result.URL)
	return nil
}

func (s *publishStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.publisher.Healthy(ctx); err != nil {
		return stage.Unhealthy("publish", err.Error())
	}
	return stage.Healthy("publish")
}
