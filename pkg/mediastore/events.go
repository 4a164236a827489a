package mediastore

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) AssetCreated(ctx context.Context, asset *MediaAsset) error {
	return nil
}

func (n *NoopEventSink) LinkAttached(ctx context.Context, link *OwnershipLink, reused bool) error {
	return nil
}

func (n *NoopEventSink) ThumbnailChanged(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) LinkRemoved(ctx context.Context, link *OwnershipLink) error {
	return nil
}

func (n *NoopEventSink) AssetEvicted(ctx context.Context, asset *MediaAsset) error {
	return nil
}

// LoggingEventSink writes every event as a structured log record
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink backed by logger. A nil logger
// uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger.With("component", "events")}
}

func (l *LoggingEventSink) AssetCreated(ctx context.Context, asset *MediaAsset) error {
	l.logger.InfoContext(ctx, "asset created",
		"asset_id", asset.ID, "content_hash", asset.ContentHash,
		"media_kind", asset.MediaKind, "size_bytes", asset.SizeBytes)
	return nil
}

func (l *LoggingEventSink) LinkAttached(ctx context.Context, link *OwnershipLink, reused bool) error {
	l.logger.InfoContext(ctx, "link attached",
		"link_id", link.ID, "owner_id", link.OwnerID, "asset_id", link.AssetID,
		"display_order", link.DisplayOrder, "reused", reused)
	return nil
}

func (l *LoggingEventSink) ThumbnailChanged(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	l.logger.InfoContext(ctx, "thumbnail changed", "owner_id", ownerID, "link_id", linkID)
	return nil
}

func (l *LoggingEventSink) LinkRemoved(ctx context.Context, link *OwnershipLink) error {
	l.logger.InfoContext(ctx, "link removed",
		"link_id", link.ID, "owner_id", link.OwnerID, "asset_id", link.AssetID)
	return nil
}

func (l *LoggingEventSink) AssetEvicted(ctx context.Context, asset *MediaAsset) error {
	l.logger.InfoContext(ctx, "asset evicted",
		"asset_id", asset.ID, "media_kind", asset.MediaKind, "storage_key", asset.StorageKey)
	return nil
}
