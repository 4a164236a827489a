package mediastore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Service defines the main interface for the media store
type Service interface {
	// Asset registry
	ResolveAsset(ctx context.Context, req ResolveAssetRequest) (*MediaAsset, bool, error)
	GetAsset(ctx context.Context, id uuid.UUID) (*MediaAsset, error)

	// Upload orchestration
	AttachFiles(ctx context.Context, ownerID int64, files []UploadFile) (*AttachResult, error)

	// Ordering
	SetThumbnail(ctx context.Context, ownerID int64, linkID uuid.UUID) error
	ListMedia(ctx context.Context, ownerID int64) ([]*MediaItem, error)
	Thumbnail(ctx context.Context, ownerID int64) (*MediaItem, error)

	// Unreference and eviction
	RemoveLink(ctx context.Context, ownerID int64, linkID uuid.UUID) error
	DeleteOwner(ctx context.Context, ownerID int64) (int, error)
	EvictUnreferenced(ctx context.Context, olderThan time.Duration) (int, error)

	// Retrieval
	OpenBlob(ctx context.Context, storageKey string) (io.ReadCloser, MediaKind, error)

	// Storage backend operations
	RegisterBackend(kind MediaKind, store BlobStore)
	GetBackend(kind MediaKind) (BlobStore, error)
}

// ResolveAssetRequest contains parameters for registry insert-or-reuse
type ResolveAssetRequest struct {
	Data        []byte
	MediaKind   MediaKind
	FileName    string
	ContentType string
}
