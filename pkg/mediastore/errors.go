package mediastore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrUnsupportedMediaKind indicates a file is neither an image nor a video
	ErrUnsupportedMediaKind = errors.New("unsupported media kind")

	// ErrBlobWriteFailed indicates the blob store rejected a write
	ErrBlobWriteFailed = errors.New("blob write failed")

	// ErrBlobNotFound indicates no partition holds the requested key
	ErrBlobNotFound = errors.New("blob not found")

	// ErrDuplicateHash indicates the registry already holds the content hash.
	// Repositories return it from CreateAsset; the service recovers from it.
	ErrDuplicateHash = errors.New("content hash already registered")

	// ErrAssetNotFound indicates a registry row was not found
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAssetReferenced indicates an asset still has ownership links
	ErrAssetReferenced = errors.New("asset is still referenced")

	// ErrLinkNotFound indicates an ownership link was not found
	ErrLinkNotFound = errors.New("ownership link not found")

	// ErrOwnerMismatch indicates a link belongs to a different owner
	ErrOwnerMismatch = errors.New("link belongs to another owner")

	// ErrInvalidOwnerID indicates an owner id is not a positive integer
	ErrInvalidOwnerID = errors.New("invalid owner id")

	// ErrStorageBackendNotFound indicates no blob store serves a media kind
	ErrStorageBackendNotFound = errors.New("storage backend not found")
)

// AssetError represents an error related to registry operations
type AssetError struct {
	AssetID     uuid.UUID
	ContentHash string
	Op          string
	Err         error
}

func (e *AssetError) Error() string {
	if e.AssetID == uuid.Nil {
		return fmt.Sprintf("asset operation %s failed for hash %s: %v", e.Op, e.ContentHash, e.Err)
	}
	return fmt.Sprintf("asset operation %s failed for asset %s: %v", e.Op, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// LinkError represents an error related to ownership ledger operations
type LinkError struct {
	OwnerID int64
	LinkID  uuid.UUID
	Op      string
	Err     error
}

func (e *LinkError) Error() string {
	if e.LinkID == uuid.Nil {
		return fmt.Sprintf("link operation %s failed for owner %d: %v", e.Op, e.OwnerID, e.Err)
	}
	return fmt.Sprintf("link operation %s failed for owner %d link %s: %v", e.Op, e.OwnerID, e.LinkID, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Kind MediaKind
	Key  string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s in %s partition: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// blobWriteError wraps a blob store failure so that it matches both
// ErrBlobWriteFailed and the backend's own error.
func blobWriteError(kind MediaKind, key string, err error) error {
	return &StorageError{
		Kind: kind,
		Key:  key,
		Op:   "put",
		Err:  fmt.Errorf("%w: %w", ErrBlobWriteFailed, err),
	}
}
