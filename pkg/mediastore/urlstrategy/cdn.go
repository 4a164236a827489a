package urlstrategy

import (
	"fmt"
	"strings"
)

// CDNStrategy generates URLs that point directly to a CDN fronting the blob
// partitions. Images are served under /images and videos under /videos.
type CDNStrategy struct {
	CDNBaseURL string // e.g., "https://cdn.example.com"
}

// NewCDNStrategy creates a new CDN URL strategy
func NewCDNStrategy(cdnBaseURL string) *CDNStrategy {
	return &CDNStrategy{
		CDNBaseURL: strings.TrimSuffix(cdnBaseURL, "/"),
	}
}

// AssetURL creates a direct CDN URL for the storage key
func (s *CDNStrategy) AssetURL(mediaKind string, storageKey string) (string, error) {
	if s.CDNBaseURL == "" {
		return "", fmt.Errorf("CDN base URL not configured")
	}
	if storageKey == "" {
		return "", fmt.Errorf("storage key is required")
	}
	var prefix string
	switch mediaKind {
	case "image":
		prefix = "images"
	case "video":
		prefix = "videos"
	default:
		return "", fmt.Errorf("unsupported media kind: %s", mediaKind)
	}
	return fmt.Sprintf("%s/%s/%s", s.CDNBaseURL, prefix, escapeKey(storageKey)), nil
}
