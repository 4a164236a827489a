package urlstrategy

import (
	"fmt"
	"strings"
)

// ContentBasedStrategy generates URLs that route through the application's
// media retrieval endpoint, which tries the image partition then the video
// partition. The partition is therefore not part of the URL.
type ContentBasedStrategy struct {
	APIBaseURL string // e.g., "https://api.example.com/api/v1" or "/api/v1"
}

// NewContentBasedStrategy creates a new content-based URL strategy
func NewContentBasedStrategy(apiBaseURL string) *ContentBasedStrategy {
	return &ContentBasedStrategy{
		APIBaseURL: strings.TrimSuffix(apiBaseURL, "/"),
	}
}

// AssetURL creates an application-routed URL for the storage key
func (s *ContentBasedStrategy) AssetURL(mediaKind string, storageKey string) (string, error) {
	if s.APIBaseURL == "" {
		return "", fmt.Errorf("API base URL not configured")
	}
	if storageKey == "" {
		return "", fmt.Errorf("storage key is required")
	}
	return fmt.Sprintf("%s/media/%s", s.APIBaseURL, escapeKey(storageKey)), nil
}
