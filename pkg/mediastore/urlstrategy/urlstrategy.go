package urlstrategy

import (
	"fmt"
	"net/url"
	"strings"
)

// URLStrategy derives the stable public URL of a stored blob. The URL is
// computed once, when the registry row is created, and stored with it.
type URLStrategy interface {
	// AssetURL creates the public URL for a blob in the given partition
	AssetURL(mediaKind string, storageKey string) (string, error)
}

// StrategyType represents the type of URL strategy
type StrategyType string

const (
	// Application-routed URLs served by the media retrieval endpoint
	StrategyTypeContentBased StrategyType = "content-based"

	// Direct CDN URLs, one path prefix per partition
	StrategyTypeCDN StrategyType = "cdn"
)

// Config holds configuration for URL strategy creation
type Config struct {
	Type       StrategyType
	APIBaseURL string // For content-based strategy, e.g. "/api/v1"
	CDNBaseURL string // For CDN strategy, e.g. "https://cdn.example.com"
}

// New creates a URL strategy based on the configuration
func New(config Config) (URLStrategy, error) {
	switch config.Type {
	case StrategyTypeContentBased, "":
		if config.APIBaseURL == "" {
			return nil, fmt.Errorf("API base URL is required for content-based strategy")
		}
		return NewContentBasedStrategy(config.APIBaseURL), nil
	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		return NewCDNStrategy(config.CDNBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// escapeKey escapes each path segment of a storage key.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
