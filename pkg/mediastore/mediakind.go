package mediastore

import (
	"mime"
	"net/http"
	"strings"
)

const genericContentType = "application/octet-stream"

// DetectMediaKind classifies a file from its declared content type. When the
// declaration is missing or generic, the leading bytes are sniffed instead.
// It returns the kind and the effective content type.
func DetectMediaKind(declared string, data []byte) (MediaKind, string, error) {
	contentType := normalizeContentType(declared)
	if contentType == "" || contentType == genericContentType {
		contentType = normalizeContentType(http.DetectContentType(data))
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaKindImage, contentType, nil
	case strings.HasPrefix(contentType, "video/"):
		return MediaKindVideo, contentType, nil
	default:
		return "", contentType, ErrUnsupportedMediaKind
	}
}

func normalizeContentType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return mediaType
}
