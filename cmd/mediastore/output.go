package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tendant/simple-media/pkg/mediastore"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	formatYAML = "yaml"
	formatJSON = "json"
)

type attachedOutput struct {
	FileName     string `json:"file_name" yaml:"file_name"`
	AssetID      string `json:"asset_id" yaml:"asset_id"`
	LinkID       string `json:"link_id" yaml:"link_id"`
	DisplayOrder int    `json:"display_order" yaml:"display_order"`
	URL          string `json:"url" yaml:"url"`
	Reused       bool   `json:"reused" yaml:"reused"`
}

type failedOutput struct {
	FileName string `json:"file_name" yaml:"file_name"`
	Reason   string `json:"reason" yaml:"reason"`
}

type attachOutput struct {
	OwnerID  int64            `json:"owner_id" yaml:"owner_id"`
	Attached []attachedOutput `json:"attached" yaml:"attached"`
	Errors   []failedOutput   `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type mediaOutput struct {
	LinkID       string    `json:"link_id" yaml:"link_id"`
	AssetID      string    `json:"asset_id" yaml:"asset_id"`
	URL          string    `json:"url" yaml:"url"`
	MediaKind    string    `json:"media_kind" yaml:"media_kind"`
	DisplayOrder int       `json:"display_order" yaml:"display_order"`
	SizeBytes    int64     `json:"size_bytes" yaml:"size_bytes"`
	Thumbnail    bool      `json:"thumbnail" yaml:"thumbnail"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

type listOutput struct {
	OwnerID int64         `json:"owner_id" yaml:"owner_id"`
	Media   []mediaOutput `json:"media" yaml:"media"`
}

func newAttachOutput(result *mediastore.AttachResult) attachOutput {
	out := attachOutput{OwnerID: result.OwnerID, Attached: []attachedOutput{}}
	for _, a := range result.Attached {
		out.Attached = append(out.Attached, attachedOutput{
			FileName:     a.FileName,
			AssetID:      a.AssetID.String(),
			LinkID:       a.LinkID.String(),
			DisplayOrder: a.DisplayOrder,
			URL:          a.URL,
			Reused:       a.Reused,
		})
	}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, failedOutput{FileName: e.FileName, Reason: e.Reason})
	}
	return out
}

func newListOutput(ownerID int64, items []*mediastore.MediaItem) listOutput {
	out := listOutput{OwnerID: ownerID, Media: []mediaOutput{}}
	for _, item := range items {
		out.Media = append(out.Media, mediaOutput{
			LinkID:       item.LinkID.String(),
			AssetID:      item.AssetID.String(),
			URL:          item.URL,
			MediaKind:    string(item.MediaKind),
			DisplayOrder: item.DisplayOrder,
			SizeBytes:    item.SizeBytes,
			Thumbnail:    item.IsThumbnail,
			CreatedAt:    item.CreatedAt,
		})
	}
	return out
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "", formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q (use yaml or json)", format)
	}
}
