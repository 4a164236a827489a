package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-media/pkg/mediastore"
)

func parseOwnerID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", mediastore.ErrInvalidOwnerID, raw)
	}
	return id, nil
}

// readUploadFile reads a local file, declaring its type from the extension
func readUploadFile(path string) (mediastore.UploadFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mediastore.UploadFile{}, err
	}
	return mediastore.UploadFile{
		FileName:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}

func newAttachCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "attach OWNER_ID FILE...",
		Short: "Attach local image and video files to an owner",
		Long: `Attach local files to an owner in argument order. Identical content is
stored once and reused. Files that are neither images nor videos are
reported and skipped.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwnerID(args[0])
			if err != nil {
				return err
			}

			files := make([]mediastore.UploadFile, 0, len(args)-1)
			for _, path := range args[1:] {
				file, err := readUploadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, file)
			}

			svc, _, _, cleanup, err := root.buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.AttachFiles(cmd.Context(), ownerID, files)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), format, newAttachOutput(result)); err != nil {
				return err
			}
			if len(result.Attached) == 0 {
				return errors.New("no files attached")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatYAML, "output format: yaml or json")
	return cmd
}

func newListCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list OWNER_ID",
		Short: "List an owner's media in display order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwnerID(args[0])
			if err != nil {
				return err
			}

			svc, _, _, cleanup, err := root.buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := svc.ListMedia(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, newListOutput(ownerID, items))
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatYAML, "output format: yaml or json")
	return cmd
}

func newThumbnailCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "thumbnail OWNER_ID LINK_ID",
		Short: "Make one of an owner's media items the thumbnail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwnerID(args[0])
			if err != nil {
				return err
			}
			linkID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid link id %q: %w", args[1], err)
			}

			svc, _, _, cleanup, err := root.buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.SetThumbnail(cmd.Context(), ownerID, linkID); err != nil {
				return err
			}
			items, err := svc.ListMedia(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, newListOutput(ownerID, items))
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatYAML, "output format: yaml or json")
	return cmd
}

func newEvictCmd(root *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Delete assets that no owner references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return errors.New("--older-than must not be negative")
			}

			svc, _, _, cleanup, err := root.buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			evicted, err := svc.EvictUnreferenced(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d unreferenced assets\n", evicted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "only evict assets created before now minus this duration")
	return cmd
}
