package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-media/pkg/mediastore"
	"github.com/tendant/simple-media/pkg/mediastore/config"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mediastore",
		Short: "Deduplicating media store for owner image and video galleries",
		Long: `mediastore stores uploaded images and videos once per distinct content
and links them to owners with a display order. The first item of an owner
is its thumbnail.

Configuration comes from environment variables (DATABASE_URL,
IMAGE_STORAGE_URL, VIDEO_STORAGE_URL, CACHE_URL, ...) and, optionally, a
YAML config file given with --config. Environment variables win.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newAttachCmd(opts),
		newListCmd(opts),
		newThumbnailCmd(opts),
		newEvictCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// load reads configuration from the config file (if any) and the environment
func (o *rootOptions) load(extra ...config.Option) (*config.ServerConfig, error) {
	var options []config.Option
	if o.configFile != "" {
		options = append(options, config.WithFile(o.configFile))
	}
	options = append(options, config.WithEnv())
	options = append(options, extra...)

	cfg, err := config.Load(options...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// buildService loads configuration and wires the service. Callers must run
// the returned cleanup function.
func (o *rootOptions) buildService(ctx context.Context, extra ...config.Option) (mediastore.Service, *config.ServerConfig, *slog.Logger, func(), error) {
	cfg, err := o.load(extra...)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	svc, cleanup, err := cfg.BuildService(ctx, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("build service: %w", err)
	}
	return svc, cfg, logger, cleanup, nil
}
