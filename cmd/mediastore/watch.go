package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-media/pkg/mediastore"
)

const defaultSettle = 500 * time.Millisecond

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		settle time.Duration
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "watch OWNER_ID DIR",
		Short: "Attach files dropped into a directory to an owner",
		Long: `Watch DIR and attach every file written into it to OWNER_ID. Files are
attached in name order once writes have settled. With --remove, attached
files are deleted from DIR.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwnerID(args[0])
			if err != nil {
				return err
			}
			dir := args[1]
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, _, logger, cleanup, err := root.buildService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			w := &dropWatcher{
				svc:     svc,
				ownerID: ownerID,
				dir:     dir,
				settle:  settle,
				remove:  remove,
				logger:  logger,
			}
			return w.run(ctx)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", defaultSettle, "wait this long after the last write before attaching")
	cmd.Flags().BoolVar(&remove, "remove", false, "delete files from DIR once attached")
	return cmd
}

// dropWatcher attaches files that appear in a directory
type dropWatcher struct {
	svc     mediastore.Service
	ownerID int64
	dir     string
	settle  time.Duration
	remove  bool
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func (w *dropWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop directory", "dir", w.dir, "owner_id", w.ownerID)

	var debounce *time.Timer
	flush := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if skipDropFile(event.Name) {
				continue
			}
			w.add(event.Name)

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.settle, func() {
				select {
				case flush <- struct{}{}:
				default:
				}
			})

		case <-flush:
			w.attachPending(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil
		}
	}
}

func (w *dropWatcher) add(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		w.pending = make(map[string]struct{})
	}
	w.pending[path] = struct{}{}
}

func (w *dropWatcher) take() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = nil
	sort.Strings(paths)
	return paths
}

// attachPending attaches every pending file as one batch
func (w *dropWatcher) attachPending(ctx context.Context) {
	paths := w.take()

	var (
		files   []mediastore.UploadFile
		sources = make(map[string]string)
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		file, err := readUploadFile(path)
		if err != nil {
			w.logger.Warn("failed to read dropped file", "path", path, "error", err)
			continue
		}
		files = append(files, file)
		sources[file.FileName] = path
	}
	if len(files) == 0 {
		return
	}

	result, err := w.svc.AttachFiles(ctx, w.ownerID, files)
	if err != nil {
		w.logger.Error("failed to attach dropped files", "owner_id", w.ownerID, "error", err)
		return
	}
	for _, failed := range result.Errors {
		w.logger.Warn("dropped file rejected", "file_name", failed.FileName, "reason", failed.Reason)
	}
	for _, attached := range result.Attached {
		w.logger.Info("dropped file attached",
			"file_name", attached.FileName,
			"link_id", attached.LinkID,
			"display_order", attached.DisplayOrder,
			"reused", attached.Reused,
		)
		if w.remove {
			if err := os.Remove(sources[attached.FileName]); err != nil {
				w.logger.Warn("failed to remove attached file", "path", sources[attached.FileName], "error", err)
			}
		}
	}
}

// skipDropFile filters editor temp files and partial downloads
func skipDropFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") ||
		strings.HasPrefix(base, "~") ||
		strings.HasSuffix(base, ".part") ||
		strings.HasSuffix(base, ".tmp")
}
