package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [pipeline]",
		Short: "Recompile a pipeline whenever it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.pipelinePath(args)
			if err != nil {
				return err
			}
			if path == "-" {
				return fmt.Errorf("watch needs a file, not stdin")
			}
			return a.watch(cmd.Context(), path, nil)
		},
	}
}

// watch compiles path once, then again after every write until ctx is
// done. The parent directory is watched so editors that save by rename are
// still seen. ready, when non-nil, is closed once the watcher is armed.
func (a *app) watch(ctx context.Context, path string, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	last := a.recompile(path, "")
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			last = a.recompile(path, last)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", "error", err)
		}
	}
}

// recompile compiles path and reports the outcome on stdout. It returns the
// new digest, or last when compilation failed.
func (a *app) recompile(path, last string) string {
	plan, _, err := a.compile(path)
	if err != nil {
		a.logger.Error("compile failed", "pipeline", path, "error", err)
		FormatError(a.stdout, err, false)
		return last
	}

	digest, err := plan.Digest()
	if err != nil {
		a.logger.Error("digest failed", "pipeline", path, "error", err)
		return last
	}
	if digest == last {
		a.logger.Debug("plan unchanged", "pipeline", path, "digest", digest)
		return last
	}

	a.logger.Info("plan compiled", "pipeline", path, "digest", digest)
	_, _ = fmt.Fprintf(a.stdout, "compiled %s %s\n", filepath.Base(path), digest)
	return digest
}
