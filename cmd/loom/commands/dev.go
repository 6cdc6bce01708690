package commands

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newDevCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Watch a manifest and re-synthesize on change",
		Long: `Run the pipeline once, then keep watching the manifest's
directory (plus any --profiles and --rules paths) and re-run on every
change. Failed runs are reported and watching continues.

Intended for local authoring; synthesis output is identical to synth.`,
		Example: `  # Watch a manifest during authoring
  loom dev -f stack.yaml

  # Watch rules too, re-running when they change
  loom dev -f stack.yaml --rules ./rules`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevLoop(cmd.Context(), cmd, manifestPath)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "manifest file to watch")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runDevLoop(ctx context.Context, cmd *cobra.Command, manifestPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	watchPaths := append([]string{filepath.Dir(manifestPath)}, profilePaths...)
	watchPaths = append(watchPaths, rulePaths...)

	// The runtime is rebuilt on every change so edited profiles and
	// rules are recompiled, not just the manifest.
	synth := func() {
		rt, err := newRuntime(ctx)
		if err != nil {
			cmd.PrintErrf("failed to build runtime: %v\n", err)
			return
		}
		defer func() { _ = rt.Close() }()

		for _, path := range watchPaths {
			if err := watcher.Add(path); err != nil {
				rt.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
			}
		}

		m, err := rt.parser.ParseFile(ctx, manifestPath)
		if err != nil {
			cmd.PrintErrf("manifest error: %v\n", err)
			return
		}
		result, runErr := rt.engine.Run(ctx, m)
		if err := printResult(cmd, result); err != nil {
			cmd.PrintErrf("failed to print result: %v\n", err)
		}
		if runErr != nil {
			cmd.PrintErrf("run failed: %v\n", runErr)
		}
	}

	synth()

	var rerunTimer *time.Timer
	const rerunDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if rerunTimer != nil {
				rerunTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !watchedFile(event.Name) {
				continue
			}
			if rerunTimer != nil {
				rerunTimer.Stop()
			}
			rerunTimer = time.AfterFunc(rerunDelay, synth)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cmd.PrintErrf("watch error: %v\n", err)
		}
	}
}

// watchedFile reports whether a change to the file should trigger a
// re-run.
func watchedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".rego", ".star":
		return true
	default:
		return false
	}
}
