package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/solatis/fieldflow/internal/core/config"
	"github.com/solatis/fieldflow/internal/form"
	"github.com/solatis/fieldflow/internal/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a form definition interactively",
	Long: `Reads changed field names from stdin, one change per line (several
fields separated by spaces), and prints every derivation entry as it becomes
due. The definition file is reloaded whenever it changes on disk.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("definition", "", "YAML form definition file")
	_ = watchCmd.MarkFlagRequired("definition")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	path, _ := cmd.Flags().GetString("definition")
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	def, err := form.LoadDefinitionFile(path)
	if err != nil {
		return err
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	rt, err := form.New(ctx, def, form.Options{
		Runner:  printRunner(out),
		Logger:  logger,
		Compile: cfg.Engine.CompileOptions(),
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	lines := readLines(ctx, cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return drain(ctx, rt)
			}
			if fields := strings.Fields(line); len(fields) > 0 {
				rt.Changed(fields...)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			reload(rt, path, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("definition watcher error", "error", err)
		}
	}
}

// reload swaps the runtime to the definition on disk, keeping the current
// one when the file does not compile.
func reload(rt *form.Runtime, path string, logger *slog.Logger) {
	def, err := form.LoadDefinitionFile(path)
	if err == nil {
		err = rt.Replace(def)
	}
	if err != nil {
		logger.Error("definition reload failed; keeping previous definition", "file", path, "error", err)
	}
}

// drain waits for pending debounced entries after stdin closes.
func drain(ctx context.Context, rt *form.Runtime) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !rt.Idle() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func printRunner(w io.Writer) func(context.Context, []*types.DerivationEntry) {
	return func(_ context.Context, entries []*types.DerivationEntry) {
		for _, e := range entries {
			if e.IsDebounced() {
				fmt.Fprintf(w, "run %s after %dms (%s)\n", e.TargetFieldKey, e.EffectiveDebounceMs(), e.ID)
				continue
			}
			fmt.Fprintf(w, "run %s (%s)\n", e.TargetFieldKey, e.ID)
		}
	}
}

// lockedWriter serializes writes from the input loop and timer callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
