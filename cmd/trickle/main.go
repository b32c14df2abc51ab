package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/franksops/trickle/config"
	"github.com/franksops/trickle/engine"
	"github.com/franksops/trickle/provider"
	"github.com/franksops/trickle/store"
	"github.com/franksops/trickle/transport"
	"github.com/franksops/trickle/ui"
	"github.com/franksops/trickle/wire"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"
)

const defaultHistory = 20

func main() {
	// CLI flags
	var (
		configPath string
		logLevel   string
		credential string
		tuiEnabled bool
	)

	flag.StringVar(&configPath, "config", "", "Config file (default ~/.config/trickle/config.toml)")
	flag.StringVar(&logLevel, "log-level", "", "Log level, overrides the config file")
	flag.StringVar(&credential, "credential", "", "Default credential for batch lines without one")
	flag.BoolVar(&tuiEnabled, "tui", false, "Show the queue dashboard")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if logLevel != "" {
		if cfg.LogLevel, err = config.ParseLevel(logLevel); err != nil {
			log.Fatalf("Invalid -log-level: %v", err)
		}
	}

	// Create state directory
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		log.Fatalf("Failed to create state directory: %v", err)
	}

	var jobs []job
	switch args[0] {
	case "history":
		if err := runHistory(cfg, args[1:]); err != nil {
			log.Fatalf("History failed: %v", err)
		}
		return
	case "put", "get":
		j, err := parseJob(args)
		if err != nil {
			log.Fatalf("Invalid transfer: %v", err)
		}
		jobs = []job{j}
	case "batch":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		f, err := os.Open(args[1])
		if err != nil {
			log.Fatalf("Failed to open batch file: %v", err)
		}
		jobs, err = parseBatch(f, credential)
		f.Close()
		if err != nil {
			log.Fatalf("Invalid batch file: %v", err)
		}
	default:
		usage()
		os.Exit(1)
	}

	if failed := run(cfg, jobs, tuiEnabled); failed > 0 {
		os.Exit(2)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  trickle [options] put <host:port> <remote-path> <local-path> [credential]")
	fmt.Fprintln(out, "  trickle [options] get <host:port> <remote-path> <local-path> [credential]")
	fmt.Fprintln(out, "  trickle [options] batch <file>")
	fmt.Fprintln(out, "  trickle [options] history [n]")
	fmt.Fprintln(out, "\nOptions:")
	flag.PrintDefaults()
	fmt.Fprintln(out, "\nExamples:")
	fmt.Fprintln(out, "  trickle get device.local:80 /status ./status.json dXNlcjpwYXNz")
	fmt.Fprintln(out, "  trickle -tui batch nightly.txt")
}

func runHistory(cfg config.Config, args []string) error {
	n := defaultHistory
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[0], err)
		}
		n = v
	}

	journal, err := store.NewBoltStore(cfg.JournalPath())
	if err != nil {
		return err
	}
	defer journal.Close()

	records, err := journal.Recent(n)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No transfers recorded.")
		return nil
	}
	fmt.Println(ui.HistoryTable(records))
	return nil
}

// run drains jobs through the engine and returns the number of failed
// transfers.
func run(cfg config.Config, jobs []job, tuiEnabled bool) int {
	logger, closeLog := newLogger(cfg, tuiEnabled)
	defer closeLog()

	// Initialize transfer journal
	journal, err := store.NewBoltStore(cfg.JournalPath())
	if err != nil {
		log.Fatalf("Failed to initialize journal: %v", err)
	}
	defer journal.Close()
	tracker := engine.NewTracker(journal, engine.DefaultCheckpointConfig)

	// Context for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, err := createStorage(ctx, cfg.StorageRoot, cfg.StorageTimeout)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	if cfg.StorageRoot == "/" {
		for i := range jobs {
			if abs, err := filepath.Abs(jobs[i].LocalPath); err == nil {
				jobs[i].LocalPath = abs
			}
		}
	}

	link := cfg.Link()
	loop := engine.NewLoop(ctx, 0)
	dialer := transport.NewTCPDialer(loop, cfg.DialTimeout, logger.Named("tcp"))
	eng := engine.New(ctx, cfg.EngineConfig(logger.Named("engine")), link, dialer, storage,
		engine.WithTracker(tracker),
		engine.WithMemoryProbe(cfg.MemoryProbe()),
		engine.WithPoster(loop),
	)

	logger.Info("starting", "run", tracker.RunID(), "transfers", len(jobs), "storage", cfg.StorageRoot)

	// Owned by the loop goroutine.
	var results []ui.Result
	eng.OnTextResult(func(id uint64, text string) {
		results = append(results, ui.Result{ID: id, Text: text})
		if !tuiEnabled {
			fmt.Printf("%d\t%s\n", id, text)
		}
	})
	eng.OnJSONResult(func(id uint64, doc wire.Document) {
		if n := len(results); n > 0 && results[n-1].ID == id {
			results[n-1].Parsed = true
		}
	})

	// Jobs are fed in only while the queue has room, so a long batch never
	// evicts its own earlier entries.
	pending := jobs
	done := make(chan struct{})
	var doneOnce sync.Once
	loop.Start(func(now time.Time) {
		for len(pending) > 0 && link.IsConnected() && eng.Stats().Queued < eng.Stats().Capacity {
			j := pending[0]
			pending = pending[1:]
			if id := j.enqueue(eng); id == 0 {
				logger.Warn("transfer not queued", "kind", j.Kind, "host", j.Host, "path", j.Path)
			}
		}
		eng.Tick(now)
		if len(pending) == 0 && eng.Idle() {
			doneOnce.Do(func() { close(done) })
		}
	})

	// TUI
	var teaProgram *tea.Program
	tuiDone := make(chan struct{})
	if tuiEnabled {
		snapshot := func() *ui.UIState {
			var state *ui.UIState
			loop.Do(func() {
				state = ui.NewState(eng.Stats(), results, len(pending), link.IsConnected(), time.Now())
			})
			if state == nil {
				state = &ui.UIState{}
			}
			return state
		}

		teaProgram = tea.NewProgram(ui.NewTUIModel(snapshot()), tea.WithAltScreen())
		go func() {
			defer close(tuiDone)
			if _, err := teaProgram.Run(); err != nil {
				logger.Error("tui failed", "error", err)
			}
		}()

		// Start TUI update loop
		go func() {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					teaProgram.Send(ui.TUIUpdateMsg{State: snapshot()})
				}
			}
		}()
	}

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-done:
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig)
	case <-tuiDone:
		logger.Info("dashboard closed, shutting down")
	}

	var stats engine.Stats
	loop.Do(func() {
		eng.Close()
		stats = eng.Stats()
	})
	loop.Stop()

	if tuiEnabled {
		teaProgram.Quit()
		<-tuiDone
	}
	cancel()

	fmt.Printf("\nCompleted: %d  Failed: %d  Abandoned: %d  Dropped: %d\n",
		stats.Completed, stats.Failed, stats.Abandoned, stats.Dropped)
	return stats.Failed + stats.Abandoned + stats.Dropped
}

// newLogger logs to stderr, or to a file in the state directory while the
// dashboard owns the terminal.
func newLogger(cfg config.Config, tuiEnabled bool) (hclog.Logger, func()) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if tuiEnabled {
		f, err := os.OpenFile(filepath.Join(cfg.StateDir, "trickle.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "trickle",
		Level:  cfg.LogLevel,
		Output: out,
	}), closeFn
}

func createStorage(ctx context.Context, root string, timeout time.Duration) (provider.Storage, error) {
	// Check if S3 path
	if bucket, prefix, ok := provider.ParseS3URL(root); ok {
		s3, err := provider.NewS3Storage(ctx, bucket, prefix)
		if err != nil {
			return nil, err
		}
		s3.Timeout = timeout
		return s3, nil
	}
	if strings.HasPrefix(root, "s3://") {
		return nil, fmt.Errorf("invalid S3 root %q", root)
	}
	return provider.NewLocalStorage(root), nil
}
