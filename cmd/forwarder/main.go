package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"keyword_forwarder/internal/config"
	"keyword_forwarder/internal/cursor"
	"keyword_forwarder/internal/deliver"
	"keyword_forwarder/internal/metrics"
	"keyword_forwarder/internal/model"
	"keyword_forwarder/internal/report"
	"keyword_forwarder/internal/runner"
	"keyword_forwarder/internal/telegram"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (default: ~/"+config.DefaultFileName+")")
	interval := flag.Duration("interval", 10*time.Minute, "re-scan interval for watch mode")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		slog.Error("load settings", "error", err)
		os.Exit(1)
	}
	log := newLogger(settings.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := telegram.NewClient(settings.APIID, settings.APIHash, settings.SessionFile, log)

	switch cmd := args[0]; cmd {
	case "list-chats":
		if err := listChats(ctx, client); err != nil {
			log.Error("list chats", "error", err)
			os.Exit(1)
		}
	case "run", "watch":
		if err := runScan(ctx, client, settings, log, *configPath, cmd == "watch", *interval); err != nil {
			log.Error("scan", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: forwarder [-config path] [-interval d] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run         Scan all configured sources once")
	fmt.Fprintln(os.Stderr, "  watch       Re-scan every interval until interrupted")
	fmt.Fprintln(os.Stderr, "  list-chats  List dialogs and forum topic IDs")
}

func runScan(ctx context.Context, client *telegram.Client, settings *config.Settings, log *slog.Logger, configOverride string, watch bool, interval time.Duration) error {
	path, err := config.ResolvePath(configOverride)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path, log)
	if err != nil {
		return err
	}

	store, closeStore, err := openCursorStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reporters := report.Multi{report.NewLogger(log)}
	if settings.BotToken != "" && settings.AdminChatID != 0 {
		notifier, err := report.NewNotifier(settings.BotToken, settings.AdminChatID, log)
		if err != nil {
			return err
		}
		reporters = append(reporters, notifier)
	}
	if settings.MetricsAddr != "" {
		metrics.MustRegister(prometheus.DefaultRegisterer)
		metrics.StartServer(ctx, log, settings.MetricsAddr)
		reporters = append(reporters, metrics.Recorder{})
	}

	var summary model.Summary
	err = client.Run(ctx, func(ctx context.Context, s *telegram.Session) error {
		if cfg.CleanDestination {
			deleted, err := s.DeleteAll(ctx, cfg.DestinationChatID)
			if err != nil {
				return fmt.Errorf("destination pre-clean: %w", err)
			}
			log.Info("destination cleaned", "chat_id", cfg.DestinationChatID, "deleted", deleted)
		}

		engine := deliver.NewEngine(s, settings.MaxDeliveryAttempts, log)
		r := runner.NewRunner(s, engine, s, store, cfg.DestinationChatID, log)
		orch := runner.NewOrchestrator(r, reporters, settings.Workers, log)

		if watch {
			orch.Watch(ctx, cfg.Sources, interval)
			return nil
		}
		summary = orch.RunAll(ctx, cfg.Sources)
		return nil
	})
	if err != nil {
		return err
	}
	if !watch && summary.AllFailed() {
		return fmt.Errorf("all %d sources failed", len(summary.Sources))
	}
	return nil
}

func openCursorStore(cfg *config.Config, log *slog.Logger) (cursor.Store, func(), error) {
	switch cfg.CursorBackend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.CursorPath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, fmt.Errorf("create cursor database directory: %w", err)
			}
		}
		store, err := cursor.NewSQLiteStore(cfg.CursorPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return cursor.NewYAMLStore(cfg.Path, log), func() {}, nil
	}
}

func listChats(ctx context.Context, client *telegram.Client) error {
	return client.Run(ctx, func(ctx context.Context, s *telegram.Session) error {
		dialogs, err := s.Dialogs(ctx)
		if err != nil {
			return err
		}
		for _, d := range dialogs {
			fmt.Printf("CHAT\t%d\t%s\t%s\n", d.ChatID, d.Type, d.Title)
			if !d.Forum {
				continue
			}
			topics, err := s.Topics(ctx, d.ChatID)
			if err != nil {
				fmt.Printf("TOPICS_UNAVAILABLE\t%d\t%v\n", d.ChatID, err)
				continue
			}
			for _, t := range topics {
				fmt.Printf("TOPIC\t%d\t%d\t%s\n", d.ChatID, t.ID, t.Title)
			}
		}
		return nil
	})
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
