package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sjawhar/codereflex/internal/audio"
	"github.com/sjawhar/codereflex/internal/config"
	"github.com/sjawhar/codereflex/internal/emotion"
	"github.com/sjawhar/codereflex/internal/gdrive"
	"github.com/sjawhar/codereflex/internal/llm"
	"github.com/sjawhar/codereflex/internal/server"
	"github.com/sjawhar/codereflex/internal/session"
	"github.com/sjawhar/codereflex/internal/speech"
	"github.com/sjawhar/codereflex/internal/storage"
	"github.com/sjawhar/codereflex/internal/submission"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	envPath := flag.String("env", ".env", "path to a dotenv file, ignored when missing")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *envPath); err != nil {
		slog.Error("codereflex: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	slog.Info("codereflex: starting")

	if err := config.LoadDotEnv(envPath); err != nil {
		return err
	}
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		slog.Warn("codereflex: config", "warning", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	client, err := newLLM(cfg)
	if err != nil {
		// Interviews cannot run, but reports and the status page still work.
		slog.Warn("codereflex: llm unavailable", "error", err)
	}

	var detector emotion.Detector
	if key := cfg.EmotionAPIKey(); key != "" {
		detector = emotion.NewOpenAIDetector(key, cfg.EmotionModel, cfg.LLMBaseURL)
	}

	hub := server.NewHub()
	manager := session.NewManager(session.Deps{
		Store:       store,
		LLM:         client,
		Hub:         hub,
		Detector:    detector,
		Archiver:    newArchiver(ctx, cfg),
		NewCapture:  newCapture(cfg),
		NewRecorder: newRecorder(cfg),
	}, session.Options{
		DefaultVoice:              cfg.DefaultVoice,
		SkipConfirmationOnTimeout: cfg.SkipConfirmationOnTimeout,
		EmotionInterval:           cfg.ParsedEmotionInterval(),
		EmotionThreshold:          cfg.EmotionThreshold,
		RequestTimeout:            cfg.ParsedLLMTimeout(),
	})
	defer manager.Shutdown()

	handler, err := server.Handler(staticFiles(cfg.StaticDir), hub, store, manager, server.Hooks{
		Warnings: func() []string { return warnings },
	})
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	slog.Info("codereflex: web UI", "url", "http://"+cfg.ListenAddr)
	if err := server.Serve(ctx, cfg.ListenAddr, handler); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("codereflex: shutting down")
	return nil
}

func openStore(cfg config.Config) (storage.Store, error) {
	if cfg.StorageBackend == config.StorageSupabase {
		store, err := storage.NewSupabaseStore(storage.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		})
		if err != nil {
			return nil, fmt.Errorf("supabase storage init: %w", err)
		}
		slog.Info("codereflex: using supabase storage", "url", cfg.SupabaseURL)
		return store, nil
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage init: %w", err)
	}
	slog.Info("codereflex: using sqlite storage", "path", cfg.DBPath)
	return store, nil
}

func newLLM(cfg config.Config) (llm.Client, error) {
	provider, model, err := llm.ParseModel(cfg.LLMModel)
	if err != nil {
		return nil, err
	}

	key := cfg.LLMAPIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key for provider %s", provider)
	}

	opts := []llm.Option{llm.WithJSONOutput()}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLMBaseURL))
	}
	return llm.NewClient(provider, key, model, opts...)
}

// newArchiver always writes a local markdown report and also uploads to
// Google Drive when a folder is configured.
func newArchiver(ctx context.Context, cfg config.Config) submission.Archiver {
	archivers := submission.Archivers{storage.NewWriter(cfg.ReportDir)}

	if cfg.GDriveFolderID != "" {
		drive, err := gdrive.NewArchiver(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if err != nil {
			slog.Warn("codereflex: gdrive archive disabled", "error", err)
		} else {
			archivers = append(archivers, drive)
		}
	}
	return archivers
}

func newCapture(cfg config.Config) func(string) speech.Capture {
	if cfg.Transcription != config.TranscriptionDeepgram {
		return nil
	}
	dial := speech.DeepgramDialer(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.SampleRate)
	return func(string) speech.Capture {
		return speech.NewDeepgramCapture(dial)
	}
}

func newRecorder(cfg config.Config) func(string) session.Recorder {
	return func(string) session.Recorder {
		recorder := audio.NewRecorder(cfg.AudioDir)
		recorder.SetSampleRate(cfg.SampleRate)
		return recorder
	}
}

func staticFiles(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		slog.Warn("codereflex: static assets unavailable", "dir", dir, "error", err)
		return nil
	}
	return os.DirFS(dir)
}
