package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mgoltzsche/sobub/internal/cli"
	"github.com/mgoltzsche/sobub/internal/health"
	"github.com/mgoltzsche/sobub/internal/library"
	"github.com/mgoltzsche/sobub/internal/observe"
	"github.com/mgoltzsche/sobub/internal/pipeline"
	"github.com/mgoltzsche/sobub/internal/resilience"
	"github.com/mgoltzsche/sobub/internal/server"
	"github.com/mgoltzsche/sobub/internal/session"
	"github.com/mgoltzsche/sobub/internal/settings"
	"github.com/mgoltzsche/sobub/internal/store"
	"github.com/mgoltzsche/sobub/internal/stt"
	"github.com/mgoltzsche/sobub/internal/tagmatch"
	"github.com/mgoltzsche/sobub/internal/tlsutils"
	"github.com/mgoltzsche/sobub/internal/trigger"
	"github.com/mgoltzsche/sobub/internal/vad"
	"github.com/mgoltzsche/sobub/pkg/config"
)

const shutdownTimeout = 15 * time.Second

var version = "dev"

type options struct {
	ListenAddr   string
	TLSEnabled   bool
	TLSCert      string
	TLSKey       string
	TLSHosts     string
	SyncInterval time.Duration
}

func main() {
	configFile := "/etc/sobub/config.yaml"
	cfg, err := config.FromFile(configFile)
	configFlag := &config.Flag{File: configFile, Config: &cfg}
	setDefaults(&cfg)

	opts := options{
		ListenAddr:   ":8443",
		SyncInterval: 10 * time.Second,
	}

	flag.Var(configFlag, "config", "Path to the configuration file")
	flag.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "URL pointing to the OpenAI-compatible STT server")
	flag.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key of the STT server")
	flag.StringVar(&cfg.STTProvider, "stt-provider", cfg.STTProvider, "STT client implementation (http, openai)")
	flag.StringVar(&cfg.STTModel, "stt-model", cfg.STTModel, "name of the STT model to use")
	flag.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "SQLite file path or postgres:// URL")
	flag.StringVar(&cfg.AudioDir, "audio-dir", cfg.AudioDir, "directory the clip audio files are stored in")
	flag.StringVar(&cfg.WebDir, "web-dir", cfg.WebDir, "Path to the web UI directory")
	flag.IntVar(&cfg.MinChunkBytes, "min-chunk-bytes", cfg.MinChunkBytes, "audio chunks smaller than this are not transcribed")
	flag.BoolVar(&cfg.VADEnabled, "vad", cfg.VADEnabled, "enable voice activity detection (VAD)")
	flag.StringVar(&cfg.VADModelPath, "vad-model", cfg.VADModelPath, "path to the VAD model")
	flag.StringVar(&cfg.TriggerScope, "trigger-scope", cfg.TriggerScope, "whether sessions share the cooldown (global, session)")
	flag.BoolVar(&cfg.PhoneticCorrection, "phonetic-correction", cfg.PhoneticCorrection, "correct misheard tags within transcriptions phonetically")
	flag.StringVar(&opts.ListenAddr, "listen", opts.ListenAddr, "Address the server should listen on")
	flag.BoolVar(&opts.TLSEnabled, "tls", opts.TLSEnabled, "Serve securely via HTTPS/TLS")
	flag.StringVar(&opts.TLSKey, "tls-key", opts.TLSKey, "Path to the TLS key file")
	flag.StringVar(&opts.TLSCert, "tls-cert", opts.TLSCert, "Path to the TLS certificate file")
	flag.StringVar(&opts.TLSHosts, "tls-hosts", opts.TLSHosts, "comma separated host names of the generated TLS certificate")
	flag.DurationVar(&opts.SyncInterval, "settings-sync-interval", opts.SyncInterval, "interval in which settings changed by other processes are applied")
	cli.ParseFlagsWithEnvVars(flag.CommandLine, "SOBUB_")

	if !configFlag.IsSet && err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error(err.Error())
		os.Exit(1)
	}

	setDefaults(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = runServer(ctx, cfg, opts)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func setDefaults(cfg *config.Configuration) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8080"
	}
	if cfg.STTProvider == "" {
		cfg.STTProvider = config.STTProviderHTTP
	}
	if cfg.STTModel == "" {
		cfg.STTModel = "whisper-1"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "/var/lib/sobub/sobub.db"
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = "/var/lib/sobub/audio"
	}
	if cfg.MinChunkBytes == 0 {
		cfg.MinChunkBytes = stt.DefaultMinChunkBytes
	}
	if cfg.TriggerScope == "" {
		cfg.TriggerScope = string(trigger.ScopeGlobal)
	}
}

func runServer(ctx context.Context, cfg config.Configuration, opts options) error {
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("failed to shut down telemetry", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	defaults, err := cfg.Defaults.Settings()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	err = st.EnsureDefaults(ctx, defaults.Map())
	if err != nil {
		return err
	}

	lib, err := library.New(cfg.AudioDir, st)
	if err != nil {
		return err
	}

	transcriber, err := newTranscriber(cfg, metrics)
	if err != nil {
		return err
	}
	if closer, ok := transcriber.VoiceDetector.(*vad.Detector); ok {
		defer closer.Close()
	}

	engines, err := trigger.NewProvider(trigger.Scope(cfg.TriggerScope))
	if err != nil {
		return err
	}

	current, err := settings.Load(ctx, st)
	if err != nil {
		return err
	}

	current.Apply(engines)

	pipelineOpts := []pipeline.Option{pipeline.WithMetrics(metrics)}
	if cfg.PhoneticCorrection {
		pipelineOpts = append(pipelineOpts, pipeline.WithPhoneticCorrector(tagmatch.NewPhoneticCorrector()))
	}

	p := pipeline.New(transcriber, st, engines, pipelineOpts...)
	sessions := session.NewManager(ctx, p, engines, metrics)

	mux := http.NewServeMux()

	health.New(
		health.Checker{Name: "database", Check: st.Ping},
		health.Checker{Name: "stt", Check: func(context.Context) error {
			if transcriber.Breaker.State() == resilience.StateOpen {
				return resilience.ErrCircuitOpen
			}
			return nil
		}},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &server.Server{
		Store:          st,
		Library:        lib,
		Engines:        engines,
		Sessions:       sessions,
		WebDir:         cfg.WebDir,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	srv.AddRoutes(mux)

	httpServer := &http.Server{
		Addr:        opts.ListenAddr,
		BaseContext: func(net.Listener) context.Context { return ctx },
		Handler:     observe.Middleware(metrics)(mux),
	}

	slog.Info(fmt.Sprintf("using %s STT at %s with model %s, trigger scope %s", cfg.STTProvider, cfg.ServerURL, cfg.STTModel, engines.Scope()))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(httpServer, opts)
	})
	g.Go(func() error {
		return settings.Sync(ctx, st, engines, opts.SyncInterval)
	})
	g.Go(func() error {
		<-ctx.Done()

		slog.Info("terminating")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to shut down http server gracefully", "err", err)
		}

		err = sessions.Close(shutdownCtx)
		p.Wait()

		return err
	})

	return g.Wait()
}

func newTranscriber(cfg config.Configuration, metrics *observe.Metrics) (*stt.Transcriber, error) {
	var service stt.Service

	switch cfg.STTProvider {
	case config.STTProviderHTTP:
		service = &stt.Client{
			URL:    cfg.ServerURL,
			Model:  cfg.STTModel,
			APIKey: cfg.APIKey,
		}
	case config.STTProviderOpenAI:
		service = stt.NewOpenAIClient(cfg.ServerURL, cfg.APIKey, cfg.STTModel, nil)
	default:
		return nil, fmt.Errorf("unsupported STT provider %q, supported providers are %s and %s", cfg.STTProvider, config.STTProviderHTTP, config.STTProviderOpenAI)
	}

	t := &stt.Transcriber{
		Service:       service,
		MinChunkBytes: cfg.MinChunkBytes,
		Breaker:       stt.NewCircuitBreaker(),
		Metrics:       metrics,
	}

	if cfg.VADEnabled {
		detector, err := vad.NewDetector(cfg.VADModelPath)
		if err != nil {
			return nil, err
		}

		t.VoiceDetector = detector
	}

	return t, nil
}

// serve returns when the server is shut down.
func serve(srv *http.Server, opts options) error {
	var err error

	if opts.TLSEnabled {
		tlsCert, tlsKey := opts.TLSCert, opts.TLSKey

		if tlsCert == "" && tlsKey == "" {
			slog.Info("generating self-signed TLS certificate")

			var hosts []string
			if opts.TLSHosts != "" {
				hosts = strings.Split(opts.TLSHosts, ",")
			}

			var cleanup func()

			tlsCert, tlsKey, cleanup, err = tlsutils.GenerateSelfSignedTLSCertificate(hosts...)
			if err != nil {
				return fmt.Errorf("generating tls certificate: %w", err)
			}

			defer cleanup()
		}

		slog.Info(fmt.Sprintf("listening on %s (https)", srv.Addr))

		err = srv.ListenAndServeTLS(tlsCert, tlsKey)
	} else {
		slog.Info(fmt.Sprintf("listening on %s", srv.Addr))

		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
