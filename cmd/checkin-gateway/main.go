// Command checkin-gateway serves browser voice check-in sessions over
// websockets. Each connection gets its own live session; microphone audio
// comes in as base64 PCM frames and assistant audio goes back the same way.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumeo-health/checkin/internal/metrics"
	"github.com/lumeo-health/checkin/internal/store/postgres"
	"github.com/lumeo-health/checkin/pkg/gateway"
	"github.com/lumeo-health/checkin/pkg/session"
	"github.com/lumeo-health/checkin/pkg/transport/gemini"
)

const defaultSystemPrompt = `You are a warm, attentive wellness check-in companion. Keep replies short and conversational. If the user pauses to think or seems to just want to be heard, call choose_silence instead of replying. Use the widget tools when a breathing exercise, journaling prompt, stress reading, quick actions, or a scheduled activity would genuinely help.`

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":8080", "Listen address")
	model := flag.String("model", "", "Live model name (default from transport config)")
	voice := flag.String("voice", "", "Prebuilt voice name")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := setupLogger(*logLevel)
	slog.SetDefault(logger)

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		logger.Error("GEMINI_API_KEY required")
		os.Exit(1)
	}

	var store session.Store
	if dsn := os.Getenv("CHECKIN_POSTGRES_DSN"); dsn != "" {
		pg, err := postgres.NewStore(context.Background(), dsn)
		if err != nil {
			logger.Error("postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		logger.Info("suggestion persistence enabled")
	}

	m := metrics.New("checkin")

	factory := func(ctx context.Context) (*session.Session, error) {
		cfg := session.DefaultConfig()
		cfg.SystemPrompt = defaultSystemPrompt

		tcfg := gemini.DefaultConfig()
		tcfg.APIKey = apiKey
		tcfg.SystemPrompt = cfg.SystemPrompt
		tcfg.Voice = *voice
		if *model != "" {
			tcfg.Model = *model
		}
		transport := gemini.NewTransport(tcfg, logger)

		// Audio devices stay nil: frames arrive over the socket and
		// assistant audio leaves through the sink.
		return session.NewSession(cfg, transport, store, nil, nil, logger), nil
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/checkin", gateway.Handler{
		NewSession:      factory,
		Logger:          logger,
		Metrics:         m,
		MaxMessageBytes: 1 << 20,
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	var handler http.Handler = mux
	handler = gateway.AccessLog(logger, handler)
	handler = gateway.Recover(logger, handler)
	handler = gateway.RequestID(handler)

	server := &http.Server{
		Addr:        *addr,
		Handler:     handler,
		ReadTimeout: 0, // websocket connections are long-lived
	}

	go func() {
		logger.Info("listening", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	l := slog.LevelInfo
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
