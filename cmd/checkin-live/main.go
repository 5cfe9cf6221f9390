// Command checkin-live runs a voice check-in session against the local
// microphone and speaker.
//
// Usage:
//
//	go run ./cmd/checkin-live
//
// Environment variables:
//
//	GEMINI_API_KEY       - Required for the live conversation
//	CHECKIN_POSTGRES_DSN - Optional; enables suggestion and journal persistence
//
// Controls:
//
//	/t <text>  - Send a text message instead of speaking
//	/m         - Mute the microphone
//	/u         - Unmute the microphone
//	/i         - Interrupt the assistant
//	q          - End the session
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lumeo-health/checkin/internal/store/postgres"
	"github.com/lumeo-health/checkin/pkg/audio"
	"github.com/lumeo-health/checkin/pkg/session"
	"github.com/lumeo-health/checkin/pkg/transport/gemini"
)

const defaultSystemPrompt = `You are a warm, attentive wellness check-in companion. Keep replies short and conversational. If the user pauses to think or seems to just want to be heard, call choose_silence instead of replying. Use the widget tools when a breathing exercise, journaling prompt, stress reading, quick actions, or a scheduled activity would genuinely help.`

func main() {
	_ = godotenv.Load()

	model := flag.String("model", "", "Live model name (default from transport config)")
	voice := flag.String("voice", "", "Prebuilt voice name")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "GEMINI_API_KEY required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

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

	var store session.Store
	if dsn := os.Getenv("CHECKIN_POSTGRES_DSN"); dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	}

	input := audio.NewMalgoInput(cfg.Capture)
	output := audio.NewOtoOutput(cfg.Playback)

	sess := session.NewSession(cfg, transport, store, input, output, logger)
	go printEvents(sess)

	if err := sess.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}
	defer sess.End("cli exit")

	go func() {
		<-ctx.Done()
		sess.End("interrupted")
		os.Exit(0)
	}()

	fmt.Println("Connected. Speak naturally, or type /t <text>, /m, /u, /i, q.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.EqualFold(line, "q"):
			return
		case strings.HasPrefix(line, "/t "):
			text := strings.TrimPrefix(line, "/t ")
			if err := sess.SendText(text); err != nil {
				fmt.Printf("[error] send text: %v\n", err)
			}
		case line == "/m":
			sess.Mute()
			fmt.Println("[mic muted]")
		case line == "/u":
			sess.Unmute()
			fmt.Println("[mic unmuted]")
		case line == "/i":
			sess.Interrupt()
		default:
			fmt.Println("Commands: /t <text>, /m, /u, /i, q")
		}
	}
}

// printEvents renders the session event stream as a live transcript.
func printEvents(sess *session.Session) {
	for ev := range sess.Events() {
		switch e := ev.(type) {
		case *session.StateChangedEvent:
			fmt.Printf("[%s]\n", e.To)
		case *session.MessageUpdatedEvent:
			marker := ""
			if e.Message.Streaming {
				marker = " ..."
			}
			if e.Message.SilenceTriggered {
				marker = " (assistant stayed quiet)"
			}
			fmt.Printf("%s: %s%s\n", e.Message.Role, e.Message.Text, marker)
		case *session.MessageRemovedEvent:
			fmt.Printf("[withdrawn %s]\n", e.ID)
		case *session.SilenceChosenEvent:
			fmt.Println("[assistant chose silence]")
		case *session.WidgetAddedEvent:
			fmt.Printf("[widget %s: %s]\n", e.Widget.Kind, e.Widget.Status)
		case *session.WidgetUpdatedEvent:
			fmt.Printf("[widget %s: %s]\n", e.Widget.Kind, e.Widget.Status)
		case *session.MismatchEvent:
			fmt.Printf("[mismatch: said %s, sounded %s (%.2f)]\n",
				e.Result.SemanticSignal, e.Result.AcousticSignal, e.Result.Confidence)
		case *session.ErrorEvent:
			fmt.Printf("[error %s] %s\n", e.Code, e.Message)
		case *session.SessionEndedEvent:
			fmt.Printf("[session ended: %s]\n", e.Reason)
			return
		}
	}
}
