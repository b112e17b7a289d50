// Command maxxi-local talks to Maxxi through the local microphone and
// speaker, without a browser.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/citmax/maxxi-live/billing"
	"github.com/citmax/maxxi-live/deezer"
	"github.com/citmax/maxxi-live/device"
	"github.com/citmax/maxxi-live/functions"
	"github.com/citmax/maxxi-live/gemini"
	"github.com/citmax/maxxi-live/metrics"
	"github.com/citmax/maxxi-live/session"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	contextFile := flag.String("context", "", "file with the customer data block")
	document := flag.String("cpf", os.Getenv("SGP_CPF"), "customer CPF/CNPJ")
	password := flag.String("senha", os.Getenv("SGP_SENHA"), "customer central password")
	contract := flag.String("contrato", os.Getenv("SGP_CONTRATO"), "customer contract")
	voice := flag.String("voice", os.Getenv("GEMINI_VOICE"), "prebuilt voice name")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY not set")
	}

	customer := "Nome: Cliente\n"
	if *contextFile != "" {
		raw, err := os.ReadFile(*contextFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read context file")
		}
		customer = string(raw)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dev, err := device.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio devices")
	}
	defer dev.Close()

	dialer, err := gemini.NewDialer(ctx, apiKey, os.Getenv("GEMINI_MODEL"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	m := metrics.New("maxxi_local")
	tools := functions.NewDispatcher(
		billing.NewClient(billing.Options{
			BaseURL: os.Getenv("SGP_BASE_URL"),
			App:     os.Getenv("SGP_APP"),
			Token:   os.Getenv("SGP_TOKEN"),
		}),
		deezer.NewClient(os.Getenv("DEEZER_BASE_URL"), 10*time.Second),
		m,
	)

	ended := make(chan struct{}, 1)
	driver := session.NewDriver(session.DriverOptions{
		Dialer:     dialer,
		Microphone: dev.Microphone(),
		NewOutput:  dev.NewSpeaker,
		Tools:      tools,
		Metrics:    m,
		Voice:      *voice,
		ID:         uuid.NewString(),
	})

	var started atomic.Bool
	onStatus := func(s session.Status) {
		log.Info().Str("status", string(s)).Msg("📶 Status")
		switch s {
		case session.StatusListening, session.StatusSpeaking:
			started.Store(true)
		case session.StatusIdle, session.StatusError:
			if started.Load() {
				select {
				case ended <- struct{}{}:
				default:
				}
			}
		}
	}
	onVisual := func(v functions.Visual) {
		log.Info().Str("view", v.ViewType).Str("title", v.Title).Msg("🖼️ " + v.Content)
	}

	creds := billing.Credentials{Document: *document, Password: *password, Contract: *contract}
	if err := driver.Start(ctx, customer, creds, onStatus, onVisual); err != nil {
		log.Fatal().Err(err).Msg("Failed to start voice session")
	}
	log.Info().Msg("🎙️ Talk to Maxxi. Ctrl+C to hang up.")

	select {
	case <-ctx.Done():
	case <-ended:
	}
	driver.Stop()
	log.Info().Msg("👋 Call ended")
}
