package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/citmax/maxxi-live/billing"
	"github.com/citmax/maxxi-live/deezer"
	"github.com/citmax/maxxi-live/functions"
	"github.com/citmax/maxxi-live/gemini"
	"github.com/citmax/maxxi-live/live"
	"github.com/citmax/maxxi-live/session"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	prompt := flag.String("say", "Olá! Qual música está tocando? Procure Garota de Ipanema no Deezer.", "text turn to send")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dialer, err := gemini.NewDialer(ctx, apiKey, os.Getenv("GEMINI_MODEL"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dialer")
	}

	customer := "Nome: Cliente Teste\n"
	conn, err := dialer.Dial(ctx, live.Config{
		SystemInstruction: session.BuildSystemPrompt(customer, session.Greeting(customer, time.Now())),
		Tools:             functions.Tools(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	proxy := conn.(*gemini.Proxy)
	tools := functions.NewDispatcher(billing.NewClient(billing.Options{}), deezer.NewClient("", 10*time.Second), nil)
	sess := functions.Session{
		OnVisual: func(v functions.Visual) {
			log.Info().Str("view", v.ViewType).Str("title", v.Title).Msg("🖼️ Visual")
		},
	}

	if err := proxy.SendText(*prompt); err != nil {
		log.Fatal().Err(err).Msg("Failed to send text")
	}
	log.Info().Msg("Waiting for response...")

	var audioBytes int
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("⏰ Timeout")
			return
		case ev, ok := <-proxy.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case live.AudioChunk:
				audioBytes += len(e.Data)
			case live.ToolCallBatch:
				for _, c := range e.Calls {
					log.Info().Str("tool", c.Name).Interface("args", c.Args).Msg("🔧 Tool call")
				}
				if err := proxy.SendToolResults(tools.Dispatch(ctx, sess, e.Calls)); err != nil {
					log.Error().Err(err).Msg("Failed to send tool results")
				}
			case live.TurnComplete:
				log.Info().Int("audio_b64_bytes", audioBytes).Msg("✅ Turn complete")
				return
			case live.Failed:
				log.Error().Err(e.Err).Msg("❌ Error")
				return
			case live.Closed:
				log.Info().Str("reason", e.Reason).Msg("Connection closed")
				return
			}
		}
	}
}
