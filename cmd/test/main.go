package main

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"math"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/citmax/maxxi-live/billing"
	"github.com/citmax/maxxi-live/messages"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// serverMessage mirrors messages.ServerMessage with a raw payload
type serverMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// AudioPlayer streams audio via sox
type AudioPlayer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	closed bool
}

func NewAudioPlayer() *AudioPlayer {
	cmd := exec.Command("sox",
		"-t", "raw",
		"-r", "24000",
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
		"-d",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Error().Err(err).Msg("sox stdin error")
		return nil
	}

	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msg("sox start error")
		return nil
	}

	return &AudioPlayer{cmd: cmd, stdin: stdin}
}

func (p *AudioPlayer) Play(audioData []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.stdin == nil {
		return
	}
	_, _ = p.stdin.Write(audioData)
}

func (p *AudioPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Wait()
	}
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "WebSocket server URL")
	audioFile := flag.String("file", "examples/user.pcm", "16kHz mono PCM16 audio to send (PCM or WAV)")
	contextFile := flag.String("context", "", "file with the customer data block")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	log.Info().Msgf("🔌 Connecting to %s...", *serverURL)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	log.Info().Msg("✅ Connected!")

	player := NewAudioPlayer()
	if player == nil {
		log.Fatal().Msg("Failed to create audio player (is sox installed?)")
	}
	defer player.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	listening := make(chan struct{})
	var listeningOnce sync.Once

	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Msg("Read error")
				return
			}

			var msg serverMessage
			if err := sonic.Unmarshal(message, &msg); err != nil {
				log.Warn().Err(err).Msg("Parse error")
				continue
			}

			switch msg.Type {
			case messages.TypeAudio:
				var payload messages.AudioResponsePayload
				_ = sonic.Unmarshal(msg.Payload, &payload)
				audioBytes, err := base64.StdEncoding.DecodeString(payload.Data)
				if err == nil {
					log.Info().Uint64("id", payload.ID).Int64("start_ms", payload.StartAt).Msgf("🔊 Playing audio: %d bytes", len(audioBytes))
					player.Play(audioBytes)
				}

			case messages.TypeAudioStop:
				log.Info().RawJSON("payload", msg.Payload).Msg("✋ Audio interrupted")

			case messages.TypeStatus:
				var payload messages.StatusPayload
				_ = sonic.Unmarshal(msg.Payload, &payload)
				log.Info().Str("status", payload.Status).Msg("📊 Status")
				if payload.Status == "listening" {
					listeningOnce.Do(func() { close(listening) })
				}

			case messages.TypeVisual, messages.TypeMedia:
				log.Info().Str("type", msg.Type).RawJSON("payload", msg.Payload).Msg("🖼️ Display")

			case messages.TypeError:
				log.Error().RawJSON("payload", msg.Payload).Msg("❌ Error")
			}
		}
	}()

	customer := "Nome: Cliente Teste\n"
	if *contextFile != "" {
		raw, err := os.ReadFile(*contextFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read context file")
		}
		customer = string(raw)
	}

	start := map[string]any{
		"type": messages.TypeStart,
		"payload": messages.StartPayload{
			Context: customer,
			Credentials: billing.Credentials{
				Document: os.Getenv("SGP_CPF"),
				Password: os.Getenv("SGP_SENHA"),
				Contract: os.Getenv("SGP_CONTRATO"),
			},
			Microphone: messages.MicrophoneGranted,
		},
	}
	if err := conn.WriteJSON(start); err != nil {
		log.Fatal().Err(err).Msg("Failed to start voice session")
	}

	select {
	case <-listening:
	case <-done:
		return
	case <-time.After(15 * time.Second):
		log.Fatal().Msg("⏰ Timeout waiting for the agent")
	}

	log.Info().Msgf("📤 Sending audio file: %s", *audioFile)
	audioData, err := loadAudioFile(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load audio")
	}

	// Stream as float32 frames at real-time pace
	chunkSize := 3200 // 100ms of PCM16 at 16kHz
	for i := 0; i < len(audioData); i += chunkSize {
		end := min(i+chunkSize, len(audioData))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm16ToFloat32(audioData[i:end])); err != nil {
			log.Warn().Err(err).Msg("Send error")
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	log.Info().Msg("✅ Audio sent, waiting for response...")

	select {
	case <-done:
		log.Info().Msg("Connection closed")
	case <-interrupt:
		log.Info().Msg("👋 Interrupted, closing...")
		_ = conn.WriteJSON(map[string]any{
			"type":    messages.TypeControl,
			"payload": messages.ControlPayload{Action: messages.ActionStop},
		})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-time.After(30 * time.Second):
		log.Info().Msg("⏰ Timeout waiting for response")
	}
}

func pcm16ToFloat32(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float32(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768
		binary.LittleEndian.PutUint32(out[i*2:], math.Float32bits(v))
	}
	return out
}

// loadAudioFile loads PCM or WAV file and returns raw PCM bytes
func loadAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Check if it's a WAV file (starts with "RIFF")
	if len(data) > 44 && string(data[0:4]) == "RIFF" {
		// Skip WAV header (44 bytes for standard WAV)
		log.Info().Msg("📁 Detected WAV file, skipping header")
		return data[44:], nil
	}

	// Assume raw PCM
	log.Info().Msg("📁 Detected raw PCM file")
	return data, nil
}
