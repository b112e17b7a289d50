package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/citmax/maxxi-live/audio"
	"github.com/citmax/maxxi-live/session"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

const captureQueue = 32

// Microphone opens the default capture device at the agent's input rate
type Microphone struct {
	ctx malgo.Context
}

// Open starts capturing 16kHz mono float32 audio in fixed-size frames
func (m *Microphone) Open(context.Context) (session.Capture, error) {
	c := &capture{
		frames: make(chan []float32, captureQueue),
		framer: audio.NewFramer(audio.FrameSize, audio.FrameSize*captureQueue),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = audio.InputSampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	dev, err := malgo.InitDevice(m.ctx, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) { c.feed(input) },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init microphone: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}
	c.device = dev
	return c, nil
}

type capture struct {
	device *malgo.Device
	frames chan []float32

	mu     sync.Mutex
	framer *audio.Framer
	closed bool
}

func (c *capture) Frames() <-chan []float32 { return c.frames }

// feed runs on the audio thread and must not block
func (c *capture) feed(input []byte) {
	samples, err := audio.DecodeFloat32(input)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.framer.Append(samples); err != nil {
		c.framer.Clear()
		log.Warn().Msg("⚠️ Microphone backlog full, dropping audio")
		return
	}
	for {
		frame, ok := c.framer.Next()
		if !ok {
			return
		}
		select {
		case c.frames <- frame:
		default:
			log.Warn().Msg("⚠️ Capture queue full, dropping frame")
		}
	}
}

func (c *capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.device.Stop()
	c.device.Uninit()

	c.mu.Lock()
	close(c.frames)
	c.framer.Clear()
	c.mu.Unlock()
	return err
}
