// Package device runs voice sessions on the local sound card: malgo for
// the microphone and oto for the speaker.
package device

import (
	"fmt"
	"time"

	"github.com/citmax/maxxi-live/audio"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// Device owns the audio contexts of the process. oto allows a single
// context per process, so speakers for successive sessions share it.
type Device struct {
	malgoCtx *malgo.AllocatedContext
	otoCtx   *oto.Context
}

// Open initializes capture and playback
func Open() (*Device, error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.OutputSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	<-ready

	log.Info().Msg("🎧 Audio devices ready")
	return &Device{malgoCtx: malgoCtx, otoCtx: otoCtx}, nil
}

// Microphone returns the capture side of the device
func (d *Device) Microphone() *Microphone {
	return &Microphone{ctx: d.malgoCtx.Context}
}

// NewSpeaker starts a player for one voice session
func (d *Device) NewSpeaker() (audio.Output, error) {
	return newSpeaker(d.otoCtx), nil
}

// Close releases the capture context. The oto context lives until exit.
func (d *Device) Close() error {
	err := d.malgoCtx.Uninit()
	d.malgoCtx.Free()
	return err
}
