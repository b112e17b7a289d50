package session

import (
	"testing"

	"github.com/citmax/maxxi-live/deezer"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from Status
		in   input
		want Status
	}{
		{StatusIdle, inputStart, StatusConnecting},
		{StatusConnecting, inputOpened, StatusConnected},
		{StatusConnected, inputOpened, StatusListening},
		{StatusConnected, inputAudio, StatusSpeaking},
		{StatusListening, inputAudio, StatusSpeaking},
		{StatusSpeaking, inputAudio, StatusSpeaking},
		{StatusSpeaking, inputPlaybackIdle, StatusListening},
		{StatusListening, inputPlaybackIdle, StatusListening},
		{StatusSpeaking, inputInterrupted, StatusListening},
		{StatusListening, inputInterrupted, StatusListening},
		{StatusSpeaking, inputToolCalls, StatusSpeaking},
		{StatusListening, inputToolCalls, StatusListening},
		{StatusSpeaking, inputFailed, StatusError},
		{StatusConnecting, inputFailed, StatusError},
		{StatusSpeaking, inputClosed, StatusIdle},
		{StatusListening, inputStop, StatusIdle},
		{StatusIdle, inputStop, StatusIdle},
		{StatusIdle, inputAudio, StatusIdle},
		{StatusError, inputStart, StatusConnecting},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, next(tt.from, tt.in))
		})
	}
}

func TestStatusActive(t *testing.T) {
	assert.False(t, StatusIdle.active())
	assert.False(t, StatusError.active())
	assert.True(t, StatusConnecting.active())
	assert.True(t, StatusSpeaking.active())
}

func TestNowPlayingFor(t *testing.T) {
	tests := []struct {
		status   Status
		title    string
		artist   string
		playback PlaybackState
	}{
		{StatusIdle, "CITmax", "Aguardando...", PlaybackNone},
		{StatusConnecting, "CITmax", "Aguardando...", PlaybackNone},
		{StatusListening, "Maxxi (IA)", "Ouvindo...", PlaybackPaused},
		{StatusSpeaking, "Maxxi (IA)", "Falando...", PlaybackPlaying},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			np := NowPlayingFor(tt.status)
			assert.Equal(t, tt.title, np.Title)
			assert.Equal(t, tt.artist, np.Artist)
			assert.Equal(t, tt.playback, np.Playback)
			assert.Equal(t, "Central do Assinante", np.Album)
			assert.Len(t, np.Artwork, 6)
			assert.Equal(t, Artwork{Src: "./icon.svg", Sizes: "96x96", Type: "image/svg+xml"}, np.Artwork[0])
			assert.Equal(t, "512x512", np.Artwork[5].Sizes)
		})
	}
}

func TestTrackNowPlaying(t *testing.T) {
	np := TrackNowPlaying(deezer.Track{
		Title:  "Tempo Perdido",
		Artist: deezer.Artist{Name: "Legião Urbana"},
		Album:  deezer.Album{Title: "Dois", CoverMedium: "m.jpg"},
	})

	assert.Equal(t, "Tempo Perdido", np.Title)
	assert.Equal(t, "Legião Urbana", np.Artist)
	assert.Equal(t, "Dois", np.Album)
	assert.Equal(t, []Artwork{{Src: "m.jpg", Sizes: "256x256", Type: "image/jpeg"}}, np.Artwork)
}
