package session

import (
	"fmt"

	"github.com/citmax/maxxi-live/deezer"
)

// PlaybackState mirrors the host media-session playback state
type PlaybackState string

const (
	PlaybackNone    PlaybackState = "none"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackPlaying PlaybackState = "playing"
)

const (
	mediaAlbum    = "Central do Assinante"
	mediaIcon     = "./icon.svg"
	mediaIconMIME = "image/svg+xml"
)

var mediaIconSizes = []int{96, 128, 192, 256, 384, 512}

// Artwork is one image offered to the host display
type Artwork struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

// NowPlaying is the metadata shown on lock screens, car and watch displays
type NowPlaying struct {
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Album    string        `json:"album"`
	Artwork  []Artwork     `json:"artwork"`
	Playback PlaybackState `json:"playbackState"`
}

// MediaSession is the host's now-playing surface. Implementations are best
// effort and must never block the session.
type MediaSession interface {
	Update(np NowPlaying)
	SetStopHandler(stop func())
	Reset()
}

// NowPlayingFor returns the display for a session phase
func NowPlayingFor(s Status) NowPlaying {
	np := NowPlaying{
		Title:    "CITmax",
		Artist:   "Aguardando...",
		Album:    mediaAlbum,
		Artwork:  iconArtwork(),
		Playback: PlaybackNone,
	}

	switch s {
	case StatusSpeaking:
		np.Title, np.Artist, np.Playback = "Maxxi (IA)", "Falando...", PlaybackPlaying
	case StatusListening:
		np.Title, np.Artist, np.Playback = "Maxxi (IA)", "Ouvindo...", PlaybackPaused
	}
	return np
}

// TrackNowPlaying returns the display for a music search hit
func TrackNowPlaying(t deezer.Track) NowPlaying {
	np := NowPlaying{
		Title:    t.Title,
		Artist:   t.Artist.Name,
		Album:    t.Album.Title,
		Playback: PlaybackPlaying,
	}
	if t.Album.CoverMedium != "" {
		np.Artwork = []Artwork{{Src: t.Album.CoverMedium, Sizes: "256x256", Type: "image/jpeg"}}
	}
	return np
}

func iconArtwork() []Artwork {
	art := make([]Artwork, 0, len(mediaIconSizes))
	for _, size := range mediaIconSizes {
		art = append(art, Artwork{
			Src:   mediaIcon,
			Sizes: fmt.Sprintf("%dx%d", size, size),
			Type:  mediaIconMIME,
		})
	}
	return art
}

// NoMediaSession is used when the host has no now-playing surface
type NoMediaSession struct{}

func (NoMediaSession) Update(NowPlaying)     {}
func (NoMediaSession) SetStopHandler(func()) {}
func (NoMediaSession) Reset()                {}
