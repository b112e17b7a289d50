package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// InputSampleRate is the rate the agent expects microphone audio at.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of the agent's synthesized speech.
	OutputSampleRate = 24000
	// FrameSize is the number of samples per capture frame.
	FrameSize = 4096

	InputMIMEType  = "audio/pcm;rate=16000"
	OutputMIMEType = "audio/pcm;rate=24000"
)

// ErrMalformedChunk is returned when an inbound audio chunk cannot be decoded
var ErrMalformedChunk = errors.New("malformed audio chunk")

// Blob is a transport-ready audio payload
type Blob struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the wire form of the blob data
func (b Blob) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// Buffer holds decoded audio as per-channel float samples in [-1, 1)
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of samples per channel
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Interleaved returns the samples interleaved by channel
func (b *Buffer) Interleaved() []float32 {
	frames := b.Frames()
	n := len(b.Channels)
	out := make([]float32, frames*n)
	for c, ch := range b.Channels {
		for i, s := range ch {
			out[i*n+c] = s
		}
	}
	return out
}

// EncodeFrame converts one capture frame of float samples into 16 kHz PCM16.
func EncodeFrame(samples []float32) Blob {
	return Blob{
		MIMEType: InputMIMEType,
		Data:     EncodePCM(samples),
	}
}

// EncodePCM converts float samples to signed 16-bit little-endian PCM.
// Samples outside [-1, 1] are clamped so 1.0 maps to 32767.
func EncodePCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := float64(s) * 32768
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// DecodeFloat32 reads little-endian IEEE-754 float32 samples, the layout
// browsers capture microphone audio in.
func DecodeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32 samples", ErrMalformedChunk, len(b))
	}
	samples := make([]float32, len(b)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return samples, nil
}

// SampleRateFromMIME reads the rate parameter of a PCM MIME type such as
// "audio/pcm;rate=24000", returning fallback when absent or invalid.
func SampleRateFromMIME(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}

// DecodeChunk decodes a base64 PCM16 chunk into a playable buffer.
func DecodeChunk(encoded string, sampleRate, channels int) (*Buffer, error) {
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedChunk, err)
	}
	return DecodePCM(pcm, sampleRate, channels)
}

// DecodePCM de-interleaves signed 16-bit little-endian PCM into per-channel
// float samples. Channel c receives samples c, c+channels, c+2*channels...
func DecodePCM(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid format %d Hz / %d channels", ErrMalformedChunk, sampleRate, channels)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d", ErrMalformedChunk, len(pcm))
	}

	total := len(pcm) / 2
	if total%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples not divisible by %d channels", ErrMalformedChunk, total, channels)
	}

	frames := total / channels
	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}

	for i := 0; i < total; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		buf.Channels[i%channels][i/channels] = float32(sample) / 32768
	}
	return buf, nil
}
