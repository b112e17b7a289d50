package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"silence", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full scale positive clamps", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"over range clamps", 1.7, 32767},
		{"under range clamps", -3, -32768},
		{"truncates toward zero", 0.99999, 32767},
		{"truncates negative toward zero", -0.00002, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := EncodeFrame([]float32{tt.in})
			assert.Equal(t, InputMIMEType, blob.MIMEType)
			require.Len(t, blob.Data, 2)
			assert.Equal(t, tt.want, int16(binary.LittleEndian.Uint16(blob.Data)))
		})
	}
}

func TestEncodeFrameLength(t *testing.T) {
	blob := EncodeFrame(make([]float32, FrameSize))
	assert.Len(t, blob.Data, FrameSize*2)

	decoded, err := base64.StdEncoding.DecodeString(blob.Base64())
	require.NoError(t, err)
	assert.Equal(t, blob.Data, decoded)
}

func TestDecodePCMDeinterleaves(t *testing.T) {
	buf, err := DecodePCM(pcmBytes(1000, -1000, 2000, -2000, 3000, -3000), OutputSampleRate, 2)
	require.NoError(t, err)

	require.Len(t, buf.Channels, 2)
	assert.Equal(t, 3, buf.Frames())
	assert.InDeltaSlice(t, []float32{1000.0 / 32768, 2000.0 / 32768, 3000.0 / 32768}, buf.Channels[0], 1e-9)
	assert.InDeltaSlice(t, []float32{-1000.0 / 32768, -2000.0 / 32768, -3000.0 / 32768}, buf.Channels[1], 1e-9)
}

func TestDecodeChunkRoundTrip(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 0.5, -1}
	blob := EncodeFrame(samples)

	buf, err := DecodeChunk(blob.Base64(), InputSampleRate, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, samples, buf.Channels[0], 1.0/32768)
	assert.Equal(t, samples, buf.Interleaved())
}

func TestDecodeChunkRoundTripSweep(t *testing.T) {
	const step = 1.0 / 32768

	samples := []float32{
		1, -1,
		1 - step, -(1 - step),
		step, -step,
		math.Nextafter32(step, 0), -math.Nextafter32(step, 0),
		math.Nextafter32(1, 0), math.Nextafter32(-1, 0),
		math.SmallestNonzeroFloat32, -math.SmallestNonzeroFloat32,
	}
	for i := -1000; i <= 1000; i++ {
		samples = append(samples, float32(i)/1000)
	}
	rng := rand.New(rand.NewPCG(7, 42))
	for range 2000 {
		samples = append(samples, rng.Float32()*2-1)
	}

	buf, err := DecodeChunk(EncodeFrame(samples).Base64(), InputSampleRate, 1)
	require.NoError(t, err)
	require.Len(t, buf.Channels[0], len(samples))

	for i, in := range samples {
		out := buf.Channels[0][i]
		assert.InDelta(t, in, out, step, "sample %d: %v", i, in)
		assert.LessOrEqual(t, math.Abs(float64(out)), math.Abs(float64(in)), "sample %d truncates toward zero", i)
		assert.GreaterOrEqual(t, out, float32(-1))
		assert.Less(t, out, float32(1))
	}

	assert.Zero(t, buf.Channels[0][6], "just under one step decodes to silence")
	assert.Equal(t, float32(step), buf.Channels[0][4])
	assert.Equal(t, float32(32767)/32768, buf.Channels[0][0])
	assert.Equal(t, float32(-1), buf.Channels[0][1])
}

func TestDecodeChunkDuration(t *testing.T) {
	buf, err := DecodePCM(make([]byte, OutputSampleRate*2), OutputSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Second, buf.Duration())

	var empty *Buffer
	assert.Zero(t, empty.Duration())
	assert.Zero(t, empty.Frames())
}

func TestDecodeChunkErrors(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		rate     int
		channels int
	}{
		{"invalid base64", "not base64!!", OutputSampleRate, 1},
		{"odd byte count", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), OutputSampleRate, 1},
		{"channel mismatch", base64.StdEncoding.EncodeToString(pcmBytes(1, 2, 3)), OutputSampleRate, 2},
		{"zero channels", base64.StdEncoding.EncodeToString(pcmBytes(1, 2)), OutputSampleRate, 0},
		{"zero rate", base64.StdEncoding.EncodeToString(pcmBytes(1, 2)), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := DecodeChunk(tt.encoded, tt.rate, tt.channels)
			require.ErrorIs(t, err, ErrMalformedChunk)
			assert.Nil(t, buf)
		})
	}
}

func TestFramer(t *testing.T) {
	f := NewFramer(4, 10)

	require.NoError(t, f.Append([]float32{1, 2, 3}))
	_, ok := f.Next()
	assert.False(t, ok)

	require.NoError(t, f.Append([]float32{4, 5, 6, 7, 8, 9}))
	assert.Equal(t, 2, f.FrameCount())

	frame, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3, 4}, frame)

	frame, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, []float32{5, 6, 7, 8}, frame)
	assert.Equal(t, 1, f.Size())

	assert.ErrorIs(t, f.Append(make([]float32, 10)), ErrBufferFull)

	f.Clear()
	assert.Zero(t, f.Size())
	assert.Equal(t, 10, f.MaxSize())
}

func TestSampleRateFromMIME(t *testing.T) {
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", OutputSampleRate},
		{"", OutputSampleRate},
		{"audio/pcm;rate=abc", OutputSampleRate},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleRateFromMIME(tt.mime, OutputSampleRate))
		})
	}
}

func TestDecodeFloat32(t *testing.T) {
	raw := make([]byte, 12)
	for i, v := range []float32{0.5, -1, 0.25} {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	samples, err := DecodeFloat32(raw)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 0.25}, samples)

	_, err = DecodeFloat32(raw[:5])
	assert.ErrorIs(t, err, ErrMalformedChunk)
}
