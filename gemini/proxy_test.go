package gemini

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/citmax/maxxi-live/audio"
	"github.com/citmax/maxxi-live/live"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeSession struct {
	incoming chan *genai.LiveServerMessage
	closeErr chan error

	mu        sync.Mutex
	audio     []genai.LiveRealtimeInput
	responses []genai.LiveToolResponseInput
	closed    bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		incoming: make(chan *genai.LiveServerMessage, 8),
		closeErr: make(chan error, 1),
	}
}

func (f *fakeSession) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg := <-f.incoming:
		return msg, nil
	case err := <-f.closeErr:
		return nil, err
	}
}

func (f *fakeSession) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, input)
	return nil
}

func (f *fakeSession) SendToolResponse(input genai.LiveToolResponseInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, input)
	return nil
}

func (f *fakeSession) SendClientContent(genai.LiveSendClientContentParameters) error {
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.closeErr <- errors.New("use of closed network connection")
	return nil
}

func TestTranslateOrder(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: []byte{1, 2}, MIMEType: "audio/pcm;rate=24000"}},
				{Text: "ignored"},
				{InlineData: &genai.Blob{Data: []byte{3, 4}}},
			}},
			TurnComplete: true,
		},
	}

	events := translate(msg)
	require.Len(t, events, 3)
	assert.Equal(t, live.AudioChunk{Data: base64.StdEncoding.EncodeToString([]byte{1, 2}), MIMEType: "audio/pcm;rate=24000"}, events[0])
	assert.Equal(t, live.AudioChunk{Data: base64.StdEncoding.EncodeToString([]byte{3, 4}), MIMEType: audio.OutputMIMEType}, events[1])
	assert.Equal(t, live.TurnComplete{}, events[2])
}

func TestTranslateToolCallsAndInterruption(t *testing.T) {
	events := translate(&genai.LiveServerMessage{
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "a", Name: "checkInvoices"},
			{ID: "b", Name: "searchDeezer", Args: map[string]any{"query": "Evidências"}},
		}},
	})
	require.Len(t, events, 1)
	batch, ok := events[0].(live.ToolCallBatch)
	require.True(t, ok)
	assert.Equal(t, []live.ToolCall{
		{ID: "a", Name: "checkInvoices"},
		{ID: "b", Name: "searchDeezer", Args: map[string]any{"query": "Evidências"}},
	}, batch.Calls)

	events = translate(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{Interrupted: true}})
	assert.Equal(t, []live.Event{live.Interrupted{}}, events)
}

func TestProxyReceiveLoop(t *testing.T) {
	session := newFakeSession()
	p := newProxy(session)
	go p.receive()

	session.incoming <- &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{Interrupted: true}}
	assert.Equal(t, live.Interrupted{}, <-p.Events())

	session.closeErr <- errors.New("websocket: close 1011")
	ev := <-p.Events()
	failed, ok := ev.(live.Failed)
	require.True(t, ok)
	assert.ErrorContains(t, failed.Err, "close 1011")

	_, open := <-p.Events()
	assert.False(t, open)
}

func TestProxySendAndClose(t *testing.T) {
	session := newFakeSession()
	p := newProxy(session)

	blob := audio.EncodeFrame([]float32{0.5})
	require.NoError(t, p.SendAudio(blob))
	require.NoError(t, p.SendToolResults([]live.ToolResult{{ID: "x", Name: "showVisualInfo", Result: "ok"}}))

	require.Len(t, session.audio, 1)
	assert.Equal(t, audio.InputMIMEType, session.audio[0].Audio.MIMEType)
	assert.Equal(t, blob.Data, session.audio[0].Audio.Data)

	require.Len(t, session.responses, 1)
	fr := session.responses[0].FunctionResponses[0]
	assert.Equal(t, "x", fr.ID)
	assert.Equal(t, map[string]any{"result": "ok"}, fr.Response)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, session.closed)
	assert.Error(t, p.SendAudio(blob))
	assert.Error(t, p.SendToolResults(nil))
}
