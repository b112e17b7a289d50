package deezer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "legião urbana", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"data":[{"id":1,"title":"Tempo Perdido","link":"https://deezer.com/track/1",
			"artist":{"name":"Legião Urbana"},"album":{"title":"Dois","cover_medium":"m.jpg","cover_big":"b.jpg"}},
			{"id":2,"title":"Índios","artist":{"name":"Legião Urbana"},"album":{"cover_medium":"m2.jpg"}}],"total":2}`)
	}))
	defer srv.Close()

	tracks, err := NewClient(srv.URL, 0).Search(context.Background(), "legião urbana")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "Tempo Perdido", tracks[0].Title)
	assert.Equal(t, "Legião Urbana", tracks[0].Artist.Name)
	assert.Equal(t, "b.jpg", tracks[0].Cover())
	assert.Equal(t, "m2.jpg", tracks[1].Cover())
}

func TestSearchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[],"total":0}`)
	}))
	defer srv.Close()

	tracks, err := NewClient(srv.URL, 0).Search(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusServiceUnavailable, ``},
		{"api error", http.StatusOK, `{"error":{"type":"Exception","message":"Quota limit exceeded"}}`},
		{"garbage", http.StatusOK, `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, 0).Search(context.Background(), "x")
			assert.Error(t, err)
		})
	}
}
