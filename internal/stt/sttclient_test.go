package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	var fields map[string]string
	var filename, auth string
	var fileContent []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		auth = r.Header.Get("Authorization")
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}

		f, h, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		filename = h.Filename
		fileContent, err = io.ReadAll(f)
		require.NoError(t, err)

		if string(fileContent) == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid audio"))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"that goal was amazing"}`))
	}))
	defer srv.Close()

	testee := &Client{URL: srv.URL, Model: "whisper-1", APIKey: "secret", Client: srv.Client()}

	result, err := testee.Transcribe(context.Background(), []byte("webm data"), Request{Language: "pt", Format: FormatWebM})
	require.NoError(t, err)
	require.Equal(t, "that goal was amazing", result.Text)
	require.Equal(t, "audio.webm", filename)
	require.Equal(t, []byte("webm data"), fileContent)
	require.Equal(t, "Bearer secret", auth)
	require.Equal(t, map[string]string{"model": "whisper-1", "language": "pt", "response_format": "json"}, fields)

	_, err = testee.Transcribe(context.Background(), []byte("bad"), Request{Format: FormatWAV})
	require.Error(t, err)
	require.True(t, IsRejected(err))
	require.Equal(t, "audio.wav", filename)
	require.NotContains(t, fields, "language")
}

func TestIsRejected(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		expected bool
	}{
		{"bad request", &StatusError{StatusCode: 400}, true},
		{"unprocessable", &StatusError{StatusCode: 422}, true},
		{"rate limited", &StatusError{StatusCode: 429}, false},
		{"server error", &StatusError{StatusCode: 500}, false},
		{"other", io.EOF, false},
		{"nil", nil, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, IsRejected(tc.err))
		})
	}
}
