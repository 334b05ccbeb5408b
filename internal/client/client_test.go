package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-audio/audio"
	"github.com/stretchr/testify/require"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/soundgen"
)

type fakePlayer struct {
	mutex  sync.Mutex
	played [][]byte
}

func (p *fakePlayer) Play(_ context.Context, wav []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.played = append(p.played, wav)
	return nil
}

func (p *fakePlayer) Played() [][]byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([][]byte(nil), p.played...)
}

type fakeServer struct {
	*httptest.Server
	clip     []byte
	clipType string
	chunks   chan []byte
	controls chan model.ControlMessage
}

func newFakeServer(t *testing.T, clipType string, clip []byte) *fakeServer {
	t.Helper()
	s := &fakeServer{
		clip:     clip,
		clipType: clipType,
		chunks:   make(chan []byte, 5),
		controls: make(chan model.ControlMessage, 5),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/settings", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chunk_length_seconds":5}`))
	})
	mux.HandleFunc("GET /api/memes/7/audio", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", s.clipType)
		w.Write(s.clip)
	})
	mux.HandleFunc("GET /ws/{clientId}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("clientId") != "mic" {
			http.Error(w, "unexpected client id", http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		_, chunk, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.chunks <- chunk

		wsjson.Write(ctx, conn, model.Notification{Type: model.NotificationTranscription, Text: "goal"})
		wsjson.Write(ctx, conn, model.Notification{Type: model.NotificationTrigger, MemeID: 7, Filename: "goal" + extension(s.clipType), MatchedTags: []string{"goal"}})

		var msg model.ControlMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		s.controls <- msg

		conn.Close(websocket.StatusNormalClosure, "")
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func extension(contentType string) string {
	if contentType == "audio/wav" {
		return ".wav"
	}
	return ".mp3"
}

func receiveWithin[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		var zero T
		return zero
	}
}

func TestClient(t *testing.T) {
	gen := &soundgen.Generator{SampleRate: 16000}
	wav, err := gen.Tone(440, 200*time.Millisecond)
	require.NoError(t, err)

	for _, tc := range []struct {
		name       string
		clipType   string
		clip       []byte
		expectClip bool
	}{
		{"wav clip", "audio/wav", wav, true},
		{"mp3 clip plays tone", "audio/mpeg", append([]byte("ID3"), make([]byte, 64)...), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newFakeServer(t, tc.clipType, tc.clip)
			player := &fakePlayer{}
			var out bytes.Buffer
			testee := &Client{ServerURL: srv.URL, ClientID: "mic", Player: player, Out: &out}

			chunks := make(chan audio.Buffer, 1)
			chunks <- &audio.IntBuffer{
				Format:         &audio.Format{SampleRate: 16000, NumChannels: 1},
				Data:           make([]int, 1600),
				SourceBitDepth: 16,
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			done := make(chan error, 1)
			go func() {
				done <- testee.Run(ctx, chunks)
			}()

			chunk := receiveWithin(t, srv.chunks)
			require.Equal(t, "RIFF", string(chunk[:4]))

			require.Equal(t, model.ControlMessage{Type: model.ControlAudioEnded}, receiveWithin(t, srv.controls))
			require.NoError(t, receiveWithin(t, done))

			played := player.Played()
			require.Len(t, played, 1)
			if tc.expectClip {
				require.Equal(t, tc.clip, played[0])
			} else {
				require.Equal(t, "RIFF", string(played[0][:4]))
			}
			require.Equal(t, 5*time.Second, testee.ChunkDuration())
			require.Contains(t, out.String(), "> goal\n")
			require.Contains(t, out.String(), "playing goal")
		})
	}
}

func TestWebsocketURL(t *testing.T) {
	for _, tc := range []struct {
		serverURL string
		clientID  string
		expected  string
		valid     bool
	}{
		{"http://localhost:8443", "", "ws://localhost:8443/ws", true},
		{"https://sobub.local/", "mic 1", "wss://sobub.local/ws/mic%201", true},
		{"ftp://sobub.local", "", "", false},
	} {
		t.Run(tc.serverURL, func(t *testing.T) {
			u, err := (&Client{ServerURL: tc.serverURL, ClientID: tc.clientID}).websocketURL()
			if !tc.valid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, u)
		})
	}
}

func TestChunkDurationDefault(t *testing.T) {
	require.Equal(t, 3*time.Second, (&Client{}).ChunkDuration())
}
