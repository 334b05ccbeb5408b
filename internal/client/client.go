// Package client streams microphone chunks to a SOBUB server and plays the
// clips it triggers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-audio/audio"
	"golang.org/x/sync/errgroup"

	"github.com/mgoltzsche/sobub/internal/library"
	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/settings"
	"github.com/mgoltzsche/sobub/internal/soundgen"
	"github.com/mgoltzsche/sobub/internal/stt"
)

const (
	settingsRefreshInterval = 30 * time.Second
	requestTimeout          = 30 * time.Second
	maxClipSize             = library.MaxFileSize
)

// Player plays WAV data.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// Client connects to the server's websocket endpoint.
type Client struct {
	// ServerURL is the http(s) base URL of the server.
	ServerURL  string
	ClientID   string
	HTTPClient *http.Client
	Player     Player
	// Out receives a line per notification.
	Out io.Writer

	chunkSeconds atomic.Int64
}

// ChunkDuration returns the chunk length configured on the server.
func (c *Client) ChunkDuration() time.Duration {
	if s := c.chunkSeconds.Load(); s > 0 {
		return time.Duration(s) * time.Second
	}

	return time.Duration(settings.Defaults().ChunkLengthSeconds) * time.Second
}

// Run sends the recorded chunks and handles the notifications until the
// context is done or the connection is closed.
func (c *Client) Run(ctx context.Context, chunks <-chan audio.Buffer) error {
	if err := c.refreshSettings(ctx); err != nil {
		slog.Warn("failed to load server settings, using default chunk length", "err", err)
	}

	wsURL, err := c.websocketURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: c.httpClient()})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.CloseNow()

	conn.SetReadLimit(1024 * 1024)

	slog.Info(fmt.Sprintf("connected to %s", wsURL))

	g, ctx := errgroup.WithContext(ctx)
	triggers := make(chan model.Notification, 1)

	g.Go(func() error {
		defer close(triggers)
		return c.receive(ctx, conn, triggers)
	})
	g.Go(func() error {
		return c.play(ctx, conn, triggers)
	})
	g.Go(func() error {
		return c.send(ctx, conn, chunks)
	})
	g.Go(func() error {
		ticker := time.NewTicker(settingsRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := c.refreshSettings(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("failed to refresh server settings", "err", err)
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errClosed) {
		err = nil
	}

	conn.Close(websocket.StatusNormalClosure, "")

	return err
}

var errClosed = errors.New("connection closed")

func (c *Client) send(ctx context.Context, conn *websocket.Conn, chunks <-chan audio.Buffer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case buf, ok := <-chunks:
			if !ok {
				return errClosed
			}

			wav, err := stt.EncodeWAV(buf.AsIntBuffer())
			if err != nil {
				slog.Warn("failed to encode audio chunk", "err", err)
				continue
			}

			err = conn.Write(ctx, websocket.MessageBinary, wav)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send audio chunk: %w", err)
			}
		}
	}
}

func (c *Client) receive(ctx context.Context, conn *websocket.Conn, triggers chan<- model.Notification) error {
	for {
		var msg model.Notification

		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errClosed
			}

			return fmt.Errorf("read notification: %w", err)
		}

		c.print(msg)

		if msg.Type == model.NotificationTrigger {
			select {
			case triggers <- msg:
			default:
				slog.Warn(fmt.Sprintf("skipping clip %s since another one is playing", msg.Filename))
			}
		}
	}
}

// play plays triggered clips sequentially and reports the end of each
// playback which starts the cooldown on the server.
func (c *Client) play(ctx context.Context, conn *websocket.Conn, triggers <-chan model.Notification) error {
	for msg := range triggers {
		data, err := c.clipAudio(ctx, msg)
		if err != nil {
			slog.Warn("failed to download clip", "id", msg.MemeID, "err", err)
		} else if err := c.Player.Play(ctx, data); err != nil {
			slog.Warn("failed to play clip", "id", msg.MemeID, "err", err)
		}

		if ctx.Err() != nil {
			return nil
		}

		err = wsjson.Write(ctx, conn, model.ControlMessage{Type: model.ControlAudioEnded})
		if err != nil {
			return fmt.Errorf("send audio_ended: %w", err)
		}
	}

	return nil
}

// clipAudio downloads the clip. Since only WAV files can be played, other
// formats are replaced with a short tone.
func (c *Client) clipAudio(ctx context.Context, msg model.Notification) ([]byte, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/memes/%d/audio", msg.MemeID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if library.ContentType(msg.Filename) != "audio/wav" && !strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/wav") {
		slog.Debug(fmt.Sprintf("cannot play %s, playing a tone instead", msg.Filename))
		gen := &soundgen.Generator{SampleRate: stt.DefaultSampleRate}
		return gen.Tone(880, 300*time.Millisecond)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipSize))
	if err != nil {
		return nil, fmt.Errorf("read clip audio: %w", err)
	}

	return data, nil
}

func (c *Client) refreshSettings(ctx context.Context) error {
	resp, err := c.get(ctx, "/api/settings")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var s settings.Settings

	err = json.NewDecoder(resp.Body).Decode(&s)
	if err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	if s.ChunkLengthSeconds > 0 && c.chunkSeconds.Swap(int64(s.ChunkLengthSeconds)) != int64(s.ChunkLengthSeconds) {
		slog.Info(fmt.Sprintf("using chunk length of %ds", s.ChunkLengthSeconds))
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(c.ServerURL, "/")+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("GET %s: server responded with status %d", path, resp.StatusCode)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(strings.TrimSuffix(c.ServerURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q, expected http or https", u.Scheme)
	}

	u.Path += "/ws"
	if c.ClientID != "" {
		u.Path += "/" + c.ClientID
	}

	return u.String(), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	return http.DefaultClient
}

func (c *Client) print(msg model.Notification) {
	if c.Out == nil {
		return
	}

	var line string

	switch msg.Type {
	case model.NotificationTranscription:
		line = "> " + msg.Text
	case model.NotificationMatch:
		line = "matched: " + strings.Join(msg.MatchedTags, ", ")
	case model.NotificationTrigger:
		line = fmt.Sprintf("playing %s (%s)", msg.Filename, strings.Join(msg.MatchedTags, ", "))
	case model.NotificationDebug:
		line = fmt.Sprintf("[%s] %s", msg.Level, msg.Message)
	default:
		return
	}

	fmt.Fprintln(c.Out, line)
}
