package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/mgoltzsche/sobub/internal/session"
)

const (
	maxMessageSize = 16 * 1024 * 1024
	writeTimeout   = 10 * time.Second
	// ClientIDHeader carries the session ID assigned by the server.
	ClientIDHeader = "X-Sobub-Client-Id"
)

func (s *Server) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	clientID := req.PathValue("clientId")
	if clientID == "" {
		clientID = session.NewID()
	}

	w.Header().Set(ClientIDHeader, clientID)

	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: s.AllowedOrigins,
	})
	if err != nil {
		slog.Warn("failed to accept websocket connection", "err", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(maxMessageSize)

	sess := s.Sessions.Open(clientID)
	defer sess.Close()

	go writeNotifications(sess, conn)

	err = readMessages(sess.Context(), conn, sess)
	if err != nil {
		slog.Warn(fmt.Sprintf("closing websocket connection of client %s", clientID), "err", err)
		return
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

// readMessages dispatches binary messages as audio and text messages as
// control messages until the connection is closed.
func readMessages(ctx context.Context, conn *websocket.Conn, sess *session.Session) error {
	for {
		msgType, reader, err := conn.Reader(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}

			if errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("read websocket message: %w", err)
		}

		b, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("read websocket message: %w", err)
		}

		switch msgType {
		case websocket.MessageBinary:
			sess.HandleAudio(b)
		case websocket.MessageText:
			sess.HandleControl(b)
		}
	}
}
