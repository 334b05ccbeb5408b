package server

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mgoltzsche/sobub/internal/session"
)

// writeNotifications is the only writer of the connection.
// It sends the session's notifications as JSON text messages in queue order.
func writeNotifications(sess *session.Session, conn *websocket.Conn) {
	ctx := sess.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sess.Outbound():
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()

			if err != nil {
				slog.Warn("failed to write websocket message", "client", sess.ID, "err", err)
				sess.Close()
				return
			}
		}
	}
}
