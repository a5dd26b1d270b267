package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/event"
	"github.com/crsh/server/internal/game/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The session token is the credential; origin is not.
		return true
	},
}

// socketMessage is a client-to-server command on the match socket.
type socketMessage struct {
	Type   string  `json:"type"`
	CardID card.ID `json:"card_id"`
}

// handleSocket upgrades the connection, binds it to the player's seat,
// and runs the read loop until the client disconnects. A write
// goroutine drains the seat's event channel and sends pings on the
// heartbeat interval; a missed pong past the timeout kills the read.
func (g *Gateway) handleSocket(w http.ResponseWriter, r *http.Request) {
	matchName := chi.URLParam(r, "match")
	token, err := sessionToken(r)
	if err != nil {
		g.writeError(w, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	deadline := func() time.Time { return time.Now().Add(g.cfg.HeartbeatTimeout) }
	_ = ws.SetReadDeadline(deadline())
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(deadline())
	})

	conn := session.NewConn(g.co.EventBuffer())
	if _, err := g.co.SocketConnect(r.Context(), token, matchName, conn); err != nil {
		g.logger.Debug("socket connect rejected",
			zap.String("match", matchName),
			zap.Error(err),
		)
		conn.Close()
		return
	}

	logger := g.logger.With(
		zap.String("match", matchName),
		zap.String("remote", r.RemoteAddr),
	)
	logger.Info("socket connected")

	writeDone := make(chan struct{})
	go g.writePump(ws, conn, logger, writeDone)

	g.readLoop(ws, conn, token, matchName, logger)

	// The client is gone: free the seat and unblock the write pump.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.co.Disconnect(ctx, token); err != nil {
		logger.Debug("disconnect", zap.Error(err))
	}
	conn.Close()
	<-writeDone
	logger.Info("socket closed")
}

// writePump forwards buffered game events to the socket and keeps the
// heartbeat going. It exits when the event channel closes or a write
// fails.
func (g *Gateway) writePump(ws *websocket.Conn, conn *session.Conn, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-conn.Events():
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.HeartbeatTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, e); err != nil {
				logger.Debug("event write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.HeartbeatTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readLoop parses and dispatches match commands until the socket dies.
func (g *Gateway) readLoop(ws *websocket.Conn, conn *session.Conn, token session.Token, matchName string, logger *zap.Logger) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		var msg socketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.pushError(conn, "malformed message")
			continue
		}

		ctx := context.Background()
		var cmdErr error
		switch msg.Type {
		case "startGame":
			cmdErr = g.co.StartMatch(ctx, token, matchName)
		case "submitCard":
			cmdErr = g.co.SubmitCard(ctx, token, matchName, msg.CardID)
		case "revealCard":
			cmdErr = g.co.RevealCard(ctx, token, matchName, msg.CardID)
		case "czarChoice":
			cmdErr = g.co.CzarChoice(ctx, token, matchName, msg.CardID)
		default:
			g.pushError(conn, "unknown message type")
			continue
		}

		if cmdErr != nil {
			logger.Debug("command rejected",
				zap.String("command", msg.Type),
				zap.Error(cmdErr),
			)
			g.pushError(conn, cmdErr.Error())
		}
	}
}

type socketError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// pushError delivers an error to the client through the same channel as
// game events, so there is a single socket writer.
func (g *Gateway) pushError(conn *session.Conn, message string) {
	payload, err := json.Marshal(socketError{Type: "error", Message: message})
	if err != nil {
		return
	}
	if err := conn.Push(event.Event(payload)); err != nil {
		g.logger.Debug("dropping error event", zap.Error(err))
	}
}
