package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	maxMessage = 256 * 1024
)

type Server struct {
	hub *Hub
	log *slog.Logger

	upgrader websocket.Upgrader
	queue    int
}

func NewServer(h *Hub, logger *slog.Logger) *Server {
	return &Server{
		hub:   h,
		log:   logging.OrDiscard(logger),
		queue: 64,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // browsers connect cross-origin
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.Debug("ws upgrade", "err", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessage)

		peer := NewPeer(uuid.NewString(), s.queue)
		if err := s.hub.Join(peer); err != nil {
			if b, encErr := protocol.Encode(protocol.EventError, protocol.ErrorMsg{Code: protocol.ErrInternal, Message: err.Error()}); encErr == nil {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.TextMessage, b)
			}
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-peer.Out():
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			f, err := protocol.DecodeFrame(msg)
			if err != nil {
				s.hub.Reject(peer, protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			s.hub.Dispatch(peer, f)
		}

		// Cleanup.
		cancel()
		s.hub.Leave(peer)
	}
}
