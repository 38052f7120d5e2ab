package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/protocol"
	"kartetris.ai/internal/sim/sched"
)

// Conn is a relay websocket. Send may be called from any goroutine.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger
	mu  sync.Mutex
}

func Dial(ctx context.Context, url string, logger *slog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws, log: logging.OrDiscard(logger)}, nil
}

func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

// Pump reads relay frames and applies them to s on loop, in order, until the
// connection fails or ctx is done.
func (c *Conn) Pump(ctx context.Context, loop *sched.Loop, s *Session) error {
	go func() {
		<-ctx.Done()
		_ = c.ws.Close()
	}()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return nil
			}
			return err
		}
		f, err := protocol.DecodeFrame(msg)
		if err != nil {
			c.log.Warn("bad frame", "err", err)
			continue
		}
		if err := loop.Call(ctx, func() {
			if err := s.HandleFrame(f); err != nil {
				c.log.Warn("handle frame", "event", f.Event, "err", err)
			}
		}); err != nil {
			return err
		}
	}
}
