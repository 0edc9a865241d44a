package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Run serves an open session until the client disconnects, the idle timeout
// passes, ctx is cancelled or the session is closed. It blocks; the socket is
// closed when it returns.
func (s *Session) Run(ctx context.Context) {
	if s.State() != StateOpen {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump()
	}()

	// Cancellation from outside closes the session, which stops both pumps.
	go func() {
		select {
		case <-ctx.Done():
			s.closeWith(websocket.CloseGoingAway)
		case <-s.done:
		}
	}()

	s.readPump(ctx)
	s.Close()
	wg.Wait()
}

func (s *Session) readPump(ctx context.Context) {
	conn := s.conn
	conn.SetReadLimit(s.cfg.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug("Socket read ended", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		// Pace instead of dropping so inbound order is kept.
		if err := s.limiter.Wait(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Debug("Frame pacing aborted", "error", err)
			}
			return
		}

		if err := s.Handle(ctx, data); err != nil {
			return
		}
	}
}

func (s *Session) writePump() {
	conn := s.conn
	ticker := time.NewTicker(s.cfg.IdleTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("Socket write failed", "error", err)
				s.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("Ping failed", "error", err)
				s.Close()
				return
			}

		case <-s.done:
			s.mu.Lock()
			code := s.closeCode
			s.mu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
			return
		}
	}
}
