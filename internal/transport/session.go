package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrQueueFull is returned when a session's send queue cannot accept another
// message without blocking.
var ErrQueueFull = errors.New("send queue full")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxInboundBytes bounds client request frames.
	maxInboundBytes = 64 * 1024
)

// Session owns the websocket I/O for one connected subscriber. Outbound
// messages pass through a bounded queue drained by the write pump; a circuit
// breaker turns a chronically full queue into cheap drops until it recovers.
type Session struct {
	ID string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	breaker *gobreaker.CircuitBreaker

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, hub *Hub, conn *websocket.Conn, queueSize int) *Session {
	s := &Session{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "session-" + id,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
		Timeout: 2 * time.Second,
	})
	return s
}

// Enqueue offers a message to the send queue without blocking. An open
// breaker or a full queue surfaces as ErrQueueFull, which callers treat as a
// drop for this session only.
func (s *Session) Enqueue(payload []byte) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		select {
		case <-s.done:
			return nil, fmt.Errorf("session %s closed", s.ID)
		case s.send <- payload:
			return nil, nil
		default:
			return nil, ErrQueueFull
		}
	})
	if err != nil {
		return fmt.Errorf("enqueue to %s: %w", s.ID, ErrQueueFull)
	}
	return nil
}

// close tears the session down once; safe to call from any goroutine.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.hub.detach(s)
	})
}

// readPump consumes client requests until the connection drops.
func (s *Session) readPump() {
	defer s.close()
	s.conn.SetReadLimit(maxInboundBytes)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", s.ID).Msg("websocket read failed")
			}
			return
		}
		s.hub.handleInbound(s, data)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Str("session", s.ID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
