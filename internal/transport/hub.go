// Package transport is the websocket boundary of the fan-out service: it
// owns session lifecycles, decodes subscribe/unsubscribe requests, and hands
// admitted deltas to the per-session send queues.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/blotterfeed/blotterfeed/internal/delta"
	"github.com/blotterfeed/blotterfeed/internal/filter"
	"github.com/blotterfeed/blotterfeed/internal/metrics"
	"github.com/blotterfeed/blotterfeed/internal/registry"
	"github.com/blotterfeed/blotterfeed/internal/store"
)

// Hub tracks connected sessions and implements the dispatcher's Sender
// contract.
type Hub struct {
	store     *store.Store
	registry  *registry.Registry
	metrics   *metrics.Registry
	queueSize int

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub creates a hub over the store and registry. queueSize bounds each
// session's outbound queue.
func NewHub(st *store.Store, reg *registry.Registry, m *metrics.Registry, queueSize int) *Hub {
	return &Hub{
		store:     st,
		registry:  reg,
		metrics:   m,
		queueSize: queueSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// HandleWS upgrades an HTTP request into a subscriber session.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s := newSession(uuid.NewString(), h, conn, h.queueSize)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	h.registry.Register(s.ID)
	if h.metrics != nil {
		h.metrics.ActiveSessions.Set(float64(h.registry.Sessions()))
	}
	log.Info().Str("session", s.ID).Str("remote", r.RemoteAddr).Msg("subscriber connected")

	if payload, err := json.Marshal(connectedMessage{Type: MsgConnected, SessionID: s.ID}); err == nil {
		s.Enqueue(payload)
	}

	go s.writePump()
	go s.readPump()
}

// detach removes the session from the hub and the registry. Deltas already
// queued for the session are dropped with it.
func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	h.registry.Unregister(s.ID)
	if h.metrics != nil {
		h.metrics.ActiveSessions.Set(float64(h.registry.Sessions()))
		h.metrics.ActiveSubscriptions.Set(float64(h.registry.Subscriptions()))
	}
	log.Info().Str("session", s.ID).Msg("subscriber disconnected")
}

// SendUpdate implements dispatch.Sender.
func (h *Hub) SendUpdate(sessionID string, d *delta.Delta) error {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send update: session %s not connected", sessionID)
	}
	payload, err := json.Marshal(updateMessage{Type: MsgInstrumentUpdate, Data: d})
	if err != nil {
		return fmt.Errorf("send update: %w", err)
	}
	return s.Enqueue(payload)
}

// CloseAll tears down every session, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	open := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.RUnlock()
	for _, s := range open {
		s.close()
	}
}

// handleInbound decodes and executes one client request.
func (h *Hub) handleInbound(s *Session, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendJSON(ackMessage{Type: MsgError, Success: false, Message: "malformed request"})
		return
	}
	switch msg.Type {
	case MsgSubscribe:
		h.handleSubscribe(s, &msg)
	case MsgUnsubscribe:
		h.handleUnsubscribe(s, &msg)
	default:
		s.sendJSON(ackMessage{Type: MsgError, Success: false, Message: fmt.Sprintf("unknown request type %q", msg.Type)})
	}
}

func (h *Hub) handleSubscribe(s *Session, msg *inboundMessage) {
	if len(msg.InstrumentIDs) == 0 {
		s.sendJSON(ackMessage{Type: MsgSubscribeResponse, Success: false, Message: "instrumentIds must be non-empty"})
		return
	}
	if msg.UpdateFrequency < 0 {
		s.sendJSON(ackMessage{Type: MsgSubscribeResponse, Success: false, Message: "updateFrequency must be non-negative"})
		return
	}
	expr, err := filter.Parse(msg.Filter)
	if err != nil {
		s.sendJSON(ackMessage{Type: MsgSubscribeResponse, Success: false, Message: err.Error()})
		return
	}
	sub := &registry.Subscription{
		ID:            uuid.NewString(),
		InstrumentIDs: msg.InstrumentIDs,
		Filter:        expr,
		Frequency:     msg.UpdateFrequency,
	}

	// Collect the initial snapshots before the subscription goes live so the
	// first instrument-update a client sees never precedes its initial data.
	snapshots := h.initialData(msg.InstrumentIDs, expr)

	s.sendJSON(ackMessage{
		Type:           MsgSubscribeResponse,
		Success:        true,
		SubscriptionID: sub.ID,
		Message:        fmt.Sprintf("subscribed to %d instruments", len(msg.InstrumentIDs)),
	})
	s.sendJSON(initialDataMessage{Type: MsgInitialData, SubscriptionID: sub.ID, Instruments: snapshots})

	if err := h.registry.AddSubscription(s.ID, sub); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("subscription registration failed")
		return
	}
	if h.metrics != nil {
		h.metrics.ActiveSubscriptions.Set(float64(h.registry.Subscriptions()))
	}
	log.Info().
		Str("session", s.ID).
		Str("subscription", sub.ID).
		Int("instruments", len(msg.InstrumentIDs)).
		Msg("subscription added")
}

func (h *Hub) handleUnsubscribe(s *Session, msg *inboundMessage) {
	if msg.SubscriptionID == "" {
		s.sendJSON(ackMessage{Type: MsgUnsubscribeResponse, Success: false, Message: "subscriptionId is required"})
		return
	}
	if err := h.registry.RemoveSubscription(s.ID, msg.SubscriptionID); err != nil {
		s.sendJSON(ackMessage{Type: MsgUnsubscribeResponse, Success: false, Message: err.Error()})
		return
	}
	if h.metrics != nil {
		h.metrics.ActiveSubscriptions.Set(float64(h.registry.Subscriptions()))
	}
	s.sendJSON(ackMessage{Type: MsgUnsubscribeResponse, Success: true, Message: "unsubscribed"})
	log.Info().Str("session", s.ID).Str("subscription", msg.SubscriptionID).Msg("subscription removed")
}

// initialData returns wire snapshots of every requested, existing instrument
// that passes the predicate. Predicate errors exclude the instrument.
func (h *Hub) initialData(ids []string, expr *filter.Expr) []map[string]any {
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		in, err := h.store.Get(id)
		if err != nil {
			continue
		}
		match, err := expr.Match(in.FieldMap())
		if err != nil || !match {
			continue
		}
		out = append(out, WireSnapshot(in))
	}
	return out
}

// sendJSON marshals and enqueues one control message; queue-full control
// messages are logged rather than retried.
func (s *Session) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("marshal outbound message")
		return
	}
	if err := s.Enqueue(payload); err != nil {
		log.Debug().Err(err).Str("session", s.ID).Msg("control message dropped")
	}
}
