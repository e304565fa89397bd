// Package registry tracks connected subscribers, their subscriptions and the
// per-subscriber rate state used to admit or drop deltas: a token bucket plus
// a per-instrument minimum inter-update interval.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/blotterfeed/blotterfeed/internal/filter"
)

var (
	// ErrSessionNotFound is returned for operations on unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSubscriptionNotFound is returned for unknown subscription ids.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrInvalidArgument is returned for malformed subscription requests.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Subscription is one subscriber-owned interest declaration.
type Subscription struct {
	ID            string
	InstrumentIDs []string
	Filter        *filter.Expr
	// Frequency is the desired updates per second; 0 inherits the server
	// default.
	Frequency float64

	idSet map[string]bool
}

// covers reports whether the subscription's interest set includes the
// instrument.
func (s *Subscription) covers(instrumentID string) bool {
	return s.idSet[instrumentID]
}

type session struct {
	id       string
	subs     map[string]*Subscription
	bucket   *rate.Limiter
	lastSent map[string]time.Time
}

// Limits carries the default pacing parameters applied to every session.
type Limits struct {
	MaxUpdatesPerSecond float64
	BucketSize          int
}

// Registry is safe for concurrent use. Token buckets and lastSent maps are
// owned here and mutated only through registry operations.
type Registry struct {
	mu       sync.RWMutex
	limits   Limits
	sessions map[string]*session
	// interested maps instrument id to the sessions with at least one
	// subscription listing it, with a reference count per session.
	interested map[string]map[string]int
	// onPredicateError, when set, observes every predicate evaluation
	// failure during matching.
	onPredicateError func()
}

// New creates an empty registry with the given default limits.
func New(limits Limits) *Registry {
	return &Registry{
		limits:     limits,
		sessions:   make(map[string]*session),
		interested: make(map[string]map[string]int),
	}
}

// OnPredicateError registers a callback invoked whenever a subscription
// predicate fails to evaluate. Set once at wiring time, before the registry
// serves traffic.
func (r *Registry) OnPredicateError(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPredicateError = fn
}

// Register adds a session with a fresh, full token bucket.
func (r *Registry) Register(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		return
	}
	r.sessions[sessionID] = &session{
		id:       sessionID,
		subs:     make(map[string]*Subscription),
		bucket:   rate.NewLimiter(rate.Limit(r.limits.MaxUpdatesPerSecond), r.limits.BucketSize),
		lastSent: make(map[string]time.Time),
	}
	log.Debug().Str("session", sessionID).Msg("session registered")
}

// Unregister detaches a session and destroys its subscriptions and bucket.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for _, sub := range sess.subs {
		r.dropInterestLocked(sessionID, sub)
	}
	delete(r.sessions, sessionID)
	log.Debug().Str("session", sessionID).Msg("session unregistered")
}

// AddSubscription attaches a subscription to a session. The instrument-id
// list must be non-empty.
func (r *Registry) AddSubscription(sessionID string, sub *Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("add subscription: %w: missing subscription id", ErrInvalidArgument)
	}
	if len(sub.InstrumentIDs) == 0 {
		return fmt.Errorf("add subscription %s: %w: empty instrument list", sub.ID, ErrInvalidArgument)
	}
	if sub.Frequency < 0 {
		return fmt.Errorf("add subscription %s: %w: negative frequency", sub.ID, ErrInvalidArgument)
	}
	sub.idSet = make(map[string]bool, len(sub.InstrumentIDs))
	for _, id := range sub.InstrumentIDs {
		sub.idSet[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("add subscription %s: %w", sub.ID, ErrSessionNotFound)
	}
	sess.subs[sub.ID] = sub
	for id := range sub.idSet {
		m := r.interested[id]
		if m == nil {
			m = make(map[string]int)
			r.interested[id] = m
		}
		m[sessionID]++
	}
	return nil
}

// RemoveSubscription destroys one subscription.
func (r *Registry) RemoveSubscription(sessionID, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("remove subscription %s: %w", subscriptionID, ErrSessionNotFound)
	}
	sub, ok := sess.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("remove subscription %s: %w", subscriptionID, ErrSubscriptionNotFound)
	}
	delete(sess.subs, subscriptionID)
	r.dropInterestLocked(sessionID, sub)
	return nil
}

func (r *Registry) dropInterestLocked(sessionID string, sub *Subscription) {
	for id := range sub.idSet {
		m := r.interested[id]
		if m == nil {
			continue
		}
		if m[sessionID]--; m[sessionID] <= 0 {
			delete(m, sessionID)
		}
		if len(m) == 0 {
			delete(r.interested, id)
		}
	}
}

// Interested returns the sessions with any subscription listing the
// instrument.
func (r *Registry) Interested(instrumentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.interested[instrumentID]
	out := make([]string, 0, len(m))
	for sessionID := range m {
		out = append(out, sessionID)
	}
	return out
}

// Decision is the outcome of an admission check.
type Decision int

const (
	// Admitted means a token was consumed and the pacing interval allows a
	// send.
	Admitted Decision = iota
	// RefusedNoToken means the bucket was empty.
	RefusedNoToken
	// RefusedPacing means a token was consumed but the pair's minimum
	// inter-update interval has not elapsed. The token is not refunded.
	RefusedPacing
	// RefusedUnknownSession means the session has detached.
	RefusedUnknownSession
)

// Admit gates one delta for one (session, instrument) pair: it consumes a
// token when one is available, then enforces the per-instrument pacing
// interval.
func (r *Registry) Admit(sessionID, instrumentID string, now time.Time) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return RefusedUnknownSession
	}
	if !sess.bucket.AllowN(now, 1) {
		return RefusedNoToken
	}
	interval := r.pacingIntervalLocked(sess, instrumentID)
	if last, ok := sess.lastSent[instrumentID]; ok && now.Sub(last) < interval {
		return RefusedPacing
	}
	return Admitted
}

// pacingIntervalLocked computes 1000/max(f) over the session's subscriptions
// covering the instrument, falling back to the server default.
func (r *Registry) pacingIntervalLocked(sess *session, instrumentID string) time.Duration {
	maxFreq := 0.0
	for _, sub := range sess.subs {
		if sub.covers(instrumentID) && sub.Frequency > maxFreq {
			maxFreq = sub.Frequency
		}
	}
	if maxFreq <= 0 {
		maxFreq = r.limits.MaxUpdatesPerSecond
	}
	if maxFreq <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / maxFreq)
}

// RecordSend stores the time a delta was successfully handed to the
// transport for this pair.
func (r *Registry) RecordSend(sessionID, instrumentID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.lastSent[instrumentID] = now
	}
}

// Match locates a subscription of the session that covers the instrument and
// whose predicate admits the snapshot. Predicate evaluation errors count as
// non-match and are logged, never propagated.
func (r *Registry) Match(sessionID, instrumentID string, fields map[string]any) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	for _, sub := range sess.subs {
		if !sub.covers(instrumentID) {
			continue
		}
		match, err := sub.Filter.Match(fields)
		if err != nil {
			if r.onPredicateError != nil {
				r.onPredicateError()
			}
			log.Debug().Err(err).
				Str("session", sessionID).
				Str("subscription", sub.ID).
				Str("instrument", instrumentID).
				Msg("predicate evaluation failed, treating as non-match")
			continue
		}
		if match {
			return sub.ID, true
		}
	}
	return "", false
}

// Reconfigure updates the default bucket parameters and applies them to all
// existing sessions. The underlying limiter preserves accumulated tokens
// across the change, growing headroom by any capacity increase.
func (r *Registry) Reconfigure(limits Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = limits
	for _, sess := range r.sessions {
		sess.bucket.SetLimit(rate.Limit(limits.MaxUpdatesPerSecond))
		sess.bucket.SetBurst(limits.BucketSize)
	}
}

// Sessions returns the number of registered sessions.
func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Subscriptions returns the total subscription count across sessions.
func (r *Registry) Subscriptions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sess := range r.sessions {
		n += len(sess.subs)
	}
	return n
}
