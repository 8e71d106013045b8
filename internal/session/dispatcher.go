package session

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// Dispatcher fans sequenced deltas out to every subscriber of one session's
// channel. Delivery is fire-and-forget and never blocks the session writer;
// a client that cannot keep up drops frames and recovers via resync.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[domain.UserID]core.SignalConnection
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[domain.UserID]core.SignalConnection)}
}

// Subscribe replaces any prior connection for the user; the most recent
// connection is authoritative.
func (d *Dispatcher) Subscribe(id domain.UserID, conn core.SignalConnection) {
	d.mu.Lock()
	old := d.subs[id]
	d.subs[id] = conn
	d.mu.Unlock()
	if old != nil && old != conn {
		old.Close()
	}
}

// Unsubscribe detaches the user's connection if it is still the current one.
func (d *Dispatcher) Unsubscribe(id domain.UserID, conn core.SignalConnection) {
	d.mu.Lock()
	if cur, ok := d.subs[id]; ok && (conn == nil || cur == conn) {
		delete(d.subs, id)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Publish marshals the delta once and sends it to every subscriber.
func (d *Dispatcher) Publish(delta core.Delta) {
	b, err := json.Marshal(delta)
	if err != nil {
		log.Error().Err(err).Str("module", "session.dispatch").Msg("marshal delta")
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	sent, dropped := 0, 0
	for id, conn := range d.subs {
		if err := conn.TrySend(b); err != nil {
			dropped++
			log.Debug().Str("module", "session.dispatch").Str("user", string(id)).Uint64("seq", delta.Seq).Msg("subscriber dropped delta")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "session.dispatch").Str("type", string(delta.Type)).Uint64("seq", delta.Seq).Int("sent", sent).Int("dropped", dropped).Msg("delta published")
}

// SendTo delivers a targeted message (credential grant, mute signal) to one
// subscriber only.
func (d *Dispatcher) SendTo(id domain.UserID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "session.dispatch").Msg("marshal targeted message")
		return
	}
	d.mu.RLock()
	conn, ok := d.subs[id]
	d.mu.RUnlock()
	if !ok {
		return
	}
	_ = conn.TrySend(b)
}

// Kick force-closes a subscriber's transport (after removeUser).
func (d *Dispatcher) Kick(id domain.UserID) {
	d.mu.Lock()
	conn, ok := d.subs[id]
	if ok {
		delete(d.subs, id)
	}
	d.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// CloseAll drops every subscriber, closing their transports.
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	subs := d.subs
	d.subs = make(map[domain.UserID]core.SignalConnection)
	d.mu.Unlock()
	for _, conn := range subs {
		conn.Close()
	}
}
