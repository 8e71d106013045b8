package session

import (
	"github.com/koinonia/liveworkshop/internal/domain"
)

// HandQueue is an ordered set of pending speaker requests with keyed
// removal: a moderator may approve any entry, not only the head.
// Not threadsafe; owned by the Session command loop.
type HandQueue struct {
	order []domain.UserID
	byID  map[domain.UserID]domain.HandRaise
}

func NewHandQueue() *HandQueue {
	return &HandQueue{byID: make(map[domain.UserID]domain.HandRaise)}
}

// Raise appends a request in insertion order. A second raise for the same
// user is a no-op; the return value reports whether the queue changed.
func (q *HandQueue) Raise(id domain.UserID) bool {
	if _, ok := q.byID[id]; ok {
		return false
	}
	q.byID[id] = domain.HandRaise{UserID: id, RaisedAt: now()}
	q.order = append(q.order, id)
	return true
}

// Lower removes a request by key, wherever it sits in the queue.
func (q *HandQueue) Lower(id domain.UserID) bool {
	if _, ok := q.byID[id]; !ok {
		return false
	}
	delete(q.byID, id)
	for i, uid := range q.order {
		if uid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

func (q *HandQueue) Contains(id domain.UserID) bool {
	_, ok := q.byID[id]
	return ok
}

func (q *HandQueue) Len() int { return len(q.order) }

// Snapshot returns the pending requests in raise order with positions.
func (q *HandQueue) Snapshot() []domain.HandRaise {
	out := make([]domain.HandRaise, 0, len(q.order))
	for i, id := range q.order {
		hr := q.byID[id]
		hr.Position = i
		out = append(out, hr)
	}
	return out
}
