package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// Deps are the external collaborators a session needs. All of them are
// narrow interfaces so the SFU, store and notifier are swappable in tests.
type Deps struct {
	Issuer   core.CredentialIssuer
	Store    core.WorkshopStore
	Notifier core.Notifier

	// IssueRetries is the number of re-attempts after a failed credential
	// issuance; RetryBackoff is the initial delay, doubled per attempt.
	IssueRetries int
	RetryBackoff time.Duration
	IssueTimeout time.Duration
}

// Session is the coordinator for one scheduled workshop instance. All
// mutable state below the cmds channel is owned by the run loop: commands
// are serialized through it, so concurrent moderation on the same target
// cannot race. Credential issuance happens outside the loop (credentials.go).
type Session struct {
	id       domain.SessionID
	workshop domain.Workshop
	deps     Deps
	disp     *Dispatcher
	logger   zerolog.Logger

	cmds     chan func()
	stop     chan struct{}
	stopOnce sync.Once

	// Owned by the run loop.
	state        domain.SessionState
	startedAt    *time.Time
	roster       *Roster
	queue        *HandQueue
	creds        map[domain.UserID]domain.VideoCredential
	seq          uint64
	createdAt    time.Time
	lastActivity time.Time
	idleWarned   bool
}

func NewSession(workshop domain.Workshop, deps Deps) *Session {
	id := domain.SessionID(uuid.NewString())
	s := &Session{
		id:           id,
		workshop:     workshop,
		deps:         deps,
		disp:         NewDispatcher(),
		logger:       log.With().Str("module", "session").Str("session", string(id)).Str("workshop", string(workshop.ID)).Logger(),
		cmds:         make(chan func(), 64),
		stop:         make(chan struct{}),
		state:        domain.StateScheduled,
		roster:       NewRoster(),
		queue:        NewHandQueue(),
		creds:        make(map[domain.UserID]domain.VideoCredential),
		createdAt:    now(),
		lastActivity: now(),
	}
	return s
}

func (s *Session) ID() domain.SessionID          { return s.id }
func (s *Session) WorkshopID() domain.WorkshopID { return s.workshop.ID }
func (s *Session) Dispatcher() *Dispatcher       { return s.disp }

// Run consumes the command queue until Stop. Exactly one Run per session.
func (s *Session) Run() {
	s.logger.Info().Msg("session loop started")
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.stop:
			s.logger.Info().Msg("session loop stopped")
			return
		}
	}
}

// Stop halts the command loop and drops all subscribers.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.disp.CloseAll()
	})
}

// do runs fn on the session loop and waits for its result.
func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.stop:
		return fmt.Errorf("%w: session closed", core.ErrInvalidState)
	}
	select {
	case err := <-reply:
		return err
	case <-s.stop:
		return fmt.Errorf("%w: session closed", core.ErrInvalidState)
	}
}

// guard rejects any mutation once a terminal state is reached.
func (s *Session) guard() error {
	if s.state.Terminal() {
		return fmt.Errorf("%w: session is %s", core.ErrInvalidState, s.state)
	}
	return nil
}

// emit stamps the delta with the next sequence number and fans it out.
// Loop-owned; the single writer guarantees per-session ordering.
func (s *Session) emit(d core.Delta) {
	s.seq++
	d.Seq = s.seq
	d.SessionID = s.id
	s.lastActivity = now()
	s.disp.Publish(d)
}

// transition moves the lifecycle and broadcasts the change.
func (s *Session) transition(to domain.SessionState) {
	from := s.state
	s.state = to
	s.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("lifecycle transition")
	if to == domain.StateEnded {
		s.emit(core.Delta{Type: core.DeltaSessionEnded, State: to})
		return
	}
	s.emit(core.Delta{Type: core.DeltaLifecycleChanged, State: to})
}

// checkInvariant force-ends the session if the roster ever holds more than
// one host. Attendees may wait in a lobby before the host arrives, so zero
// hosts is legal; two is corruption. The forced end runs the same teardown
// as a host-initiated End: outstanding tokens are revoked and the final
// attendance is written back.
func (s *Session) checkInvariant() {
	if s.roster.HostCount() <= 1 {
		return
	}
	s.logger.Error().Int("hosts", s.roster.HostCount()).Msg("roster invariant violated, ending session")
	outstanding := make([]domain.VideoCredential, 0, len(s.creds))
	for _, cred := range s.creds {
		outstanding = append(outstanding, cred)
	}
	s.creds = make(map[domain.UserID]domain.VideoCredential)
	attendees := s.roster.Len()
	s.transition(domain.StateEnded)
	go func() {
		s.revokeAll(outstanding)
		if s.deps.Store == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Store.FinishWorkshop(ctx, s.workshop.ID, attendees); err != nil {
			s.logger.Error().Err(err).Int("attendees", attendees).Msg("write final attendance")
		}
	}()
}

func (s *Session) snapshotLocked() core.Snapshot {
	return core.Snapshot{
		SessionID:    s.id,
		WorkshopID:   s.workshop.ID,
		Title:        s.workshop.Title,
		State:        s.state,
		Seq:          s.seq,
		HostID:       s.workshop.HostID,
		StartedAt:    s.startedAt,
		Participants: s.roster.Snapshot(),
		HandRaises:   s.queue.Snapshot(),
	}
}

// Snapshot returns the full authoritative view; used on join, on resync and
// by the REST surface.
func (s *Session) Snapshot() (core.Snapshot, error) {
	var snap core.Snapshot
	err := s.do(func() error {
		snap = s.snapshotLocked()
		return nil
	})
	return snap, err
}

// Info is the manager's janitor view of one session.
type Info struct {
	ID           domain.SessionID
	WorkshopID   domain.WorkshopID
	State        domain.SessionState
	CreatedAt    time.Time
	LastActivity time.Time
	Participants int
}

func (s *Session) Info() (Info, error) {
	var info Info
	err := s.do(func() error {
		info = Info{
			ID:           s.id,
			WorkshopID:   s.workshop.ID,
			State:        s.state,
			CreatedAt:    s.createdAt,
			LastActivity: s.lastActivity,
			Participants: s.roster.Len(),
		}
		return nil
	})
	return info, err
}

// WarnIfIdle logs once when a lobby session has seen no activity for the
// given threshold. There is no automatic termination; the idle lobby stays
// up until the host starts or the operator intervenes.
func (s *Session) WarnIfIdle(threshold time.Duration) {
	_ = s.do(func() error {
		if s.idleWarned || s.state != domain.StateLobby {
			return nil
		}
		idle := now().Sub(s.lastActivity)
		if idle < threshold {
			return nil
		}
		s.idleWarned = true
		s.logger.Warn().Str("code", string(core.CodeTimeout)).Dur("idle", idle).Msg("lobby session idle, host has not started")
		return nil
	})
}
