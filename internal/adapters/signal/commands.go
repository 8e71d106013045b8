package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// stateMessage carries the full snapshot sent on join and resync.
type stateMessage struct {
	Type string `json:"type"`
	core.Snapshot
}

func (ctl *Controller) handleJoin(ctx context.Context, cl *client, data []byte) {
	var p struct {
		Type       string `json:"type"`
		WorkshopID string `json:"workshop_id"`
		Name       string `json:"name"`
		Avatar     string `json:"avatar,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.WorkshopID == "" {
		ctl.sendBadPayload(cl)
		return
	}

	sess, err := ctl.Sessions.GetOrCreate(ctx, domain.WorkshopID(p.WorkshopID))
	if err != nil {
		ctl.sendErr(cl, err)
		return
	}

	snap, err := sess.Join(cl.userID, p.Name, p.Avatar)
	if err != nil {
		ctl.sendErr(cl, err)
		return
	}

	// Subscribe before replying so no delta between snapshot and
	// subscription is lost; the snapshot's seq lets the client skip
	// anything already folded in.
	if old := cl.session(); old != nil && old != sess {
		// Switching workshops: the prior roster must see the departure,
		// not a ghost connected entry.
		if err := old.Leave(cl.userID); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("user", string(cl.userID)).Msg("leave prior session")
		}
		old.Dispatcher().Unsubscribe(cl.userID, cl.conn)
	}
	cl.setSession(sess)
	sess.Dispatcher().Subscribe(cl.userID, cl.conn)

	log.Info().Str("module", "signal").Str("user", string(cl.userID)).Str("workshop", p.WorkshopID).Msg("joined session")
	ctl.sendJSON(cl.conn, stateMessage{Type: "session_state", Snapshot: snap})
}

func (ctl *Controller) handleLeave(cl *client) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	if err := sess.Leave(cl.userID); err != nil {
		ctl.sendErr(cl, err)
		return
	}
	sess.Dispatcher().Unsubscribe(cl.userID, cl.conn)
	cl.setSession(nil)
	ctl.sendAck(cl, "leave")
}

// disconnect runs on socket teardown: same as leave, without a reply.
func (ctl *Controller) disconnect(cl *client) {
	sess := cl.session()
	if sess == nil {
		return
	}
	sess.Dispatcher().Unsubscribe(cl.userID, cl.conn)
	if err := sess.Leave(cl.userID); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(cl.userID)).Msg("leave on disconnect")
	}
	cl.setSession(nil)
}

func (ctl *Controller) handleRaiseHand(cl *client) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	if err := sess.RaiseHand(cl.userID); err != nil {
		ctl.sendErr(cl, err)
		return
	}
	ctl.sendAck(cl, "raise_hand")
}

func (ctl *Controller) handleLowerHand(cl *client, data []byte) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	var p struct {
		UserID string `json:"user_id,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendBadPayload(cl)
		return
	}
	target := cl.userID
	if p.UserID != "" {
		target = domain.UserID(p.UserID)
	}
	if err := sess.LowerHand(cl.userID, target); err != nil {
		ctl.sendErr(cl, err)
		return
	}
	ctl.sendAck(cl, "lower_hand")
}

// handleModeration covers every targeted moderation command; they share the
// payload shape and the reply discipline.
func (ctl *Controller) handleModeration(ctx context.Context, cl *client, data []byte, op string) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	var p struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		ctl.sendBadPayload(cl)
		return
	}
	target := domain.UserID(p.UserID)

	var err error
	switch op {
	case "approve_speaker":
		err = sess.ApproveSpeaker(ctx, cl.userID, target)
	case "revoke_speaker":
		err = sess.RevokeSpeaker(ctx, cl.userID, target)
	case "promote_co_host":
		err = sess.PromoteCoHost(ctx, cl.userID, target)
	case "demote_co_host":
		err = sess.DemoteCoHost(ctx, cl.userID, target)
	case "mute_user":
		err = sess.Mute(cl.userID, target)
	case "remove_user":
		err = sess.Remove(ctx, cl.userID, target)
	}
	if err != nil {
		ctl.sendErr(cl, err)
		return
	}
	ctl.sendAck(cl, op)
}

func (ctl *Controller) handleStart(ctx context.Context, cl *client) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	if err := sess.Start(ctx, cl.userID); err != nil {
		ctl.sendErr(cl, err)
		return
	}
	ctl.sendAck(cl, "start_workshop")
}

func (ctl *Controller) handleEnd(ctx context.Context, cl *client) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	if err := sess.End(ctx, cl.userID); err != nil {
		ctl.sendErr(cl, err)
		return
	}
	ctl.sendAck(cl, "end_workshop")
}

func (ctl *Controller) handleCancel(cl *client) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	if err := sess.Cancel(cl.userID); err != nil {
		ctl.sendErr(cl, err)
		return
	}
	ctl.sendAck(cl, "cancel_workshop")
}

// handleResync sends a fresh authoritative snapshot to a client that
// detected a sequence gap.
func (ctl *Controller) handleResync(cl *client) {
	sess := cl.session()
	if sess == nil {
		ctl.sendErr(cl, fmt.Errorf("%w: not in a session", core.ErrNotFound))
		return
	}
	snap, err := sess.Snapshot()
	if err != nil {
		ctl.sendErr(cl, err)
		return
	}
	ctl.sendJSON(cl.conn, stateMessage{Type: "session_state", Snapshot: snap})
}
