package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(cl.userID)).Msg("readPump closing")
		ctl.disconnect(cl)
		cl.conn.Close()
	}()

	// The peer must answer pings within the pong window or the read fails.
	pongWait := ctl.pingPeriod * 10 / 9
	ws := cl.conn.conn
	ws.SetReadLimit(ctl.readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("user", string(cl.userID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := cl.conn.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("user", string(cl.userID)).Msg("readPump read error")
				return
			}
			ctl.handleCommand(ctx, cl, data)
		}
	}
}

func (ctl *Controller) handleCommand(ctx context.Context, cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendBadPayload(cl)
		return
	}

	switch env.Type {
	case "ping", "resync":
		// Control traffic is never throttled.
	default:
		if !ctl.Limiter.Allow(cl.userID) {
			ctl.sendJSON(cl.conn, errorEnvelope{Type: "error", Code: "rate_limited", Message: "too many commands"})
			return
		}
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, cl, data)
	case "leave":
		ctl.handleLeave(cl)
	case "raise_hand":
		ctl.handleRaiseHand(cl)
	case "lower_hand":
		ctl.handleLowerHand(cl, data)
	case "approve_speaker":
		ctl.handleModeration(ctx, cl, data, "approve_speaker")
	case "revoke_speaker":
		ctl.handleModeration(ctx, cl, data, "revoke_speaker")
	case "promote_co_host":
		ctl.handleModeration(ctx, cl, data, "promote_co_host")
	case "demote_co_host":
		ctl.handleModeration(ctx, cl, data, "demote_co_host")
	case "mute_user":
		ctl.handleModeration(ctx, cl, data, "mute_user")
	case "remove_user":
		ctl.handleModeration(ctx, cl, data, "remove_user")
	case "start_workshop":
		ctl.handleStart(ctx, cl)
	case "end_workshop":
		ctl.handleEnd(ctx, cl)
	case "cancel_workshop":
		ctl.handleCancel(cl)
	case "resync":
		ctl.handleResync(cl)
	case "ping":
		ctl.sendJSON(cl.conn, map[string]string{"type": "pong"})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown command")
		ctl.sendJSON(cl.conn, errorEnvelope{Type: "error", Code: "bad_payload", Message: "unknown command type"})
	}
}

type errorEnvelope struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// sendErr maps the coordinator's error taxonomy onto a client envelope.
// Errors go to the issuing client only, never to the room.
func (ctl *Controller) sendErr(cl *client, err error) {
	code := core.CodeOf(err)
	if code == "" {
		code = "bad_request"
	}
	ctl.sendJSON(cl.conn, errorEnvelope{Type: "error", Code: string(code), Message: err.Error()})
}

func (ctl *Controller) sendBadPayload(cl *client) {
	ctl.sendJSON(cl.conn, errorEnvelope{Type: "error", Code: "bad_payload", Message: "malformed payload"})
}

func (ctl *Controller) sendAck(cl *client, op string) {
	ctl.sendJSON(cl.conn, map[string]string{"type": "ack", "op": op})
}
