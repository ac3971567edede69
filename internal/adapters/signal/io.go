package signal

import (
	"errors"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		ctl.wg.Done()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				deadline := time.Now().Add(ctl.cfg.WriteWait)
				_ = c.ws.WriteControl(websocket.CloseMessage, c.closeMessage(), deadline)
				log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump closed")
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(ctl.cfg.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("member", string(c.memberID)).Msg("readPump closing")
		ctl.hub.Unregister(c)
		c.Close()
		ctl.untrack(c)
		ctl.wg.Done()
	}()

	c.ws.SetReadLimit(ctl.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return c.ws.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		c.touch()
		_ = c.ws.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
		if c.isClosed() {
			continue
		}
		if mt != websocket.TextMessage {
			ctl.protocolError(c, protocol.NewError(protocol.CodeMalformed, "binary frames are not supported", nil))
			continue
		}
		ctl.handleSignal(c, data)
	}
}

func (ctl *SignalWSController) handleSignal(c *WsSignalConn, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		ctl.protocolError(c, asProtocolError(err))
		return
	}
	if !env.Type.ServerBound() {
		ctl.protocolError(c, protocol.NewError(protocol.CodeNotAllowed, "clients may not send "+string(env.Type), nil))
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		ctl.handleJoin(c, env)
	case protocol.TypeItemAdded:
		ctl.handleItemAdded(c, env)
	case protocol.TypeItemUpdated:
		ctl.handleItemUpdated(c, env)
	}
}

// protocolError replies with e and closes the session with a policy
// violation once it has sent more than MaxProtocolErrors bad frames.
func (ctl *SignalWSController) protocolError(c *WsSignalConn, e *protocol.Error) {
	c.protocolErrors++
	log.Warn().Str("module", "signal").Str("conn", string(c.id)).Str("code", e.Code).Int("count", c.protocolErrors).Msg(e.Message)
	ctl.sendError(c, e)
	if c.protocolErrors > ctl.cfg.MaxProtocolErrors {
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Msg("too many protocol errors, closing")
		c.CloseWith(websocket.ClosePolicyViolation, "too many protocol errors")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, e *protocol.Error) {
	ctl.sendJSON(c, protocol.TypeError, e)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, t protocol.Type, v any) {
	b, err := protocol.Frame(t, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	switch err := c.TrySend(b); {
	case errors.Is(err, core.ErrBackpressure):
		// same treatment as a slow reader on the broadcast path
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Str("type", string(t)).Msg("send queue full, closing")
		c.CloseWith(websocket.CloseTryAgainLater, "send queue full")
	case err != nil:
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("direct reply dropped")
	}
}

func asProtocolError(err error) *protocol.Error {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return pe
	}
	return protocol.NewError(protocol.CodeMalformed, err.Error(), nil)
}
