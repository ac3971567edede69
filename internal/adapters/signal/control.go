package signal

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) track(c *WsSignalConn) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.ctx.Err() != nil {
		return false
	}
	ctl.conns[c.id] = c
	return true
}

func (ctl *SignalWSController) untrack(c *WsSignalConn) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	delete(ctl.conns, c.id)
	for _, other := range ctl.conns {
		if other.memberID == c.memberID {
			return
		}
	}
	ctl.limiter.Forget(c.memberID)
}

// ActiveSessions counts sessions whose pumps are still running.
func (ctl *SignalWSController) ActiveSessions() int {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return len(ctl.conns)
}

// Shutdown refuses new upgrades, closes every session with "going away"
// and waits for the pumps to exit.
func (ctl *SignalWSController) Shutdown(ctx context.Context) error {
	ctl.mu.Lock()
	ctl.cancel()
	conns := make([]*WsSignalConn, 0, len(ctl.conns))
	for _, c := range ctl.conns {
		conns = append(conns, c)
	}
	ctl.mu.Unlock()

	for _, c := range conns {
		c.CloseWith(websocket.CloseGoingAway, "server shutdown")
	}
	log.Info().Str("module", "signal").Int("sessions", len(conns)).Msg("closing sessions")

	done := make(chan struct{})
	go func() {
		ctl.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("signal shutdown: %w", ctx.Err())
	}
}
