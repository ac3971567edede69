package signal

import (
	"context"
	"errors"

	"github.com/NolanKnievel/bucket-list-sub001/internal/app"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/NolanKnievel/bucket-list-sub001/internal/store"
	"github.com/rs/zerolog/log"
)

// handleJoin confirms the session's binding. The hub registration already
// happened at upgrade, so a matching join is a no-op on the hub side.
func (ctl *SignalWSController) handleJoin(c *WsSignalConn, env protocol.Envelope) {
	var p protocol.Join
	if err := protocol.DecodeData(env, &p); err != nil {
		ctl.protocolError(c, asProtocolError(err))
		return
	}
	if !sameGroup(p.GroupID, c.groupID) {
		ctl.protocolError(c, protocol.NewError(protocol.CodeGroupMismatch, "join for a different group than the connection", map[string]string{"groupId": string(p.GroupID)}))
		return
	}
	if !sameMember(p.MemberID, c.memberID) {
		ctl.protocolError(c, protocol.NewError(protocol.CodeMemberMismatch, "join as a different member than the connection", map[string]string{"memberId": string(p.MemberID)}))
		return
	}
	if err := ctl.hub.Register(ctl.ctx, c, c.groupID, c.memberID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("join register")
		ctl.sendError(c, protocol.NewError(protocol.CodeInternal, "join failed", nil))
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("group", string(c.groupID)).Str("member", string(c.memberID)).Msg("join")
}

func (ctl *SignalWSController) handleItemAdded(c *WsSignalConn, env protocol.Envelope) {
	var p protocol.ItemAdded
	if err := protocol.DecodeData(env, &p); err != nil {
		ctl.protocolError(c, asProtocolError(err))
		return
	}
	if !sameGroup(p.GroupID, c.groupID) {
		ctl.protocolError(c, protocol.NewError(protocol.CodeGroupMismatch, "item for a different group", nil))
		return
	}
	if !sameMember(p.Item.MemberID, c.memberID) {
		ctl.protocolError(c, protocol.NewError(protocol.CodeMemberMismatch, "item attributed to another member", nil))
		return
	}
	if !ctl.limiter.Allow(c.memberID) {
		ctl.sendError(c, protocol.NewError(protocol.CodeRateLimited, "too many updates", nil))
		return
	}

	draft := app.ItemDraft{ID: p.Item.ID, Title: p.Item.Title, Description: p.Item.Description}
	if _, err := ctl.groups.AddItem(ctl.ctx, c.groupID, c.memberID, draft, c.id); err != nil {
		ctl.mutationError(c, env.Type, err)
	}
}

func (ctl *SignalWSController) handleItemUpdated(c *WsSignalConn, env protocol.Envelope) {
	var p protocol.ItemUpdated
	if err := protocol.DecodeData(env, &p); err != nil {
		ctl.protocolError(c, asProtocolError(err))
		return
	}
	if !sameGroup(p.GroupID, c.groupID) {
		ctl.protocolError(c, protocol.NewError(protocol.CodeGroupMismatch, "update for a different group", nil))
		return
	}
	if !ctl.limiter.Allow(c.memberID) {
		ctl.sendError(c, protocol.NewError(protocol.CodeRateLimited, "too many updates", nil))
		return
	}

	if _, err := ctl.groups.SetItemCompleted(ctl.ctx, c.groupID, p.ItemID, p.Completed, c.id); err != nil {
		ctl.mutationError(c, env.Type, err)
	}
}

// mutationError reports a well-formed request the group service refused.
// These do not count towards the protocol error budget.
func (ctl *SignalWSController) mutationError(c *WsSignalConn, t protocol.Type, err error) {
	var e *protocol.Error
	switch {
	case errors.Is(err, store.ErrItemNotFound), errors.Is(err, store.ErrGroupNotFound):
		e = protocol.NewError(protocol.CodeNotFound, err.Error(), nil)
	case errors.Is(err, store.ErrMemberNotFound):
		e = protocol.NewError(protocol.CodeForbidden, err.Error(), nil)
	case errors.Is(err, store.ErrItemExists):
		e = protocol.NewError(protocol.CodeConflict, err.Error(), nil)
	case isValidation(err):
		e = protocol.NewError(protocol.CodeInvalidPayload, err.Error(), nil)
	case errors.Is(err, context.Canceled):
		return
	default:
		log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("type", string(t)).Msg("mutation failed")
		e = protocol.NewError(protocol.CodeInternal, "could not apply "+string(t), nil)
	}
	ctl.sendError(c, e)
}

// sameGroup compares a client supplied id with the session's canonical one.
func sameGroup(raw, id domain.GroupID) bool {
	parsed, err := domain.ParseGroupID(string(raw))
	return err == nil && parsed == id
}

func sameMember(raw, id domain.MemberID) bool {
	parsed, err := domain.ParseMemberID(string(raw))
	return err == nil && parsed == id
}

func isValidation(err error) bool {
	for _, target := range []error{
		domain.ErrTitleEmpty, domain.ErrTitleTooLong, domain.ErrDescTooLong,
		domain.ErrInvalidItemID, domain.ErrInvalidGroupID, domain.ErrInvalidMemberID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
