package http

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vovakirdan/wirepresence/internal/auth"
	"github.com/vovakirdan/wirepresence/internal/core"
	"github.com/vovakirdan/wirepresence/internal/presence"
	"github.com/vovakirdan/wirepresence/internal/proto"
)

// identify resolves the identity a user-online message claims.
func (h *WSHandler) identify(ctx context.Context, inbound proto.Inbound) (presence.Identity, *core.CoreError) {
	var data proto.UserOnlineData
	if len(inbound.Data) > 0 {
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return "", core.NewError(core.ErrCodeBadRequest, "malformed user-online payload")
		}
	}
	if data.Token == "" {
		return "", core.NewError(core.ErrCodeUnauthorized, "token is required")
	}

	identity, err := h.authService.Authenticate(ctx, data.Token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrUnknownIdentity) {
			return "", core.NewError(core.ErrCodeUnauthorized, "invalid token")
		}
		h.log.Error().Err(err).Msg("authenticate ws token")
		return "", core.NewError(core.ErrCodeStoreUnavailable, "try again later")
	}
	if data.Username != "" && data.Username != identity.Username {
		return "", core.NewError(core.ErrCodeBadRequest, "username does not match token")
	}

	return presence.Identity(identity.Username), nil
}

func errorFromCore(err error) *core.CoreError {
	var coreErr *core.CoreError
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return core.NewError("internal", "internal error")
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineCount:
		return proto.Outbound{
			Type: proto.OutboundTypeOnlineCount,
			Data: proto.OnlineCount{Count: event.Count},
		}
	case core.EventSuperseded:
		return proto.Outbound{Type: proto.OutboundTypeSuperseded}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown event"}}
	}
}
