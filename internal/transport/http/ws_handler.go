package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirepresence/internal/auth"
	"github.com/vovakirdan/wirepresence/internal/core"
	"github.com/vovakirdan/wirepresence/internal/proto"
)

const maxInboundBytes = 4 << 10

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub            *core.Hub
	authService    *auth.Service
	msgLimit       int
	originPatterns []string
	log            *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
// Cross-origin upgrades are refused unless the origin host matches one of originPatterns.
func NewWSHandler(hub *core.Hub, authService *auth.Service, msgLimit int, originPatterns []string, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:            hub,
		authService:    authService,
		msgLimit:       msgLimit,
		originPatterns: originPatterns,
		log:            logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(maxInboundBytes)

	client := core.NewClient(uuid.NewString())
	h.hub.RegisterClient(client)
	// Runs after the loops stop; the request context may already be done by then.
	defer h.hub.UnregisterClient(context.WithoutCancel(ctx), client)

	h.log.Debug().Str("client_id", client.ID).Msg("ws client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Debug().Str("client_id", client.ID).Msg("ws client disconnected")
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.msgLimit)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			h.hub.NotifyError(client, core.NewError(core.ErrCodeRateLimited, "too many messages"))
			continue
		}

		if coreErr := h.handleInbound(ctx, client, inbound); coreErr != nil {
			h.hub.NotifyError(client, coreErr)
		}
	}
}

func (h *WSHandler) handleInbound(ctx context.Context, client *core.Client, inbound proto.Inbound) *core.CoreError {
	switch inbound.Type {
	case proto.InboundTypeUserOnline:
		id, coreErr := h.identify(ctx, inbound)
		if coreErr != nil {
			return coreErr
		}
		if err := h.hub.Associate(ctx, client, id); err != nil {
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("associate failed")
			return errorFromCore(err)
		}
		return nil
	case proto.InboundTypeUserOffline:
		h.hub.Dissociate(ctx, client)
		return nil
	default:
		return core.NewError(core.ErrCodeBadRequest, "unknown message type")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
