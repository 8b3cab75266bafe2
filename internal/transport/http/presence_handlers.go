package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirepresence/internal/config"
	"github.com/vovakirdan/wirepresence/internal/presence"
)

// PresenceHandlers serves the online counter and, in poll mode, heartbeats.
type PresenceHandlers struct {
	counter    presence.Counter
	heartbeats *presence.Heartbeats
	settings   config.PresenceConfig
	log        *zerolog.Logger
}

// NewPresenceHandlers creates presence handlers. heartbeats is nil in push mode.
func NewPresenceHandlers(counter presence.Counter, heartbeats *presence.Heartbeats, settings config.PresenceConfig, logger *zerolog.Logger) *PresenceHandlers {
	return &PresenceHandlers{
		counter:    counter,
		heartbeats: heartbeats,
		settings:   settings,
		log:        logger,
	}
}

// CountResponse is the online counter body.
type CountResponse struct {
	Count int `json:"count"`
}

// SuccessResponse acknowledges a presence signal.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SettingsResponse tells clients how to keep themselves online.
type SettingsResponse struct {
	Mode                string `json:"mode"`
	HeartbeatIntervalMs int64  `json:"heartbeatIntervalMs,omitempty"`
}

// OnlineCount returns the number of users online.
// GET /api/online-count
func (h *PresenceHandlers) OnlineCount(c *gin.Context) {
	n, err := h.counter.OnlineCount(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to count online users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "online count unavailable"})
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// Settings describes the active presence mode.
// GET /api/presence
func (h *PresenceHandlers) Settings(c *gin.Context) {
	resp := SettingsResponse{Mode: h.settings.Mode}
	if h.heartbeats != nil {
		resp.HeartbeatIntervalMs = h.settings.HeartbeatInterval.Milliseconds()
	}
	c.JSON(http.StatusOK, resp)
}

// UserOnline records a heartbeat for the caller.
// POST /api/user-online
func (h *PresenceHandlers) UserOnline(c *gin.Context) {
	username := c.GetString(ContextKeyUsername)
	if err := h.heartbeats.Online(c.Request.Context(), presence.Identity(username)); err != nil {
		h.log.Warn().Err(err).Str("identity", username).Msg("heartbeat not recorded")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// UserOffline removes the caller from the online set.
// POST /api/user-offline
func (h *PresenceHandlers) UserOffline(c *gin.Context) {
	username := c.GetString(ContextKeyUsername)
	if err := h.heartbeats.Offline(c.Request.Context(), presence.Identity(username)); err != nil {
		h.log.Warn().Err(err).Str("identity", username).Msg("offline signal not recorded")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
