package handlers

import (
	"errors"
	"net/http"
	"time"

	"blerelay"
	"blerelay/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusSent         = "sent"

	errConnectFailed   = "failed to connect to device"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Respond with a status plus the current link status snapshot.
func (h *Handler) respondWithStatus(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	resp["device"] = h.services.Monitoring.Status()
	c.JSON(http.StatusOK, resp)
}

// AlarmRequest is the operator's draft alarm time. It stays request-side
// scratch until the command round-trips through a device notification.
type AlarmRequest struct {
	// Alarm hour, 0-23
	Hour int `json:"hour" binding:"min=0,max=23"`
	// Alarm minute, 0-59
	Minute int `json:"minute" binding:"min=0,max=59"`
}

// SyncRequest optionally pins the epoch to sync; zero means "now".
type SyncRequest struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Connect to the appliance
// @Description  Runs the BLE handshake: link, session, service, characteristic, subscribe.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, device"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/device/connect [post]
// @Security     BearerAuth
func (h *Handler) connectDevice(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Session.Connect(ctx); err != nil {
		if errors.Is(err, service.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		// Handshake failures carry one of the five descriptive reasons.
		h.logAndJSONError(c, http.StatusBadGateway, err.Error(), "device_connect_failed", err)
		return
	}
	h.respondWithStatus(c, statusConnected, gin.H{})
}

// @Summary      Disconnect from the appliance
// @Description  Idempotent; forces the link to IDLE immediately.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/disconnect [post]
// @Security     BearerAuth
func (h *Handler) disconnectDevice(c *gin.Context) {
	h.services.Session.Disconnect()
	h.respondWithStatus(c, statusDisconnected, gin.H{})
}

// @Summary      Get link and appliance status
// @Description  Connection state, last snapshot, and a countdown derived from the device clock.
// @Tags         device
// @Produce      json
// @Success      200  {object}  service.Status
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/state [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.Status())
}

// @Summary      Toggle relay
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/device/relay [post]
// @Security     BearerAuth
func (h *Handler) toggleRelay(c *gin.Context) {
	h.sendCommand(c, blerelay.Command{Kind: blerelay.CmdToggleRelay})
}

// @Summary      Toggle arming
// @Description  Disarming forces the relay off as a safety default.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/device/arm [post]
// @Security     BearerAuth
func (h *Handler) toggleArm(c *gin.Context) {
	h.sendCommand(c, blerelay.Command{Kind: blerelay.CmdToggleArm})
}

// @Summary      Set alarm time
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body   AlarmRequest  true  "Alarm payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/device/alarm [post]
// @Security     BearerAuth
func (h *Handler) setAlarm(c *gin.Context) {
	var req AlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	h.sendCommand(c, blerelay.Command{Kind: blerelay.CmdSetAlarm, Hour: req.Hour, Minute: req.Minute})
}

// @Summary      Sync device clock
// @Description  Re-bases the appliance clock; empty body means "now".
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body   SyncRequest  false  "Optional explicit epoch seconds"
// @Success      200   {object}  map[string]interface{}
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/device/sync [post]
// @Security     BearerAuth
func (h *Handler) syncTime(c *gin.Context) {
	var req SyncRequest
	_ = c.ShouldBindJSON(&req) // optional body
	ts := req.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	h.sendCommand(c, blerelay.Command{Kind: blerelay.CmdSyncTime, Timestamp: ts})
}

// sendCommand pushes one command through the session and maps rejection to
// HTTP codes: 409 when not connected, 502 when the write itself failed.
func (h *Handler) sendCommand(c *gin.Context, cmd blerelay.Command) {
	ctx := c.Request.Context()
	if err := h.services.Session.Send(ctx, cmd); err != nil {
		if errors.Is(err, service.ErrNotConnected) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusBadGateway, err.Error(), "device_command_failed", err, "kind", string(cmd.Kind))
		return
	}
	h.respondWithStatus(c, statusSent, gin.H{"kind": string(cmd.Kind)})
}
