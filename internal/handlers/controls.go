package handlers

import (
	"net/http"
	"time"

	"helmbridge/internal/service"
	"helmbridge/internal/signalk"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK = "ok"

	errSendControl     = "failed to send command"
	errGetValue        = "failed to load value"
	errInvalidBodyPref = "invalid body: "

	maxVerifyWindow = time.Minute
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Request DTO for sending a control command.
type controlRequest struct {
	Path     string `json:"path" binding:"required"` // e.g. steering.autopilot.state
	Value    any    `json:"value"`
	Verify   bool   `json:"verify,omitempty"`    // wait for confirmation on the data feed
	WindowMS int    `json:"window_ms,omitempty"` // verification window override
}

// SendControlRequest is an exported model for Swagger docs of the control payload.
type SendControlRequest struct {
	// Dotted control path, e.g. steering.autopilot.state
	Path string `json:"path" example:"steering.autopilot.state"`
	// Value to write; type depends on the path (string mode, bool switch, number target)
	Value any `json:"value" swaggertype:"string" example:"auto"`
	// Wait for the commanded value to come back on the data feed
	Verify bool `json:"verify,omitempty" example:"true"`
	// Verification window in milliseconds (optional)
	WindowMS int `json:"window_ms,omitempty" example:"5000"`
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

// @Summary      Send control command
// @Description  Submits a write to a control path. With verify=true the response reports whether the commanded value came back on the data feed within the window ("verified"), timed out ("sent_unconfirmed"), or was superseded by a newer command on the same path.
// @Tags         controls
// @Accept       json
// @Produce      json
// @Param        body  body   SendControlRequest  true  "Command payload"
// @Success      200   {object}  map[string]interface{}  "path, value, outcome"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Failure      504   {object}  map[string]string
// @Router       /api/v1/controls [post]
// @Security     BearerAuth
func (h *Handler) sendControl(c *gin.Context) {
	ctx := c.Request.Context()

	var input controlRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	window := time.Duration(input.WindowMS) * time.Millisecond
	if window < 0 || window > maxVerifyWindow {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window_ms out of range"})
		return
	}

	res, err := h.services.Controls.Send(ctx, service.SendParams{
		Path:   input.Path,
		Value:  input.Value,
		Verify: input.Verify,
		Window: window,
	})
	if err != nil {
		kind := signalk.KindOf(err)
		h.logAndJSONError(c, submissionStatus(kind), errSendControl, "control_send_failed", err,
			"path", input.Path, "kind", string(kind))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":    res.Path,
		"value":   res.Value,
		"outcome": res.Outcome,
	})
}

// submissionStatus maps a command submission failure to an HTTP status. The
// upstream server sits behind this gateway, so its refusals surface as
// gateway-range statuses, not as this API's own 4xx.
func submissionStatus(kind signalk.ErrorKind) int {
	switch kind {
	case signalk.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case signalk.ErrKindUnauthorized, signalk.ErrKindRejected:
		return http.StatusBadGateway
	default: // network
		return http.StatusBadGateway
	}
}
