package handler

import (
	"io"

	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderSignature carries the hex HMAC-SHA256 of "<timestamp>.<body>".
	HeaderSignature = "X-Signature"
	// HeaderTimestamp carries the unix-seconds timestamp the sender signed.
	HeaderTimestamp = "X-Timestamp"
)

// WebhookHandler receives provider callbacks and hands them to the
// security gate. All authentication, replay protection, and dispatch
// happen behind the gate; the handler only moves bytes.
type WebhookHandler struct {
	gate ports.WebhookGate
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(gate ports.WebhookGate) *WebhookHandler {
	return &WebhookHandler{gate: gate}
}

// HandleCallback handles POST /v1/webhooks/:provider.
func (h *WebhookHandler) HandleCallback(c *gin.Context) {
	provider := c.Param("provider")

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	result, err := h.gate.HandleProviderEvent(c.Request.Context(), provider, ports.WebhookHeaders{
		Signature: c.GetHeader(HeaderSignature),
		Timestamp: c.GetHeader(HeaderTimestamp),
	}, rawBody)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}
