package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"bookswap/internal/models"
	"bookswap/internal/payments"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const maxWebhookBody = 64 << 10

type PaymentWebhookHandler struct {
	intake *payments.Intake
	audit  AuditSink
}

func NewPaymentWebhookHandler(intake *payments.Intake, audit AuditSink) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{intake: intake, audit: audit}
}

// Stripe receives payment provider events. 2xx tells the provider to stop
// retrying; 5xx asks it to deliver again.
func (h *PaymentWebhookHandler) Stripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	out := h.intake.HandlePaymentCompleted(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	switch out.Kind {
	case payments.OutcomeCredited, payments.OutcomeDuplicate, payments.OutcomeIgnored:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case payments.OutcomeRejected:
		h.record(c, "webhook_auth_failed", out, nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
	case payments.OutcomeInvalid:
		h.record(c, "payment_unmatched", out, nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": out.Err.Error()})
	case payments.OutcomeUnknownUser:
		h.record(c, "payment_unmatched", out, &out.UserID)
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}

func (h *PaymentWebhookHandler) record(c *gin.Context, action string, out payments.Outcome, userID *uint) {
	if h.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"event_type": out.EventType,
		"points":     out.Points,
		"reason":     errString(out.Err),
	})
	err := h.audit.Create(c.Request.Context(), &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "payment_event",
		ResourceID: out.EventID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Metadata:   string(meta),
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"action": action, "event_id": out.EventID}).Error("audit log write failed")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
