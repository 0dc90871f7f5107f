package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/internal/services"
	"github.com/tripnest/booking-backend/pkg/idempotency"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Signature"

const (
	webhookSource     = "payments"
	maxWebhookBodyLen = 64 << 10
)

// gatewayEvents maps payment gateway event types onto booking triggers
var gatewayEvents = map[string]models.BookingEvent{
	"payment.captured":  models.EventPaymentSucceeded,
	"payment.failed":    models.EventPaymentFailed,
	"refund.processing": models.EventBeginRefundProcessing,
	"refund.processed":  models.EventCompleteRefund,
	"refund.failed":     models.EventRejectRefund,
	"payout.processed":  models.EventPayoutSucceeded,
	"payout.failed":     models.EventPayoutFailed,
}

// PaymentWebhook is the gateway's notification envelope
type PaymentWebhook struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		BookingID string  `json:"booking_id"`
		Reference *string `json:"reference,omitempty"`
	} `json:"data"`
}

// WebhookHandler receives payment gateway notifications
type WebhookHandler struct {
	coordinator *services.ReservationCoordinator
	deduper     idempotency.Deduper
	secret      []byte
	logger      *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler. An empty secret disables
// signature checks; configuration refuses that in production.
func NewWebhookHandler(
	coordinator *services.ReservationCoordinator,
	deduper idempotency.Deduper,
	secret string,
	logger *logrus.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		coordinator: coordinator,
		deduper:     deduper,
		secret:      []byte(secret),
		logger:      logger,
	}
}

// SignPayload returns the signature the gateway sends for body
func SignPayload(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) validSignature(body []byte, signature string) bool {
	if len(h.secret) == 0 {
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(SignPayload(h.secret, body))
	return hmac.Equal(got, want)
}

// HandlePayment handles POST /api/v1/webhooks/payments
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyLen))
	if err != nil {
		respondBadRequest(c, "Failed to read request body")
		return
	}

	if !h.validSignature(body, c.GetHeader(SignatureHeader)) {
		h.logger.WithField("ip", c.ClientIP()).Warn("Webhook rejected: invalid signature")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_signature",
			Message: "Webhook signature verification failed",
			Code:    "INVALID_SIGNATURE",
		})
		return
	}

	var webhook PaymentWebhook
	if err := json.Unmarshal(body, &webhook); err != nil {
		respondBadRequest(c, "Invalid webhook payload")
		return
	}
	if webhook.ID == "" || webhook.Data.BookingID == "" {
		respondBadRequest(c, "id and data.booking_id are required")
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"webhook_id":   webhook.ID,
		"webhook_type": webhook.Type,
		"booking_id":   webhook.Data.BookingID,
	})

	event, known := gatewayEvents[webhook.Type]
	if !known {
		// Acknowledge so the gateway stops retrying types we do not handle
		log.Info("Ignoring unhandled webhook type")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := c.Request.Context()
	key := idempotency.Key(webhookSource, webhook.ID)
	duplicate, err := h.deduper.Seen(ctx, key)
	if err != nil {
		// Lifecycle triggers are idempotent, so a missing dedupe only costs a replay
		log.WithError(err).Warn("Idempotency check failed, applying anyway")
	}
	if duplicate {
		log.Info("Duplicate webhook delivery")
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	// Unless the event is applied, drop the key so the gateway's redelivery is
	// processed. This also runs when applying panics.
	applied := false
	defer func() {
		if applied {
			return
		}
		if ferr := h.deduper.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			log.WithError(ferr).Warn("Failed to clear idempotency key")
		}
	}()

	booking, err := h.coordinator.ApplyBookingEvent(
		ctx,
		webhook.Data.BookingID,
		event,
		models.EventPayload{Reference: webhook.Data.Reference},
		auditContext(c, models.AuditSourceWebhook),
	)
	if err != nil {
		respondServiceError(c, h.logger, "payment_webhook", err)
		return
	}
	applied = true

	if err := h.deduper.Done(context.WithoutCancel(ctx), key); err != nil {
		// Left in flight; it expires early and a redelivery replays harmlessly
		log.WithError(err).Warn("Failed to complete idempotency key")
	}

	log.WithField("event", event).Info("Webhook applied")
	c.JSON(http.StatusOK, gin.H{
		"status":         "applied",
		"booking_id":     booking.ID,
		"payment_status": booking.PaymentStatus,
		"refund_status":  booking.RefundStatus,
		"payout_status":  booking.VendorPayoutStatus,
	})
}
