package handler

import (
	"net/http"
	"strconv"

	"bookswap/config"
	"bookswap/internal/ledger"
	"bookswap/internal/middleware"
	"bookswap/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type PointsHandler struct {
	ledger   *ledger.Service
	provider payment.Provider
	cfg      *config.PaymentConfig
}

func NewPointsHandler(l *ledger.Service, provider payment.Provider, cfg *config.PaymentConfig) *PointsHandler {
	return &PointsHandler{ledger: l, provider: provider, cfg: cfg}
}

// Balance returns the caller's cached points balance.
func (h *PointsHandler) Balance(c *gin.Context) {
	userID := middleware.GetUserID(c)
	bal, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "balance unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "points": bal})
}

func (h *PointsHandler) History(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	page, err := h.ledger.GetHistory(c.Request.Context(), userID, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err, "history unavailable")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PointsHandler) Packages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"currency": h.cfg.Currency, "packages": config.Packages})
}

type CheckoutRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

// Checkout starts a hosted payment for a points package. The points arrive
// through the payment webhook once the provider confirms.
func (h *PointsHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pkg, ok := config.FindPackage(req.PackageID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown package", "field": "package_id"})
		return
	}
	userID := middleware.GetUserID(c)
	idem := c.GetHeader("Idempotency-Key")
	if idem == "" {
		idem = uuid.NewString()
	}
	resp, err := h.provider.CreateCheckout(c.Request.Context(), payment.CheckoutRequest{
		UserID:         userID,
		Points:         pkg.Points,
		AmountCents:    pkg.AmountCents,
		Currency:       h.cfg.Currency,
		ProductName:    pkg.Name,
		IdempotencyKey: idem,
		SuccessURL:     h.cfg.SuccessURL,
		CancelURL:      h.cfg.CancelURL,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"user_id": userID, "package": pkg.ID}).Error("checkout creation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})
		return
	}
	log.WithFields(log.Fields{"user_id": userID, "package": pkg.ID, "reference": resp.Reference}).Info("checkout started")
	c.JSON(http.StatusCreated, gin.H{
		"reference":    resp.Reference,
		"checkout_url": resp.CheckoutURL,
		"expires_at":   resp.ExpiresAt,
		"points":       pkg.Points,
		"amount_cents": pkg.AmountCents,
		"currency":     h.cfg.Currency,
	})
}
