package handler

import (
	"net/http"
	"strconv"

	"bookswap/internal/ledger"
	"bookswap/internal/repository"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	ledger    *ledger.Service
	adminRepo *repository.AdminRepository
	audit     *repository.AuditLogRepository
}

func NewAdminHandler(l *ledger.Service, adminRepo *repository.AdminRepository, audit *repository.AuditLogRepository) *AdminHandler {
	return &AdminHandler{ledger: l, adminRepo: adminRepo, audit: audit}
}

// Dashboard handles GET /admin/dashboard: points economy overview.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.adminRepo.GetDashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err, "stats unavailable")
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	series, err := h.adminRepo.PointsByDay(c.Request.Context(), days)
	if err != nil {
		respondError(c, err, "stats unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "points_by_day": series})
}

func (h *AdminHandler) Users(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	users, total, err := h.adminRepo.ListUsers(c.Request.Context(), c.Query("search"), page, limit)
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

func (h *AdminHandler) Transactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, total, err := h.adminRepo.ListTransactions(c.Request.Context(), c.Query("type"), page, limit)
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list, "total": total})
}

// Reconcile compares a user's cached balance with the sum of their transactions.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	r, err := h.ledger.Reconcile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "reconcile failed")
		return
	}
	c.JSON(http.StatusOK, r)
}

// AuditLogs lists the trail for one action, e.g. payment_unmatched or webhook_auth_failed.
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	action := c.Query("action")
	if action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.audit.ListByAction(c.Request.Context(), action, limit)
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": list})
}
