package handler

import (
	"net/http"
	"strconv"

	"bookswap/internal/middleware"
	"bookswap/internal/repository"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	repo *repository.NotificationRepository
}

func NewNotificationHandler(repo *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.repo.ListByUserID(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	unread, err := h.repo.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.repo.MarkRead(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondError(c, err, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
