package handler

import (
	"net/http"
	"strings"

	"bookswap/internal/middleware"
	"bookswap/internal/repository"

	"github.com/gin-gonic/gin"
)

type MeHandler struct {
	userRepo *repository.UserRepository
}

func NewMeHandler(userRepo *repository.UserRepository) *MeHandler {
	return &MeHandler{userRepo: userRepo}
}

// Profile returns the caller, including the cached points balance.
func (h *MeHandler) Profile(c *gin.Context) {
	u, err := h.userRepo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "profile unavailable")
		return
	}
	c.JSON(http.StatusOK, u)
}

type UpdateProfileRequest struct {
	City      string `json:"city" binding:"max=128"`
	AvatarURL string `json:"avatar_url" binding:"omitempty,url,max=512"`
}

func (h *MeHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	if err := h.userRepo.UpdateProfile(c.Request.Context(), userID, strings.TrimSpace(req.City), req.AvatarURL); err != nil {
		respondError(c, err, "update failed")
		return
	}
	h.Profile(c)
}

// RegisterFCMToken saves the FCM token for push notifications.
func (h *MeHandler) RegisterFCMToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required,max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	if err := h.userRepo.UpdateFCMToken(c.Request.Context(), middleware.GetUserID(c), req.Token); err != nil {
		respondError(c, err, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
