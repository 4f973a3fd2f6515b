package handler

import (
	"context"
	"net/http"

	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type AuditSink interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

type AuthHandler struct {
	svc   *service.AuthService
	audit AuditSink
}

func NewAuthHandler(svc *service.AuthService, audit AuditSink) *AuthHandler {
	return &AuthHandler{svc: svc, audit: audit}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8"`
	City     string `json:"city" binding:"max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, tokens, err := h.svc.Register(c.Request.Context(), req.Email, req.Username, req.Password, req.City)
	if err != nil {
		respondError(c, err, "registration failed")
		return
	}
	h.auditLog(c, u.ID, "register")
	c.JSON(http.StatusCreated, gin.H{
		"user":          u,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, "login failed")
		return
	}
	h.auditLog(c, u.ID, "login")
	c.JSON(http.StatusOK, gin.H{
		"user":          u,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err, "refresh failed")
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	if err := h.svc.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err, "password change failed")
		return
	}
	h.auditLog(c, userID, "password_changed")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandler) auditLog(c *gin.Context, userID uint, action string) {
	if h.audit == nil {
		return
	}
	err := h.audit.Create(c.Request.Context(), &models.AuditLog{
		UserID:    &userID,
		Action:    action,
		Resource:  "user",
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		log.WithError(err).WithField("action", action).Warn("audit log write failed")
	}
}
