package handler

import (
	"context"
	"net/http"

	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/service"

	"github.com/gin-gonic/gin"
)

type ExchangeHandler struct {
	svc *service.ExchangeService
}

func NewExchangeHandler(svc *service.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{svc: svc}
}

type ExchangeRequestBody struct {
	Message string `json:"message" binding:"max=512"`
}

// Request asks for a book and pays its point value up front.
func (h *ExchangeHandler) Request(c *gin.Context) {
	bookID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body ExchangeRequestBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	req, balance, err := h.svc.Request(c.Request.Context(), middleware.GetUserID(c), bookID, body.Message)
	if err != nil {
		respondError(c, err, "request failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": req, "balance": balance})
}

func (h *ExchangeHandler) Accept(c *gin.Context) {
	h.transition(c, h.svc.Accept)
}

func (h *ExchangeHandler) Reject(c *gin.Context) {
	h.transition(c, h.svc.Reject)
}

func (h *ExchangeHandler) Cancel(c *gin.Context) {
	h.transition(c, h.svc.Cancel)
}

func (h *ExchangeHandler) Complete(c *gin.Context) {
	h.transition(c, h.svc.Complete)
}

func (h *ExchangeHandler) transition(c *gin.Context, fn func(ctx context.Context, userID, requestID uint) (*models.ExchangeRequest, error)) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, err := fn(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err, "request update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// Mine lists outgoing requests, or incoming ones with ?box=incoming.
func (h *ExchangeHandler) Mine(c *gin.Context) {
	incoming := c.Query("box") == "incoming"
	list, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), incoming)
	if err != nil {
		respondError(c, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}
