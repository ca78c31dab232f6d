package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/laserpanama/legal-practice-stack/internal/api/middleware"
	"github.com/laserpanama/legal-practice-stack/internal/lifecycle"
	"github.com/laserpanama/legal-practice-stack/internal/services"
	"github.com/laserpanama/legal-practice-stack/internal/signing"
	"go.uber.org/zap"
)

type RequestHandler struct {
	service *services.SignatureService
	logger  *zap.Logger
}

func NewRequestHandler(service *services.SignatureService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{service: service, logger: logger}
}

func (h *RequestHandler) actor(c *gin.Context) lifecycle.Actor {
	principal := middleware.Principal(c)
	if principal == nil {
		return lifecycle.Actor{}
	}
	return lifecycle.Actor{ID: principal.UserID, Email: principal.Email}
}

func (h *RequestHandler) Create(c *gin.Context) {
	var input services.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.CreateRequest(c.Request.Context(), input, h.actor(c))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *RequestHandler) Get(c *gin.Context) {
	req, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *RequestHandler) Send(c *gin.Context) {
	mail, err := h.service.SendRequest(c.Request.Context(), c.Param("id"), h.actor(c))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "mail": mail})
}

func (h *RequestHandler) MarkViewed(c *gin.Context) {
	req, err := h.service.MarkViewed(c.Request.Context(), c.Param("id"), h.actor(c))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *RequestHandler) Sign(c *gin.Context) {
	var input services.CompleteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.CompleteSignature(c.Request.Context(), c.Param("id"), h.actor(c), input)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *RequestHandler) Reject(c *gin.Context) {
	var input struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.RejectRequest(c.Request.Context(), c.Param("id"), h.actor(c), input.Reason)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	req, err := h.service.CancelRequest(c.Request.Context(), c.Param("id"), h.actor(c))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Trail is admin-only; the read itself is appended to the trail as an
// audit_accessed event.
func (h *RequestHandler) Trail(c *gin.Context) {
	events, err := h.service.Trail(c.Request.Context(), c.Param("id"), middleware.Principal(c))
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *RequestHandler) VerifyCompliance(c *gin.Context) {
	var input struct {
		CurrentHash string `json:"currentHash"`
	}
	// Body is optional: verification without a current hash skips tamper
	// comparison.
	_ = c.ShouldBindJSON(&input)

	record, err := h.service.VerifyCompliance(c.Request.Context(), c.Param("id"), middleware.Principal(c), input.CurrentHash)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RequestHandler) abortError(c *gin.Context, err error) {
	var invalid *lifecycle.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid transition",
			"from":  invalid.From,
			"to":    invalid.To,
		})
	case errors.Is(err, services.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "signature request not found"})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrSignatureNotValid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, signing.ErrSigningAuthority):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request handler failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
