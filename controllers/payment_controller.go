package controllers

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/Victormzing/storefront-bff/errors"
	"github.com/Victormzing/storefront-bff/services"
	"github.com/Victormzing/storefront-bff/session"
	"github.com/gin-gonic/gin"
)

// PaymentFlow is the slice of the watcher registry the HTTP layer needs.
type PaymentFlow interface {
	InitiatePayment(ctx context.Context, sess session.Handle, orderID, phone string) (*services.InitiateResult, error)
	PaymentStatus(ctx context.Context, sess session.Handle, paymentID string) (*services.StatusResult, error)
	RetryPayment(ctx context.Context, sess session.Handle, paymentID string) error
}

type PaymentController struct {
	flow PaymentFlow
}

func NewPaymentController(flow PaymentFlow) *PaymentController {
	return &PaymentController{flow: flow}
}

type initiateRequest struct {
	OrderID     string `json:"order_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// Initiate handles POST /bff/payments/initiate.
func (p *PaymentController) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id and phone_number are required"})
		return
	}

	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := p.flow.InitiatePayment(c.Request.Context(), sess, req.OrderID, req.PhoneNumber)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Status handles GET /bff/payments/:payment_id/status.
func (p *PaymentController) Status(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := p.flow.PaymentStatus(c.Request.Context(), sess, c.Param("payment_id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Retry handles POST /bff/payments/:payment_id/retry.
func (p *PaymentController) Retry(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := p.flow.RetryPayment(c.Request.Context(), sess, c.Param("payment_id")); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment reset, initiate again to retry"})
}

func renderError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
