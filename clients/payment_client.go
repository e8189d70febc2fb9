package clients

import (
	"context"
	"net/http"

	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/session"
)

// PaymentGateway is what the confirmation engine needs from the external
// mobile-money collaborator.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, sess session.Handle, orderID, phone string) (*models.InitiatePaymentResponse, error)
	PaymentStatus(ctx context.Context, sess session.Handle, paymentID string) (*models.PaymentStatusResponse, error)
}

type PaymentClient struct {
	gateway *GatewayClient
}

func NewPaymentClient(gateway *GatewayClient) *PaymentClient {
	return &PaymentClient{gateway: gateway}
}

// InitiatePayment asks the gateway to send an STK push for the order.
// The phone number must already be normalized.
func (p *PaymentClient) InitiatePayment(ctx context.Context, sess session.Handle, orderID, phone string) (*models.InitiatePaymentResponse, error) {
	req := models.InitiatePaymentRequest{OrderID: orderID, PhoneNumber: phone}

	var out models.InitiatePaymentResponse
	if err := p.gateway.DoJSON(ctx, sess, http.MethodPost, "/payments/mpesa/initiate", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentStatus fetches the current state of one attempt.
func (p *PaymentClient) PaymentStatus(ctx context.Context, sess session.Handle, paymentID string) (*models.PaymentStatusResponse, error) {
	var out models.PaymentStatusResponse
	if err := p.gateway.DoJSON(ctx, sess, http.MethodGet, "/payments/"+paymentID+"/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
