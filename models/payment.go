package models

import (
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Known() bool {
	switch s {
	case PaymentInitiated, PaymentPending, PaymentSuccess, PaymentFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition occurs without a new attempt.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

// InitiatePaymentRequest is the body sent to the gateway collaborator.
type InitiatePaymentRequest struct {
	OrderID     string `json:"order_id"`
	PhoneNumber string `json:"phone_number"`
}

// InitiatePaymentResponse is the gateway's answer to an STK push request.
type InitiatePaymentResponse struct {
	PaymentID         string `json:"payment_id"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	CustomerMessage   string `json:"customer_message,omitempty"`
	Message           string `json:"message,omitempty"`
}

func (r *InitiatePaymentResponse) Validate() error {
	if r.PaymentID == "" {
		return fmt.Errorf("initiate response: missing payment_id")
	}
	return nil
}

// PaymentStatusResponse is one poll's view of an attempt.
type PaymentStatusResponse struct {
	PaymentID         string        `json:"payment_id"`
	Status            PaymentStatus `json:"status"`
	MpesaReceipt      string        `json:"mpesa_receipt,omitempty"`
	ResultDescription string        `json:"result_description,omitempty"`
	OrderStatus       OrderStatus   `json:"order_status,omitempty"`
}

func (r *PaymentStatusResponse) Validate() error {
	if r.PaymentID == "" {
		return fmt.Errorf("status response: missing payment_id")
	}
	if !r.Status.Known() {
		return fmt.Errorf("status response %s: unknown status %q", r.PaymentID, r.Status)
	}
	return nil
}

// PaymentEvent is published on terminal transitions of a watched attempt.
type PaymentEvent struct {
	Type      string    `json:"type"` // payment_succeeded, payment_failed, payment_timed_out
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
