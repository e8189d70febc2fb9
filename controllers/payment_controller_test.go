package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Victormzing/storefront-bff/controllers"
	apperrors "github.com/Victormzing/storefront-bff/errors"
	"github.com/Victormzing/storefront-bff/services"
	"github.com/Victormzing/storefront-bff/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// ---- mock payment flow ----

type mockPaymentFlow struct {
	initiateResult *services.InitiateResult
	initiateErr    error
	statusResult   *services.StatusResult
	statusErr      error
	retryErr       error

	gotOrderID   string
	gotPhone     string
	gotPaymentID string
	gotSession   session.Handle
}

func (m *mockPaymentFlow) InitiatePayment(_ context.Context, sess session.Handle, orderID, phone string) (*services.InitiateResult, error) {
	m.gotSession = sess
	m.gotOrderID = orderID
	m.gotPhone = phone
	return m.initiateResult, m.initiateErr
}

func (m *mockPaymentFlow) PaymentStatus(_ context.Context, sess session.Handle, paymentID string) (*services.StatusResult, error) {
	m.gotSession = sess
	m.gotPaymentID = paymentID
	return m.statusResult, m.statusErr
}

func (m *mockPaymentFlow) RetryPayment(_ context.Context, sess session.Handle, paymentID string) error {
	m.gotSession = sess
	m.gotPaymentID = paymentID
	return m.retryErr
}

// ---- helpers ----

func setupRouter(flow *mockPaymentFlow, authed bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authed {
		r.Use(func(c *gin.Context) {
			session.Store(c, session.Handle{UserID: "user_1", Token: "token"})
		})
	}
	ctrl := controllers.NewPaymentController(flow)
	r.POST("/bff/payments/mpesa/initiate", ctrl.Initiate)
	r.GET("/bff/payments/:payment_id/status", ctrl.Status)
	r.POST("/bff/payments/:payment_id/retry", ctrl.Retry)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---- tests ----

func TestInitiateReturnsPaymentID(t *testing.T) {
	flow := &mockPaymentFlow{
		initiateResult: &services.InitiateResult{PaymentID: "pay_1", Message: "STK push sent, check your phone"},
	}
	r := setupRouter(flow, true)

	w := doJSON(r, http.MethodPost, "/bff/payments/mpesa/initiate",
		gin.H{"order_id": "order_1", "phone_number": "0712345678"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp services.InitiateResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pay_1", resp.PaymentID)
	assert.Equal(t, "order_1", flow.gotOrderID)
	assert.Equal(t, "0712345678", flow.gotPhone)
	assert.Equal(t, "user_1", flow.gotSession.UserID)
}

func TestInitiateRequiresBodyFields(t *testing.T) {
	r := setupRouter(&mockPaymentFlow{}, true)

	w := doJSON(r, http.MethodPost, "/bff/payments/mpesa/initiate", gin.H{"order_id": "order_1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInitiateWithoutSessionIsUnauthorized(t *testing.T) {
	r := setupRouter(&mockPaymentFlow{}, false)

	w := doJSON(r, http.MethodPost, "/bff/payments/mpesa/initiate",
		gin.H{"order_id": "order_1", "phone_number": "0712345678"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInitiateMapsApplicationErrors(t *testing.T) {
	flow := &mockPaymentFlow{initiateErr: apperrors.ErrOrderNotPayable}
	r := setupRouter(flow, true)

	w := doJSON(r, http.MethodPost, "/bff/payments/mpesa/initiate",
		gin.H{"order_id": "order_1", "phone_number": "0712345678"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Order is not pending payment")
}

func TestStatusReturnsWatcherState(t *testing.T) {
	flow := &mockPaymentFlow{
		statusResult: &services.StatusResult{
			PaymentID:    "pay_1",
			OrderID:      "order_1",
			State:        services.StateSuccess,
			MpesaReceipt: "ABC123",
		},
	}
	r := setupRouter(flow, true)

	w := doJSON(r, http.MethodGet, "/bff/payments/pay_1/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pay_1", flow.gotPaymentID)
	var resp services.StatusResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, services.StateSuccess, resp.State)
	assert.Equal(t, "ABC123", resp.MpesaReceipt)
}

func TestStatusUnknownPayment(t *testing.T) {
	flow := &mockPaymentFlow{statusErr: apperrors.ErrPaymentNotFound}
	r := setupRouter(flow, true)

	w := doJSON(r, http.MethodGet, "/bff/payments/nope/status", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryHappyPath(t *testing.T) {
	flow := &mockPaymentFlow{}
	r := setupRouter(flow, true)

	w := doJSON(r, http.MethodPost, "/bff/payments/pay_1/retry", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pay_1", flow.gotPaymentID)
}

func TestRetryRejectedWhilePending(t *testing.T) {
	flow := &mockPaymentFlow{
		retryErr: apperrors.WithMessage(apperrors.ErrBadRequest, "payment is not in a retryable state"),
	}
	r := setupRouter(flow, true)

	w := doJSON(r, http.MethodPost, "/bff/payments/pay_1/retry", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not in a retryable state")
}
