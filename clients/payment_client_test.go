package clients_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Victormzing/storefront-bff/clients"
	apperrors "github.com/Victormzing/storefront-bff/errors"
	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/session"
	"github.com/stretchr/testify/assert"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*clients.PaymentClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return clients.NewPaymentClient(clients.NewGatewayClient(srv.URL, 2*time.Second)), srv
}

func sess() session.Handle {
	return session.Handle{UserID: "user_1", Token: "token"}
}

func TestInitiatePaymentSendsNormalizedPayload(t *testing.T) {
	var got models.InitiatePaymentRequest
	var gotAuth string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/mpesa/initiate", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(models.InitiatePaymentResponse{
			PaymentID:       "pay_1",
			CustomerMessage: "Check your phone",
		})
	})

	resp, err := client.InitiatePayment(context.Background(), sess(), "order_1", "254712345678")

	assert.NoError(t, err)
	assert.Equal(t, "pay_1", resp.PaymentID)
	assert.Equal(t, "order_1", got.OrderID)
	assert.Equal(t, "254712345678", got.PhoneNumber)
	assert.Equal(t, "Bearer token", gotAuth)
}

func TestInitiatePaymentSurfacesUpstreamMessage(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Order is not pending payment"})
	})

	_, err := client.InitiatePayment(context.Background(), sess(), "order_1", "254712345678")

	var appErr *apperrors.Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	assert.Equal(t, "Order is not pending payment", appErr.Message)
}

func TestPaymentStatusDecodesKnownStates(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1/status", r.URL.Path)
		json.NewEncoder(w).Encode(models.PaymentStatusResponse{
			PaymentID:    "pay_1",
			Status:       models.PaymentSuccess,
			MpesaReceipt: "ABC123",
			OrderStatus:  models.OrderPaid,
		})
	})

	st, err := client.PaymentStatus(context.Background(), sess(), "pay_1")

	assert.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, st.Status)
	assert.Equal(t, "ABC123", st.MpesaReceipt)
	assert.Equal(t, models.OrderPaid, st.OrderStatus)
}

func TestPaymentStatusRejectsUnknownStatus(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"payment_id": "pay_1", "status": "exploded"})
	})

	_, err := client.PaymentStatus(context.Background(), sess(), "pay_1")

	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
}

func TestPaymentStatusRejectsNonJSONBody(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway timeout</html>"))
	})

	_, err := client.PaymentStatus(context.Background(), sess(), "pay_1")

	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
}

func TestPaymentClientTransportErrorIsBadGateway(t *testing.T) {
	client := clients.NewPaymentClient(clients.NewGatewayClient("http://127.0.0.1:1", time.Second))

	_, err := client.PaymentStatus(context.Background(), sess(), "pay_1")

	assert.ErrorIs(t, err, apperrors.ErrBadGateway)
}
