package clients

import (
	"context"
	"net/http"

	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/session"
)

// OrderGateway exposes the order snapshots the payment flow renders and
// guards against.
type OrderGateway interface {
	GetOrder(ctx context.Context, sess session.Handle, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, sess session.Handle) ([]models.Order, error)
}

type OrderClient struct {
	gateway *GatewayClient
}

func NewOrderClient(gateway *GatewayClient) *OrderClient {
	return &OrderClient{gateway: gateway}
}

func (o *OrderClient) GetOrder(ctx context.Context, sess session.Handle, orderID string) (*models.Order, error) {
	var out models.Order
	if err := o.gateway.DoJSON(ctx, sess, http.MethodGet, "/orders/"+orderID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *OrderClient) ListOrders(ctx context.Context, sess session.Handle) ([]models.Order, error) {
	var out models.OrderList
	if err := o.gateway.DoJSON(ctx, sess, http.MethodGet, "/orders", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}
