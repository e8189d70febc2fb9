package clients

import (
	"context"
	"net/http"

	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/session"
)

// CartGateway is the slice of the cart collaborator the confirmation engine
// touches: clear on success, then refetch so the next page render sees the
// empty cart.
type CartGateway interface {
	ClearCart(ctx context.Context, sess session.Handle) error
	FetchCart(ctx context.Context, sess session.Handle) (*models.Cart, error)
}

type CartClient struct {
	gateway *GatewayClient
}

func NewCartClient(gateway *GatewayClient) *CartClient {
	return &CartClient{gateway: gateway}
}

func (c *CartClient) FetchCart(ctx context.Context, sess session.Handle) (*models.Cart, error) {
	var out models.Cart
	if err := c.gateway.DoJSON(ctx, sess, http.MethodGet, "/cart", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CartClient) ClearCart(ctx context.Context, sess session.Handle) error {
	return c.gateway.DoJSON(ctx, sess, http.MethodDelete, "/cart/clear", nil, nil, nil)
}
