package controllers

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Victormzing/storefront-bff/clients"
	"github.com/Victormzing/storefront-bff/models"
	"github.com/Victormzing/storefront-bff/services"
	"github.com/Victormzing/storefront-bff/session"
	"github.com/gin-gonic/gin"
)

// WatcherStates exposes per-order payment flow state to page handlers.
type WatcherStates interface {
	OrderState(orderID string) (services.Snapshot, bool)
}

type BFFController struct {
	gateway  *clients.GatewayClient
	orders   clients.OrderGateway
	cart     clients.CartGateway
	watchers WatcherStates
}

func NewBFFController(gateway *clients.GatewayClient, orders clients.OrderGateway, cart clients.CartGateway, watchers WatcherStates) *BFFController {
	return &BFFController{gateway: gateway, orders: orders, cart: cart, watchers: watchers}
}

func (b *BFFController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Home aggregates the storefront landing page: products and categories in
// one round trip.
func (b *BFFController) Home(c *gin.Context) {
	ctx := c.Request.Context()

	productsQuery := url.Values{}
	for key, values := range c.Request.URL.Query() {
		for _, v := range values {
			productsQuery.Add(key, v)
		}
	}
	if productsQuery.Get("perPage") == "" {
		productsQuery.Set("perPage", "12")
	}

	type result struct {
		data map[string]interface{}
		err  error
	}

	productsCh := make(chan result, 1)
	categoriesCh := make(chan result, 1)

	go func() {
		var data map[string]interface{}
		err := b.gateway.DoJSON(ctx, session.Handle{}, http.MethodGet, "/products", productsQuery, nil, &data)
		productsCh <- result{data: data, err: err}
	}()

	go func() {
		var data map[string]interface{}
		err := b.gateway.DoJSON(ctx, session.Handle{}, http.MethodGet, "/categories", nil, nil, &data)
		categoriesCh <- result{data: data, err: err}
	}()

	products := <-productsCh
	categories := <-categoriesCh

	if products.err != nil || categories.err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load home data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products":   products.data,
		"categories": categories.data,
		"timestamp":  time.Now().UTC(),
	})
}

// Orders renders the orders page. Each order carries the live payment flow
// state so the client can resume a pending confirmation after a reload.
func (b *BFFController) Orders(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orders, err := b.orders.ListOrders(c.Request.Context(), sess)
	if err != nil {
		renderError(c, err)
		return
	}

	type orderView struct {
		models.Order
		PaymentState string `json:"payment_state,omitempty"`
		PaymentID    string `json:"payment_id,omitempty"`
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		v := orderView{Order: o}
		if b.watchers != nil {
			if snap, ok := b.watchers.OrderState(o.ID); ok {
				v.PaymentState = string(snap.State)
				v.PaymentID = snap.PaymentID
			}
		}
		views = append(views, v)
	}

	c.JSON(http.StatusOK, gin.H{"orders": views})
}

// Cart renders the cart page via the typed client.
func (b *BFFController) Cart(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	cart, err := b.cart.FetchCart(c.Request.Context(), sess)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// Proxy forwards a request to the upstream API unchanged.
func (b *BFFController) Proxy(method, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := session.FromGin(c)

		var body []byte
		if c.Request.Body != nil {
			data, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			body = data
		}

		resp, err := b.gateway.Raw(c.Request.Context(), sess, method, path, c.Request.URL.Query(), body)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
			return
		}

		if err := clients.CopyResponse(c.Writer, resp); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read upstream response"})
			return
		}
	}
}

// ProxyParam forwards a request whose upstream path ends in a route param.
func (b *BFFController) ProxyParam(method, prefix, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := session.FromGin(c)

		resp, err := b.gateway.Raw(c.Request.Context(), sess, method, prefix+c.Param(param), c.Request.URL.Query(), nil)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
			return
		}

		if err := clients.CopyResponse(c.Writer, resp); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read upstream response"})
			return
		}
	}
}

// OrderByID returns a single order with its live payment flow state.
func (b *BFFController) OrderByID(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	order, err := b.orders.GetOrder(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	resp := gin.H{"order": order}
	if b.watchers != nil {
		if snap, ok := b.watchers.OrderState(order.ID); ok {
			resp["payment_state"] = string(snap.State)
			if snap.PaymentID != "" {
				resp["payment_id"] = snap.PaymentID
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}
