package routes

import (
	"time"

	"github.com/Victormzing/storefront-bff/auth"
	"github.com/Victormzing/storefront-bff/controllers"
	"github.com/Victormzing/storefront-bff/middleware"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func RegisterRoutes(r *gin.Engine, bff *controllers.BFFController, payments *controllers.PaymentController, verifier *auth.Verifier) {
	r.GET("/health", bff.Health)

	// Public routes - no auth required
	public := r.Group("/bff")
	{
		public.GET("/products", bff.Proxy("GET", "/products"))
		public.GET("/products/:id", bff.ProxyParam("GET", "/products/", "id"))
		public.GET("/categories", bff.Proxy("GET", "/categories"))

		// Home page: products + categories
		public.GET("/home", bff.Home)
	}

	// Protected routes - require authentication
	protected := r.Group("/bff")
	protected.Use(middleware.AuthRequired(verifier))
	{
		// Cart page
		protected.GET("/cart", bff.Cart)
		protected.POST("/cart/add", bff.Proxy("POST", "/cart/add"))
		protected.PUT("/cart/update", bff.Proxy("PUT", "/cart/update"))
		protected.DELETE("/cart/remove/:product_id", bff.ProxyParam("DELETE", "/cart/remove/", "product_id"))
		protected.DELETE("/cart/clear", bff.Proxy("DELETE", "/cart/clear"))
		protected.POST("/cart/checkout", bff.Proxy("POST", "/cart/checkout"))

		// Orders page
		protected.GET("/orders", bff.Orders)
		protected.GET("/orders/:id", bff.OrderByID)
		protected.POST("/orders", bff.Proxy("POST", "/orders"))

		// Payment flow; initiation is rate limited per client IP
		protected.POST("/payments/mpesa/initiate",
			middleware.RateLimitMiddleware(rate.Every(time.Minute/30), 10), payments.Initiate)
		protected.GET("/payments/:payment_id/status", payments.Status)
		protected.POST("/payments/:payment_id/retry", payments.Retry)
	}
}
