package models

import "fmt"

type CartItem struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image,omitempty"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
	Subtotal     float64 `json:"subtotal"`
}

// Cart is the upstream cart snapshot. The upstream service is the source of
// truth; this service only reads it and asks for it to be cleared.
type Cart struct {
	Items     []CartItem `json:"items"`
	Total     float64    `json:"total"`
	ItemCount int        `json:"item_count"`
}

func (c *Cart) Validate() error {
	for i, item := range c.Items {
		if item.ProductID == "" {
			return fmt.Errorf("cart: item %d missing product_id", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("cart: item %d has non-positive quantity", i)
		}
	}
	return nil
}
