// Package commerce is the client for the commerce backend's REST API. The
// gateway consumes it two ways: catalog reads for the list_products tool and
// order persistence behind the order repository port. The backend owns the
// data; this package owns nothing.
package commerce

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Product is one catalog entry as served by the backend.
type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit"`
	Stock     float64 `json:"stock"`
	Available bool    `json:"available"`
}

// Client wraps the backend's REST surface.
type Client struct {
	http *resty.Client
}

// NewClient creates a commerce client. token may be empty for an open
// backend.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		http.SetAuthToken(token)
	}
	return &Client{http: http}
}

// ListProducts fetches the full catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&products).
		Get("/api/products")
	if err != nil {
		return nil, fmt.Errorf("commerce: list products: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("commerce: list products: status %d", resp.StatusCode())
	}
	return products, nil
}
