package tools

import (
	"context"

	"github.com/pasarlink/gateway/pkg/commerce"
)

// Catalog is the read port the product tool needs; the commerce client
// satisfies it.
type Catalog interface {
	ListProducts(ctx context.Context) ([]commerce.Product, error)
}

// ListProductsTool lets the model answer availability and price questions
// from the live catalog.
type ListProductsTool struct {
	catalog Catalog
}

// NewListProductsTool wires the tool to a catalog source.
func NewListProductsTool(catalog Catalog) *ListProductsTool {
	return &ListProductsTool{catalog: catalog}
}

func (t *ListProductsTool) Name() string { return "list_products" }

func (t *ListProductsTool) Description() string {
	return "List the products currently for sale with prices and availability. Call this before quoting prices or confirming what is in stock."
}

func (t *ListProductsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListProductsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	products, err := t.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return products, nil
}

var _ Tool = (*ListProductsTool)(nil)
