package tools

import (
	"context"
	"fmt"

	"github.com/pasarlink/gateway/pkg/domain/order"
)

// ExtractOrderName is the function the text handler inspects in the call
// trace to detect a structured order intent.
const ExtractOrderName = "extract_order"

// ExtractedOrder is the typed payload of a successful extraction.
type ExtractedOrder struct {
	Items []order.Item `json:"items"`
	Notes string       `json:"notes,omitempty"`
}

// ExtractOrderTool converts the model's structured arguments into validated
// order items. It performs no persistence; the text handler decides whether
// a pending order is created from the result.
type ExtractOrderTool struct{}

func (t *ExtractOrderTool) Name() string { return ExtractOrderName }

func (t *ExtractOrderTool) Description() string {
	return "Extract a structured order from the customer's message. Call this whenever the customer names products with quantities."
}

func (t *ExtractOrderTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"items": map[string]interface{}{
				"type":        "array",
				"description": "Order lines mentioned by the customer",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Product name",
						},
						"qty": map[string]interface{}{
							"type":        "number",
							"description": "Quantity, must be positive",
						},
						"unit": map[string]interface{}{
							"type":        "string",
							"description": "Unit of measure, defaults to kg",
						},
						"price": map[string]interface{}{
							"type":        "number",
							"description": "Unit price if the customer or catalog names one",
						},
					},
					"required": []string{"name", "qty"},
				},
			},
			"notes": map[string]interface{}{
				"type":        "string",
				"description": "Free-form delivery or preparation notes",
			},
		},
		"required": []string{"items"},
	}
}

func (t *ExtractOrderTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawItems, ok := args["items"].([]interface{})
	if !ok || len(rawItems) == 0 {
		return nil, fmt.Errorf("items is required and must be a non-empty array")
	}

	items := make([]order.Item, 0, len(rawItems))
	for i, raw := range rawItems {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("items[%d] must be an object", i)
		}
		name, _ := m["name"].(string)
		qty := toFloat(m["qty"])
		unit, _ := m["unit"].(string)
		price := toFloat(m["price"])

		item, err := order.NewItem(name, qty, unit, price)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, item)
	}

	notes, _ := args["notes"].(string)
	return ExtractedOrder{Items: items, Notes: notes}, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

var _ Tool = (*ExtractOrderTool)(nil)
