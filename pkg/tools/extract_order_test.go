package tools

import (
	"context"
	"testing"
)

func TestExtractOrderTool(t *testing.T) {
	tool := &ExtractOrderTool{}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"name": "lele", "qty": 5.0},
			map[string]interface{}{"name": "ayam", "qty": 2.0, "unit": "ekor", "price": 35000.0},
		},
		"notes": "antar sore",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	extracted, ok := out.(ExtractedOrder)
	if !ok {
		t.Fatalf("result type = %T", out)
	}
	if len(extracted.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(extracted.Items))
	}
	if extracted.Items[0].Unit != "kg" {
		t.Errorf("default unit = %q, want kg", extracted.Items[0].Unit)
	}
	if extracted.Items[1].Price != 35000 {
		t.Errorf("price = %v", extracted.Items[1].Price)
	}
	if extracted.Notes != "antar sore" {
		t.Errorf("notes = %q", extracted.Notes)
	}
}

func TestExtractOrderToolRejectsBadInput(t *testing.T) {
	tool := &ExtractOrderTool{}

	cases := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing items", map[string]interface{}{}},
		{"empty items", map[string]interface{}{"items": []interface{}{}}},
		{"non-object item", map[string]interface{}{"items": []interface{}{"lele"}}},
		{"zero qty", map[string]interface{}{"items": []interface{}{
			map[string]interface{}{"name": "lele", "qty": 0.0},
		}}},
		{"empty name", map[string]interface{}{"items": []interface{}{
			map[string]interface{}{"name": " ", "qty": 1.0},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tool.Execute(context.Background(), tc.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRegistryExecuteUnknownFunction(t *testing.T) {
	registry := NewRegistry()
	result := registry.Execute(context.Background(), "missing", nil)
	if result.Success {
		t.Error("unknown function reported success")
	}
	if result.Error == "" {
		t.Error("unknown function result missing error text")
	}
}

func TestRegistryDefinitionsKeepOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&ExtractOrderTool{})

	defs := registry.Definitions()
	if len(defs) != 1 || defs[0].Name != ExtractOrderName {
		t.Errorf("definitions = %+v", defs)
	}
	if defs[0].Parameters == nil {
		t.Error("definition missing parameter schema")
	}
}
