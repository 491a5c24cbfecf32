package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/pasarlink/gateway/pkg/app"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/logger"
	"github.com/pasarlink/gateway/pkg/orchestrator"
	"github.com/pasarlink/gateway/pkg/tools"
	"github.com/pasarlink/gateway/pkg/transport"
)

// Quick-reply button IDs round-tripped through the chat client.
const (
	ButtonConfirmOrder = "confirm_order"
	ButtonCancelOrder  = "cancel_order"
)

const (
	replyProviderDown = "Maaf, sistem sedang sibuk. Silakan coba lagi dalam beberapa saat."
	replyMenu         = "Halo! Silakan ketik pesanan Anda, misalnya: \"lele 5kg, ayam 2 ekor\". Saya akan bantu catat pesanannya."
	confirmQuestion   = "Apakah pesanan ini sudah benar?"
)

// TextHandler feeds plain text messages through the AI orchestrator and, when
// the call trace contains a successful order extraction, creates a pending
// order and sends the confirmation prompt.
type TextHandler struct {
	orch        *orchestrator.Orchestrator
	orders      *app.OrderService
	sender      transport.Sender
	countryCode string
}

// NewTextHandler wires the plain-text conversation path.
func NewTextHandler(orch *orchestrator.Orchestrator, orders *app.OrderService, sender transport.Sender, countryCode string) *TextHandler {
	return &TextHandler{orch: orch, orders: orders, sender: sender, countryCode: countryCode}
}

func (h *TextHandler) CanHandle(msg transport.Message) bool {
	switch msg.Kind {
	case "conversation", "extendedTextMessage":
		return strings.TrimSpace(msg.Text) != ""
	}
	return false
}

func (h *TextHandler) Handle(ctx context.Context, msg transport.Message) error {
	text := strings.TrimSpace(msg.Text)

	// Literal menu trigger bypasses the model entirely.
	if strings.EqualFold(text, "menu") {
		return h.sender.SendText(ctx, msg.From, replyMenu)
	}

	// The sender JID and the normalized phone differ; the dialogue log and
	// the order book are keyed by the latter.
	phone := order.NormalizePhone(msg.From, h.countryCode)

	reply, executed, err := h.orch.Chat(ctx, phone, text)
	if err != nil {
		logger.ErrorCF(component, "ai dialogue failed, sending fallback", map[string]interface{}{
			"from":  msg.From,
			"error": err.Error(),
		})
		return h.sender.SendText(ctx, msg.From, replyProviderDown)
	}

	if reply != "" {
		if err := h.sender.SendText(ctx, msg.From, reply); err != nil {
			return err
		}
	}

	extracted, ok := extractedOrder(executed)
	if !ok {
		return nil
	}

	o, err := h.orders.CreatePendingOrder(phone, extracted.Items, extracted.Notes)
	if err != nil {
		logger.ErrorCF(component, "failed to create pending order", map[string]interface{}{
			"from":  msg.From,
			"error": err.Error(),
		})
		return err
	}

	prompt := fmt.Sprintf("%s\n\n%s", h.orders.SummaryText(o), confirmQuestion)
	return h.sender.SendInteractive(ctx, msg.From, prompt,
		[]transport.Button{
			{ID: ButtonConfirmOrder, Text: "Ya, konfirmasi"},
			{ID: ButtonCancelOrder, Text: "Batal"},
		},
		transport.SendOptions{Title: "Ringkasan Pesanan"},
	)
}

// extractedOrder scans the call trace for the last successful extraction with
// at least one item.
func extractedOrder(executed []orchestrator.ExecutedCall) (tools.ExtractedOrder, bool) {
	for i := len(executed) - 1; i >= 0; i-- {
		call := executed[i]
		if call.Function != tools.ExtractOrderName || !call.Result.Success {
			continue
		}
		if extracted, ok := call.Result.Data.(tools.ExtractedOrder); ok && len(extracted.Items) > 0 {
			return extracted, true
		}
	}
	return tools.ExtractedOrder{}, false
}

var _ Handler = (*TextHandler)(nil)
