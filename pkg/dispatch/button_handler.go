package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pasarlink/gateway/pkg/app"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/logger"
	"github.com/pasarlink/gateway/pkg/transport"
)

const (
	replyConfirmed = "Pesanan dikonfirmasi! Kami segera memprosesnya.\n\n%s"
	replyCancelled = "Pesanan dibatalkan. Silakan kirim pesanan baru kapan saja."
	replyNoPending = "Tidak ada pesanan yang menunggu konfirmasi. Silakan kirim pesanan baru."
)

// ButtonHandler resolves quick-reply taps into order confirmations and
// cancellations. It understands every structured-reply shape the transport
// produces.
type ButtonHandler struct {
	orders *app.OrderService
	sender transport.Sender
}

// NewButtonHandler wires the quick-reply path.
func NewButtonHandler(orders *app.OrderService, sender transport.Sender) *ButtonHandler {
	return &ButtonHandler{orders: orders, sender: sender}
}

func (h *ButtonHandler) CanHandle(msg transport.Message) bool {
	switch msg.Kind {
	case "buttonsResponseMessage", "templateButtonReplyMessage",
		"listResponseMessage", "interactiveResponseMessage":
		return true
	}
	return false
}

func (h *ButtonHandler) Handle(ctx context.Context, msg transport.Message) error {
	buttonID := selectedButtonID(msg)
	if buttonID == "" {
		logger.WarnCF(component, "structured reply without a button id", map[string]interface{}{
			"kind": msg.Kind,
			"from": msg.From,
		})
		return nil
	}

	switch buttonID {
	case ButtonConfirmOrder:
		o, err := h.orders.ConfirmOrder(msg.From)
		if err != nil {
			return h.replyFailure(ctx, msg.From, err)
		}
		return h.sender.SendText(ctx, msg.From, fmt.Sprintf(replyConfirmed, h.orders.SummaryText(o)))

	case ButtonCancelOrder:
		if _, err := h.orders.CancelOrder(msg.From); err != nil {
			return h.replyFailure(ctx, msg.From, err)
		}
		return h.sender.SendText(ctx, msg.From, replyCancelled)

	default:
		logger.WarnCF(component, "unknown button id, ignoring", map[string]interface{}{
			"button_id": buttonID,
			"from":      msg.From,
		})
		return nil
	}
}

// replyFailure degrades state violations into a polite chat reply; anything
// else propagates to the dispatcher's error log.
func (h *ButtonHandler) replyFailure(ctx context.Context, from string, err error) error {
	var stateErr order.StateError
	if errors.As(err, &stateErr) {
		return h.sender.SendText(ctx, from, replyNoPending)
	}
	return err
}

// selectedButtonID digs the tapped button's ID out of the vendor payload.
// Each structured-reply kind nests it differently.
func selectedButtonID(msg transport.Message) string {
	p := msg.Payload
	switch msg.Kind {
	case "buttonsResponseMessage":
		if id, ok := p["selectedButtonId"].(string); ok {
			return id
		}
	case "templateButtonReplyMessage":
		if id, ok := p["selectedId"].(string); ok {
			return id
		}
	case "listResponseMessage":
		if reply, ok := p["singleSelectReply"].(map[string]interface{}); ok {
			if id, ok := reply["selectedRowId"].(string); ok {
				return id
			}
		}
	case "interactiveResponseMessage":
		// The native-flow reply carries its parameters as embedded JSON.
		if flow, ok := p["nativeFlowResponseMessage"].(map[string]interface{}); ok {
			if params, ok := flow["paramsJson"].(string); ok {
				var decoded struct {
					ID string `json:"id"`
				}
				if json.Unmarshal([]byte(params), &decoded) == nil {
					return decoded.ID
				}
			}
		}
	}
	return ""
}

var _ Handler = (*ButtonHandler)(nil)
