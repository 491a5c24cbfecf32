package dispatch

import (
	"context"
	"fmt"

	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/orchestrator"
	"github.com/pasarlink/gateway/pkg/transport"
)

const replyMediaUnsupported = "Maaf, saya hanya bisa memproses pesan teks. Silakan ketik pesanan Anda."

// mediaTags maps media message kinds to the placeholder recorded in the
// dialogue log so the model knows something non-textual arrived.
var mediaTags = map[string]string{
	"imageMessage":    "[customer sent an image]",
	"videoMessage":    "[customer sent a video]",
	"audioMessage":    "[customer sent a voice note]",
	"documentMessage": "[customer sent a document]",
}

// MediaHandler records a type-tagged placeholder for media messages and asks
// the customer to use text instead. Media content itself is never fetched.
type MediaHandler struct {
	orch        *orchestrator.Orchestrator
	sender      transport.Sender
	countryCode string
}

// NewMediaHandler wires the media placeholder path.
func NewMediaHandler(orch *orchestrator.Orchestrator, sender transport.Sender, countryCode string) *MediaHandler {
	return &MediaHandler{orch: orch, sender: sender, countryCode: countryCode}
}

func (h *MediaHandler) CanHandle(msg transport.Message) bool {
	_, ok := mediaTags[msg.Kind]
	return ok
}

func (h *MediaHandler) Handle(ctx context.Context, msg transport.Message) error {
	phone := order.NormalizePhone(msg.From, h.countryCode)
	if err := h.orch.RecordPlaceholder(phone, mediaTags[msg.Kind]); err != nil {
		return fmt.Errorf("record media placeholder: %w", err)
	}
	return h.sender.SendText(ctx, msg.From, replyMediaUnsupported)
}

var _ Handler = (*MediaHandler)(nil)
