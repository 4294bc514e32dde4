package history

import (
	"errors"
	"fmt"

	"opsagent.app/history/internal/model"
)

// ErrInvalidConversation is returned for malformed save input. Validation
// runs before any store is touched.
var ErrInvalidConversation = errors.New("invalid conversation")

func validateConversation(conv *model.Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: nil conversation", ErrInvalidConversation)
	}
	if conv.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidConversation)
	}
	if conv.OwnerID == "" {
		return fmt.Errorf("%w: missing owner id", ErrInvalidConversation)
	}
	for i, msg := range conv.Messages {
		if msg.Seq != i {
			return fmt.Errorf("%w: sequence number %d at position %d (must be a contiguous zero-based run)",
				ErrInvalidConversation, msg.Seq, i)
		}
		if !model.ValidRole(msg.Role) {
			return fmt.Errorf("%w: unknown role %q at position %d", ErrInvalidConversation, msg.Role, i)
		}
	}
	return nil
}
