package market

import (
	"context"
	"fmt"

	"github.com/stake-plus/escrow-market/src/api/notify"
	"github.com/stake-plus/escrow-market/src/api/types"
	"github.com/stake-plus/escrow-market/src/logging"
)

// tell delivers a notification after the state change has been committed.
// Delivery problems are logged; the change itself stands.
func (s *Service) tell(ctx context.Context, userID uint64, sender *uint64, typ types.NotificationType, content, link string) {
	if s.notify == nil || userID == 0 {
		return
	}
	if _, err := s.notify.Notify(ctx, notify.Input{
		UserID:   userID,
		SenderID: sender,
		Type:     typ,
		Content:  content,
		Link:     link,
	}); err != nil {
		logging.Error(ctx, "notification failed", "user_id", userID, "type", typ, "error", err)
	}
}

func (s *Service) event(ctx context.Context, userID uint64, event string, payload any) {
	if s.notify != nil {
		s.notify.Event(ctx, userID, event, payload)
	}
}

func jobLink(id uint64) string      { return fmt.Sprintf("/jobs/%d", id) }
func contractLink(id uint64) string { return fmt.Sprintf("/contracts/%d", id) }
func messagesLink(id uint64) string { return fmt.Sprintf("/messages/%d", id) }
