package market

import (
	"context"
	"time"

	"github.com/stake-plus/escrow-market/src/api/realtime"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type MessageInput struct {
	RecipientID uint64
	JobID       *uint64
	Body        string
}

// SendMessage stores a direct message and pushes it to the recipient.
func (s *Service) SendMessage(ctx context.Context, senderID uint64, in MessageInput) (*types.Message, error) {
	if in.RecipientID == 0 || in.RecipientID == senderID {
		return nil, invalid("recipient must be another user")
	}
	body := s.cleanRich(in.Body)
	if body == "" || len(body) > 5000 {
		return nil, invalid("message must be between 1 and 5000 characters")
	}
	if _, err := s.user(ctx, in.RecipientID); err != nil {
		return nil, err
	}
	if in.JobID != nil {
		if _, err := s.GetJob(ctx, *in.JobID); err != nil {
			return nil, err
		}
	}

	msg := &types.Message{SenderID: senderID, RecipientID: in.RecipientID, JobID: in.JobID, Body: body}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	s.event(ctx, in.RecipientID, realtime.EventMessageNew, msg)
	s.tell(ctx, in.RecipientID, &senderID, types.NotifyMessageNew, "You have a new message", messagesLink(senderID))
	return msg, nil
}

// Conversation returns the messages between two users, oldest first, and
// marks the ones addressed to userID as read.
func (s *Service) Conversation(ctx context.Context, userID, otherID uint64, p Page) (List[types.Message], error) {
	q := s.db.WithContext(ctx).Model(&types.Message{}).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userID, otherID, otherID, userID)
	page, err := paginate[types.Message](q, p, "created_at DESC, id DESC")
	if err != nil {
		return page, err
	}
	for i, j := 0, len(page.Items)-1; i < j; i, j = i+1, j-1 {
		page.Items[i], page.Items[j] = page.Items[j], page.Items[i]
	}

	err = s.db.WithContext(ctx).Model(&types.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND read_at IS NULL", otherID, userID).
		Update("read_at", time.Now().UTC()).Error
	return page, err
}

// ConversationSummary is one row of the inbox.
type ConversationSummary struct {
	User        *types.User    `json:"user"`
	LastMessage *types.Message `json:"lastMessage"`
	Unread      int64          `json:"unread"`
}

// Inbox lists the user's conversations, most recent first.
func (s *Service) Inbox(ctx context.Context, userID uint64) ([]ConversationSummary, error) {
	var recent []types.Message
	err := s.db.WithContext(ctx).
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Limit(500).
		Find(&recent).Error
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0)
	index := map[uint64]int{}
	for i := range recent {
		m := &recent[i]
		other := m.SenderID
		if other == userID {
			other = m.RecipientID
		}
		if _, ok := index[other]; ok {
			continue
		}
		index[other] = len(out)
		out = append(out, ConversationSummary{LastMessage: m})
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]uint64, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	var users []types.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		out[index[users[i].ID]].User = &users[i]
	}

	var unread []struct {
		SenderID uint64
		N        int64
	}
	err = s.db.WithContext(ctx).Model(&types.Message{}).
		Select("sender_id, COUNT(*) AS n").
		Where("recipient_id = ? AND read_at IS NULL", userID).
		Group("sender_id").
		Scan(&unread).Error
	if err != nil {
		return nil, err
	}
	for _, u := range unread {
		if i, ok := index[u.SenderID]; ok {
			out[i].Unread = u.N
		}
	}
	return out, nil
}
