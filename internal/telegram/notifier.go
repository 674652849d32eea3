package telegram

import (
	"context"
	"errors"

	"fils-quiz-bot/internal/domain"
)

// TextSender sends a plain text message.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
}

// LeadNotifier posts the lead summary to the manager chat.
type LeadNotifier struct {
	sender TextSender
	chatID int64
}

func NewLeadNotifier(sender TextSender, managerChatID int64) *LeadNotifier {
	return &LeadNotifier{sender: sender, chatID: managerChatID}
}

// DeliverLead sends the summary as plain text; usernames with underscores would break Markdown.
func (n *LeadNotifier) DeliverLead(ctx context.Context, lead domain.Lead) error {
	if n.chatID == 0 {
		return errors.New("manager chat id is not configured")
	}
	_, err := n.sender.SendText(ctx, n.chatID, lead.Summary())
	return err
}
