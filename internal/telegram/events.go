package telegram

import (
	"strings"

	"fils-quiz-bot/internal/app"
	"fils-quiz-bot/internal/domain"
)

// Toast texts shown when a button tap is acknowledged.
const (
	beginToast  = "Запускаем квиз…"
	optionToast = "Выбрано ✅"
)

// ToEvent maps an update to a conversation event. ok is false for updates the bot does not act on
// (channel posts, edits, unknown callback payloads, messages without a sender).
func ToEvent(upd Update) (app.Event, bool) {
	switch {
	case upd.CallbackQuery != nil:
		return callbackEvent(upd.CallbackQuery)
	case upd.Message != nil:
		return messageEvent(upd.Message)
	default:
		return app.Event{}, false
	}
}

func callbackEvent(cq *CallbackQuery) (app.Event, bool) {
	ev := app.Event{User: toUser(cq.From), ChatID: cq.From.ID}
	if cq.Message != nil {
		ev.ChatID = cq.Message.Chat.ID
		ev.MessageID = cq.Message.MessageID
	}
	if cq.Data == domain.BeginCallback {
		ev.Kind = app.EventBegin
		return ev, true
	}
	q, o, ok := domain.ParseOptionCallback(cq.Data)
	if !ok {
		return app.Event{}, false
	}
	ev.Kind = app.EventOptionSelected
	ev.QuestionID, ev.Option = q, o
	return ev, true
}

func messageEvent(m *Message) (app.Event, bool) {
	if m.From == nil {
		return app.Event{}, false
	}
	ev := app.Event{ChatID: m.Chat.ID, User: toUser(*m.From)}
	if m.Contact != nil {
		ev.Kind = app.EventContactShared
		ev.Contact = domain.Contact{
			Phone:     strings.TrimSpace(m.Contact.PhoneNumber),
			FirstName: m.Contact.FirstName,
			LastName:  m.Contact.LastName,
		}
		return ev, true
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return app.Event{}, false
	}
	switch command(text) {
	case "/start":
		ev.Kind = app.EventStart
	case "/help":
		ev.Kind = app.EventHelp
	default:
		ev.Kind = app.EventFreeText
		ev.Text = text
	}
	return ev, true
}

// command returns the bot command of text without arguments or a @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	token := strings.ToLower(strings.Fields(text)[0])
	if name, _, found := strings.Cut(token, "@"); found {
		return name
	}
	return token
}

func toUser(u User) domain.User {
	return domain.User{
		ID:           u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
		IsBot:        u.IsBot,
	}
}

func callbackToast(data string) string {
	if data == domain.BeginCallback {
		return beginToast
	}
	if _, _, ok := domain.ParseOptionCallback(data); ok {
		return optionToast
	}
	return ""
}
