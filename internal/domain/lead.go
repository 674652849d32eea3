package domain

import (
	"fmt"
	"strings"
	"time"
)

// Lead is the finalized bundle of contact and quiz outcome handed to operators. It is built once
// per completed conversation and never mutated afterwards.
type Lead struct {
	ID          string      `json:"id"`
	UserID      int64       `json:"userId"`
	DisplayName string      `json:"displayName"`
	Username    string      `json:"username"`
	Phone       string      `json:"phone"`
	ContactName string      `json:"contactName"`
	Answers     []Answer    `json:"answers"`
	Result      CatalogItem `json:"result"`
	PromoCode   string      `json:"promoCode,omitempty"`
	PromoAmount int         `json:"promoAmount,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Summary renders the lead as the plain-text message operators receive.
func (l Lead) Summary() string {
	username := l.Username
	if username == "" {
		username = "-"
	}
	lines := []string{
		"Новая заявка из бота FILS Design — подбор дивана:",
		fmt.Sprintf("Пользователь: %s (@%s; id=%d)", l.DisplayName, username, l.UserID),
		fmt.Sprintf("Телефон: %s", l.Phone),
		fmt.Sprintf("Имя: %s", l.ContactName),
		"",
		"Ответы квиза:",
	}
	for _, a := range l.Answers {
		lines = append(lines, " - "+a.String())
	}
	title := l.Result.Title
	if title == "" {
		title = l.Result.ID
	}
	lines = append(lines, "", "Рекомендация: "+title)
	if l.Result.URL != "" {
		lines = append(lines, "Ссылка: "+l.Result.URL)
	}
	if l.PromoCode != "" {
		lines = append(lines, "", fmt.Sprintf("🎁 Выдан промокод: %s (%d₽)", l.PromoCode, l.PromoAmount))
	}
	return strings.Join(lines, "\n")
}
