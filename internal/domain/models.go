package domain

import (
	"fmt"
	"strings"
	"time"
)

// CatalogItem is one recommendable product.
type CatalogItem struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	URL         string `json:"url" yaml:"url"`
}

// Option represents a possible answer for a question. Index is 1-based and is only a scoring key.
type Option struct {
	Index int    `json:"index" yaml:"index"`
	Text  string `json:"text" yaml:"text"`
}

// Question models a single multiple-choice step of the quiz.
type Question struct {
	ID      int      `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []Option `json:"options" yaml:"options"`
}

// HasOption reports whether index is declared for the question.
func (q Question) HasOption(index int) bool {
	for _, opt := range q.Options {
		if opt.Index == index {
			return true
		}
	}
	return false
}

// ScoringRule is one row of the scoring table: the weight deltas granted per catalog item
// when Option is picked for Question.
type ScoringRule struct {
	Question int            `json:"question" yaml:"question"`
	Option   int            `json:"option" yaml:"option"`
	Weights  map[string]int `json:"weights" yaml:"weights"`
}

// Promo describes the promo code handed out after the quiz.
type Promo struct {
	Code     string        `json:"code" yaml:"code"`
	Amount   int           `json:"amount" yaml:"amount"`
	ValidFor time.Duration `json:"validFor" yaml:"valid_for"`
	Text     string        `json:"text" yaml:"text"`
}

// Texts holds the user-facing copy of the bot. Placeholders in braces are substituted at render time.
type Texts struct {
	Greeting        string `json:"greeting" yaml:"greeting"`
	BeginButton     string `json:"beginButton" yaml:"begin_button"`
	Help            string `json:"help" yaml:"help"`
	AnswerAck       string `json:"answerAck" yaml:"answer_ack"`
	Result          string `json:"result" yaml:"result"`
	AllModelsButton string `json:"allModelsButton" yaml:"all_models_button"`
	AllModelsURL    string `json:"allModelsUrl" yaml:"all_models_url"`
	ContactRequest  string `json:"contactRequest" yaml:"contact_request"`
	ContactButton   string `json:"contactButton" yaml:"contact_button"`
	ContactAck      string `json:"contactAck" yaml:"contact_ack"`
}

// Quiz is the complete static content of the conversation: questions, catalog, scoring table and copy.
type Quiz struct {
	ID        string        `json:"id" yaml:"id"`
	Questions []Question    `json:"questions" yaml:"questions"`
	Catalog   []CatalogItem `json:"catalog" yaml:"catalog"`
	Rules     []ScoringRule `json:"rules" yaml:"rules"`
	Promo     Promo         `json:"promo" yaml:"promo"`
	Texts     Texts         `json:"texts" yaml:"texts"`
}

// Question returns the question with the given ordinal.
func (q Quiz) Question(id int) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Item looks up a catalog item by id.
func (q Quiz) Item(id string) (CatalogItem, bool) {
	for _, item := range q.Catalog {
		if item.ID == id {
			return item, true
		}
	}
	return CatalogItem{}, false
}

// Answer is a single (question, selected option) pair.
type Answer struct {
	QuestionID int `json:"question"`
	Option     int `json:"option"`
}

func (a Answer) String() string {
	return fmt.Sprintf("Q%d: %d", a.QuestionID, a.Option)
}

// User is the chat profile of a person talking to the bot.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsBot        bool
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Contact is what the user shared when asked for a phone number.
type Contact struct {
	Phone     string
	FirstName string
	LastName  string
}

// Name joins first and last name of the contact.
func (c Contact) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Submission is the persisted outcome of a completed quiz.
type Submission struct {
	UserID    int64     `json:"userId"`
	Model     string    `json:"model"`
	Answers   []Answer  `json:"answers"`
	CreatedAt time.Time `json:"createdAt"`
}

// PromoCode records a code handed to a user.
type PromoCode struct {
	UserID    int64
	Code      string
	Amount    int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserSummary is the dashboard view of a stored user.
type UserSummary struct {
	User
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt time.Time
	LastModel    string
}

// Stats is the aggregate view shown on the dashboard.
type Stats struct {
	Users       int            `json:"users"`
	Submissions int            `json:"submissions"`
	ByModel     map[string]int `json:"byModel"`
}
