package app

import (
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"fils-quiz-bot/internal/domain"
)

// minPhoneDigits is how many decimal digits free text needs to count as a phone number.
const minPhoneDigits = 7

// Session is the per-user conversation state. All fields are guarded by mu; Apply is the only mutator.
type Session struct {
	mu              sync.Mutex
	started         bool
	answers         []domain.Answer
	result          string
	awaitingContact bool
	contactReceived bool
	updatedAt       time.Time
	// version grows with every accepted event and survives restarts
	version uint64
}

// SessionSnapshot is the serializable form of a Session.
type SessionSnapshot struct {
	Started         bool            `json:"started"`
	Answers         []domain.Answer `json:"answers"`
	Result          string          `json:"result,omitempty"`
	AwaitingContact bool            `json:"awaitingContact"`
	ContactReceived bool            `json:"contactReceived"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Version         uint64          `json:"version"`
}

// NewSession returns a session in the IDLE state.
func NewSession() *Session {
	return &Session{}
}

// RestoreSession rebuilds a session from a snapshot.
func RestoreSession(snap SessionSnapshot) *Session {
	return &Session{
		started:         snap.Started,
		answers:         append([]domain.Answer(nil), snap.Answers...),
		result:          snap.Result,
		awaitingContact: snap.AwaitingContact,
		contactReceived: snap.ContactReceived,
		updatedAt:       snap.UpdatedAt,
		version:         snap.Version,
	}
}

// Snapshot returns a copy of the session fields.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State reports where the session is for a quiz with totalQuestions questions.
func (s *Session) State(totalQuestions int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(totalQuestions)
}

func (s *Session) snapshotLocked() SessionSnapshot {
	return SessionSnapshot{
		Started:         s.started,
		Answers:         append([]domain.Answer(nil), s.answers...),
		Result:          s.result,
		AwaitingContact: s.awaitingContact,
		ContactReceived: s.contactReceived,
		UpdatedAt:       s.updatedAt,
		Version:         s.version,
	}
}

func (s *Session) stateLocked(total int) State {
	switch {
	case s.contactReceived:
		return State{Phase: PhaseDone}
	case s.awaitingContact:
		return State{Phase: PhaseAwaitingContact}
	case !s.started:
		return State{Phase: PhaseIdle}
	case len(s.answers) < total:
		return State{Phase: PhaseQuestion, Question: len(s.answers) + 1}
	default:
		return State{Phase: PhaseDone}
	}
}

func (s *Session) resetLocked() {
	s.started = false
	s.answers = nil
	s.result = ""
	s.awaitingContact = false
	s.contactReceived = false
}

// Outcome describes what a transition did and which side effects the caller has to carry out.
// A rejected event yields an Outcome with Accepted == false and nothing else set.
type Outcome struct {
	Accepted bool
	From     State
	To       State

	Messages   []domain.Message
	Profile    *domain.User
	Submission *domain.Submission
	Promo      *domain.PromoCode
	Lead       *domain.Lead
	Snapshot   SessionSnapshot
}

// Apply feeds ev into the state machine. It performs no I/O: effects are returned in the Outcome.
// Events that are not expected in the current state are ignored without touching the session.
func (s *Session) Apply(quiz domain.Quiz, ev Event, now time.Time) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(quiz.Questions)
	from := s.stateLocked(total)

	var out Outcome
	switch ev.Kind {
	case EventStart:
		out = s.onStart(quiz, ev)
	case EventHelp:
		out = Outcome{Accepted: true, Messages: []domain.Message{{Kind: domain.KindNotice, Text: quiz.Texts.Help}}}
	case EventBegin:
		out = s.onBegin(quiz, ev, from)
	case EventOptionSelected:
		out = s.onOption(quiz, ev, from, now)
	case EventContactShared:
		out = s.onContact(quiz, ev, ev.Contact.Phone, ev.Contact.Name(), now)
	case EventFreeText:
		if s.awaitingContact && looksLikePhone(ev.Text) {
			out = s.onContact(quiz, ev, strings.TrimSpace(ev.Text), ev.User.DisplayName(), now)
		}
	}
	if !out.Accepted {
		return Outcome{From: from, To: from}
	}

	s.updatedAt = now
	s.version++
	out.From = from
	out.To = s.stateLocked(total)
	out.Snapshot = s.snapshotLocked()
	return out
}

func (s *Session) onStart(quiz domain.Quiz, ev Event) Outcome {
	s.resetLocked()
	s.started = true
	profile := ev.User
	return Outcome{
		Accepted: true,
		Profile:  &profile,
		Messages: []domain.Message{{
			Kind:     domain.KindNotice,
			Text:     quiz.Texts.Greeting,
			Markdown: true,
			Buttons:  [][]domain.Button{{{Text: quiz.Texts.BeginButton, Data: domain.BeginCallback}}},
		}},
	}
}

// onBegin shows the first question. A tap on an old greeting after the quiz finished (or before any
// /start) restarts the quiz; mid-quiz taps are ignored.
func (s *Session) onBegin(quiz domain.Quiz, ev Event, from State) Outcome {
	switch {
	case from.Phase == PhaseIdle, from.Phase == PhaseDone:
		s.resetLocked()
		s.started = true
	case from.Phase == PhaseQuestion && len(s.answers) == 0:
	default:
		return Outcome{}
	}
	first, ok := quiz.Question(1)
	if !ok {
		return Outcome{}
	}
	return Outcome{Accepted: true, Messages: []domain.Message{questionMessage(first, ev.MessageID)}}
}

func (s *Session) onOption(quiz domain.Quiz, ev Event, from State, now time.Time) Outcome {
	if from.Phase != PhaseQuestion || ev.QuestionID != from.Question {
		return Outcome{}
	}
	question, ok := quiz.Question(ev.QuestionID)
	if !ok || !question.HasOption(ev.Option) {
		return Outcome{}
	}

	s.answers = append(s.answers, domain.Answer{QuestionID: ev.QuestionID, Option: ev.Option})
	if next, ok := quiz.Question(ev.QuestionID + 1); ok {
		return Outcome{Accepted: true, Messages: []domain.Message{questionMessage(next, ev.MessageID)}}
	}

	item := Recommend(quiz, s.answers)
	s.result = item.ID
	s.awaitingContact = true
	s.contactReceived = false

	out := Outcome{
		Accepted: true,
		Submission: &domain.Submission{
			UserID:    ev.User.ID,
			Model:     item.ID,
			Answers:   append([]domain.Answer(nil), s.answers...),
			CreatedAt: now,
		},
	}
	if ev.MessageID != 0 {
		out.Messages = append(out.Messages, domain.Message{Kind: domain.KindNotice, Text: quiz.Texts.AnswerAck, ReplaceMessageID: ev.MessageID})
	}
	out.Messages = append(out.Messages, resultMessage(quiz, item))
	if quiz.Promo.Code != "" {
		out.Promo = &domain.PromoCode{
			UserID:    ev.User.ID,
			Code:      quiz.Promo.Code,
			Amount:    quiz.Promo.Amount,
			IssuedAt:  now,
			ExpiresAt: now.Add(quiz.Promo.ValidFor),
		}
		out.Messages = append(out.Messages, domain.Message{Kind: domain.KindFollowUp, Text: renderPromo(quiz.Promo), Markdown: true})
	}
	out.Messages = append(out.Messages, domain.Message{
		Kind:          domain.KindFollowUp,
		Text:          quiz.Texts.ContactRequest,
		Markdown:      true,
		ContactButton: quiz.Texts.ContactButton,
	})
	return out
}

// onContact finalizes the conversation. It fires at most once per quiz run: contactReceived stays
// set until the next restart.
func (s *Session) onContact(quiz domain.Quiz, ev Event, phone, contactName string, now time.Time) Outcome {
	if !s.awaitingContact || s.contactReceived || phone == "" {
		return Outcome{}
	}
	s.awaitingContact = false
	s.contactReceived = true

	item, _ := quiz.Item(s.result)
	if item.ID == "" {
		item.ID = s.result
	}
	lead := &domain.Lead{
		UserID:      ev.User.ID,
		DisplayName: ev.User.DisplayName(),
		Username:    ev.User.Username,
		Phone:       phone,
		ContactName: contactName,
		Answers:     append([]domain.Answer(nil), s.answers...),
		Result:      item,
		PromoCode:   quiz.Promo.Code,
		PromoAmount: quiz.Promo.Amount,
		CreatedAt:   now,
	}
	return Outcome{
		Accepted: true,
		Lead:     lead,
		Messages: []domain.Message{{
			Kind:           domain.KindNotice,
			Text:           quiz.Texts.ContactAck,
			Markdown:       true,
			RemoveKeyboard: true,
		}},
	}
}

func looksLikePhone(text string) bool {
	digits := 0
	for _, r := range text {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= minPhoneDigits
}

func questionMessage(q domain.Question, replace int64) domain.Message {
	rows := make([][]domain.Button, 0, len(q.Options))
	for _, opt := range q.Options {
		rows = append(rows, []domain.Button{{Text: opt.Text, Data: domain.OptionCallback(q.ID, opt.Index)}})
	}
	return domain.Message{
		Kind:             domain.KindQuestion,
		Text:             q.Prompt,
		Buttons:          rows,
		ReplaceMessageID: replace,
	}
}

func resultMessage(quiz domain.Quiz, item domain.CatalogItem) domain.Message {
	text := strings.NewReplacer(
		"{title}", item.Title,
		"{description}", item.Description,
		"{url}", item.URL,
	).Replace(quiz.Texts.Result)
	msg := domain.Message{Kind: domain.KindResult, Text: text, Markdown: true}
	if quiz.Texts.AllModelsURL != "" {
		msg.Buttons = [][]domain.Button{{{Text: quiz.Texts.AllModelsButton, URL: quiz.Texts.AllModelsURL}}}
	}
	return msg
}

func renderPromo(p domain.Promo) string {
	return strings.NewReplacer(
		"{code}", p.Code,
		"{amount}", strconv.Itoa(p.Amount),
	).Replace(p.Text)
}
