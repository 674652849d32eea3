package app

import (
	"fmt"

	"fils-quiz-bot/internal/domain"
)

// EventKind enumerates the inbound events the conversation understands.
type EventKind int

const (
	// EventStart is the /start command: reset and greet.
	EventStart EventKind = iota + 1
	// EventBegin is a tap on the greeting's "begin" button.
	EventBegin
	// EventHelp is the /help command.
	EventHelp
	// EventOptionSelected is a tap on a question option.
	EventOptionSelected
	// EventContactShared is a contact card shared through the request-contact keyboard.
	EventContactShared
	// EventFreeText is any other text message.
	EventFreeText
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventBegin:
		return "begin"
	case EventHelp:
		return "help"
	case EventOptionSelected:
		return "option_selected"
	case EventContactShared:
		return "contact_shared"
	case EventFreeText:
		return "free_text"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one inbound chat event. Only the fields relevant to Kind are set.
type Event struct {
	Kind   EventKind
	ChatID int64
	User   domain.User
	// MessageID is the bot message the event originated from (button taps), used to edit it in place.
	MessageID int64

	QuestionID int
	Option     int
	Contact    domain.Contact
	Text       string
}

// Phase is the coarse position of a session in the conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseQuestion
	PhaseAwaitingContact
	PhaseDone
)

// State is the current node of the conversation; Question is the 1-based question awaited in PhaseQuestion.
type State struct {
	Phase    Phase
	Question int
}

func (s State) String() string {
	switch s.Phase {
	case PhaseIdle:
		return "IDLE"
	case PhaseQuestion:
		return fmt.Sprintf("Q%d", s.Question)
	case PhaseAwaitingContact:
		return "AWAITING_CONTACT"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
