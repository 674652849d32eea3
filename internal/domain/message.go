package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageKind tells the delivery layer how to pace a message.
type MessageKind int

const (
	// KindNotice is delivered immediately (acks, help, greeting).
	KindNotice MessageKind = iota
	// KindQuestion is a quiz question.
	KindQuestion
	// KindResult is the recommendation.
	KindResult
	// KindFollowUp covers the promo code and contact request sent after the result.
	KindFollowUp
)

func (k MessageKind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindResult:
		return "result"
	case KindFollowUp:
		return "follow_up"
	default:
		return "notice"
	}
}

// Button is an inline button: either a callback (Data) or a link (URL).
type Button struct {
	Text string
	Data string
	URL  string
}

// Message is an outbound chat message.
type Message struct {
	Kind     MessageKind
	Text     string
	Markdown bool
	Buttons  [][]Button
	// ContactButton, when set, attaches a one-time reply keyboard asking for the phone number.
	ContactButton  string
	RemoveKeyboard bool
	// ReplaceMessageID asks the transport to edit that message instead of sending a new one.
	ReplaceMessageID int64
}

// BeginCallback is the callback payload of the greeting button.
const BeginCallback = "start_quiz"

// OptionCallback encodes an option tap as callback payload, e.g. "q2_3".
func OptionCallback(questionID, option int) string {
	return fmt.Sprintf("q%d_%d", questionID, option)
}

// ParseOptionCallback decodes a payload produced by OptionCallback.
func ParseOptionCallback(data string) (questionID, option int, ok bool) {
	rest, found := strings.CutPrefix(data, "q")
	if !found {
		return 0, 0, false
	}
	qs, ostr, found := strings.Cut(rest, "_")
	if !found {
		return 0, 0, false
	}
	q, err := strconv.Atoi(qs)
	if err != nil || q <= 0 {
		return 0, 0, false
	}
	o, err := strconv.Atoi(ostr)
	if err != nil || o <= 0 {
		return 0, 0, false
	}
	return q, o, true
}
