package domain

import (
	"errors"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a referenced question id is not declared.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a referenced option index is not declared for its question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrUserNotFound is returned by stores when the user row does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrPromoNotFound is returned when a user has not been issued a promo code.
	ErrPromoNotFound = errors.New("promo code not found")
)

// ValidationError lists every problem found in quiz content.
type ValidationError struct {
	QuizID   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid quiz " + e.QuizID + ": " + strings.Join(e.Problems, "; ")
}
