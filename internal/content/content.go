// Package content loads quiz content (questions, catalog, scoring table and copy) from YAML.
package content

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"fils-quiz-bot/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_quiz.yaml
var defaultQuizYAML []byte

// Parse decodes YAML quiz content and validates it.
func Parse(data []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := yaml.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz content: %w", err)
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// Default returns the built-in sofa quiz.
func Default() domain.Quiz {
	quiz, err := Parse(defaultQuizYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in quiz content is invalid: %v", err))
	}
	return quiz
}

// LoadFile reads and validates quiz content from path.
func LoadFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("read quiz content: %w", err)
	}
	return Parse(data)
}

// FileLoader serves a single quiz from a YAML file, or the built-in content when path is empty.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

func (l *FileLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz domain.Quiz
		err  error
	)
	if l.path == "" {
		quiz = Default()
	} else if quiz, err = LoadFile(l.path); err != nil {
		return domain.Quiz{}, err
	}
	if quiz.ID != quizID {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}
