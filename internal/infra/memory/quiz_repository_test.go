package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fils-quiz-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &editableLoader{quiz: sampleQuiz()}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 3; i++ {
		quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
		require.NoError(t, err)
		assert.Equal(t, "quiz-1", quiz.ID)
	}
	assert.Equal(t, 1, loader.Calls())
}

func TestQuizRepositoryReloadsAfterTTL(t *testing.T) {
	loader := &editableLoader{quiz: sampleQuiz()}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)

	edited := sampleQuiz()
	edited.Catalog[0].Title = "Alpha v2"
	loader.Set(edited, nil)

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", quiz.Catalog[0].Title, "still fresh")

	now = now.Add(2 * time.Minute)
	quiz, err = repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha v2", quiz.Catalog[0].Title)
	assert.Equal(t, 2, loader.Calls())
}

func TestQuizRepositoryKeepsLastGoodContent(t *testing.T) {
	loader := &editableLoader{quiz: sampleQuiz()}
	repo := NewQuizRepository(loader, time.Minute)

	_, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)

	broken := sampleQuiz()
	broken.Rules = broken.Rules[:1]
	loader.Set(broken, nil)
	require.NoError(t, repo.Invalidate(context.Background(), "quiz-1"))

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Len(t, quiz.Rules, 2)

	loader.Set(domain.Quiz{}, errors.New("disk gone"))
	quiz, err = repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Len(t, quiz.Rules, 2)
	assert.Equal(t, 3, loader.Calls())
}

func TestQuizRepositoryRejectsInvalidContent(t *testing.T) {
	broken := sampleQuiz()
	broken.Rules = broken.Rules[:1]
	repo := NewQuizRepository(NewStaticQuizLoader(broken), time.Minute)

	_, err := repo.GetQuiz(context.Background(), "quiz-1")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Problems)

	_, err = repo.GetQuiz(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestQuizRepositoryWithoutTTLNeverReloads(t *testing.T) {
	loader := &editableLoader{quiz: sampleQuiz()}
	repo := NewQuizRepository(loader, 0)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	_, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	now = now.Add(24 * time.Hour)
	_, err = repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.Calls())
}

// editableLoader serves one quiz whose content (or failure) the test can swap.
type editableLoader struct {
	mu    sync.Mutex
	quiz  domain.Quiz
	err   error
	calls int
}

func (l *editableLoader) Set(quiz domain.Quiz, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quiz, l.err = quiz, err
}

func (l *editableLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *editableLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return domain.Quiz{}, l.err
	}
	if quizID != l.quiz.ID {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return l.quiz, nil
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Catalog: []domain.CatalogItem{
			{ID: "A", Title: "Alpha"},
			{ID: "B", Title: "Beta"},
		},
		Questions: []domain.Question{
			{
				ID:     1,
				Prompt: "Where will it stand?",
				Options: []domain.Option{
					{Index: 1, Text: "Living room"},
					{Index: 2, Text: "Office"},
				},
			},
		},
		Rules: []domain.ScoringRule{
			{Question: 1, Option: 1, Weights: map[string]int{"A": 1}},
			{Question: 1, Option: 2, Weights: map[string]int{"B": 1}},
		},
	}
}
