package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fils-quiz-bot/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (YAML file, Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository serves validated quiz content from process memory and goes back to the loader
// once an entry turns stale. Concurrent reloads of one quiz share a single loader call. A failed
// reload keeps serving the last valid content, so a broken edit never takes a running bot down.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	reload singleflight.Group

	jitterMu sync.Mutex
	jitter   *rand.Rand

	mu      sync.RWMutex
	entries map[string]quizEntry
}

type quizEntry struct {
	quiz       domain.Quiz
	staleAfter time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		jitter:  rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]quizEntry),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	entry, known := r.entry(quizID)
	if known && !r.stale(entry) {
		return entry.quiz, nil
	}

	v, err, _ := r.reload.Do(quizID, func() (any, error) {
		if entry, ok := r.entry(quizID); ok && !r.stale(entry) {
			return entry.quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if err := quiz.Validate(); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[quizID] = quizEntry{quiz: quiz, staleAfter: r.clock().Add(r.lifetime())}
		r.mu.Unlock()
		return quiz, nil
	})
	switch {
	case err == nil:
		return v.(domain.Quiz), nil
	case known:
		return entry.quiz, nil
	default:
		return domain.Quiz{}, err
	}
}

// Invalidate marks the cached copy stale; it is still served if the next reload fails.
func (r *QuizRepository) Invalidate(_ context.Context, quizID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[quizID]; ok {
		entry.staleAfter = time.Time{}
		r.entries[quizID] = entry
	}
	return nil
}

func (r *QuizRepository) entry(quizID string) (quizEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[quizID]
	return entry, ok
}

func (r *QuizRepository) stale(entry quizEntry) bool {
	if entry.staleAfter.IsZero() {
		return true
	}
	return r.ttl > 0 && !r.clock().Before(entry.staleAfter)
}

// lifetime is the ttl plus up to 10% jitter so replicas do not reload in lockstep.
func (r *QuizRepository) lifetime() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.jitterMu.Lock()
	defer r.jitterMu.Unlock()
	return r.ttl + time.Duration(r.jitter.Int63n(int64(r.ttl)/10+1))
}

// StaticQuizLoader serves a fixed set of quizzes, for tests and the built-in content.
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes ...domain.Quiz) *StaticQuizLoader {
	byID := make(map[string]domain.Quiz, len(quizzes))
	for _, quiz := range quizzes {
		byID[quiz.ID] = quiz
	}
	return &StaticQuizLoader{quizzes: byID}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
