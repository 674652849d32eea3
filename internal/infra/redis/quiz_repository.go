package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"fils-quiz-bot/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (YAML file, Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches validated quiz content in Redis and falls back to a loader on cache miss.
// Content is stored as JSON: SET bot:quiz:{quizID} <json> EX ttl
// The last content this process validated is kept in memory and served whenever a reload fails,
// so an unreachable loader or a broken edit never stops running conversations.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	goodMu   sync.RWMutex
	lastGood map[string]domain.Quiz
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),

		lastGood: make(map[string]domain.Quiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		r.remember(quizID, quiz)
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// another caller may have filled the cache while we waited
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := quiz.Validate(); err != nil {
			return domain.Quiz{}, err
		}

		payload, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		// a failed cache write only costs another load
		_ = r.client.Set(ctx, r.key(quizID), payload, r.ttlWithJitter()).Err()
		return quiz, nil
	})
	if err != nil {
		if quiz, ok := r.previous(quizID); ok {
			return quiz, nil
		}
		return domain.Quiz{}, err
	}
	quiz := result.(domain.Quiz)
	r.remember(quizID, quiz)
	return quiz, nil
}

func (r *QuizRepository) remember(quizID string, quiz domain.Quiz) {
	r.goodMu.Lock()
	r.lastGood[quizID] = quiz
	r.goodMu.Unlock()
}

func (r *QuizRepository) previous(quizID string) (domain.Quiz, bool) {
	r.goodMu.RLock()
	defer r.goodMu.RUnlock()
	quiz, ok := r.lastGood[quizID]
	return quiz, ok
}

// Invalidate drops the cached copy so the next read goes to the loader. The in-process copy is kept
// as the fallback for that read.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, r.key(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	payload, err := r.client.Get(ctx, r.key(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(payload, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(quizID string) string {
	return "bot:quiz:" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
