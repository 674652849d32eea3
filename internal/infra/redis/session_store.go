package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"fils-quiz-bot/internal/app"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SessionStore is a Redis-backed implementation of app.SessionRepository.
// Notes:
//   - A local map keeps one *app.Session per user so concurrent events for that user serialize on
//     the session lock.
//   - Every accepted transition writes a JSON snapshot to bot:session:{userID} with ttl, so a
//     restarted process resumes conversations and idle ones expire. A snapshot only replaces a
//     stored one with a lower version.
//   - Local entries idle for longer than ttl are reloaded from Redis on next access. Loads run
//     outside the map lock, one per user at a time.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
	loads  singleflight.Group

	mu       sync.Mutex
	sessions map[int64]*localSession
}

type localSession struct {
	session *app.Session
	touched time.Time
}

type loadedSession struct {
	session *app.Session
	found   bool
}

// saveScript writes ARGV[1] unless the stored snapshot already has a version >= ARGV[2].
var saveScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
  local ok, snap = pcall(cjson.decode, current)
  if ok and type(snap) == "table" and tonumber(snap["version"]) and tonumber(snap["version"]) >= tonumber(ARGV[2]) then
    return 0
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[int64]*localSession),
	}
}

func (s *SessionStore) GetOrCreate(ctx context.Context, userID int64) *app.Session {
	if session, ok := s.local(userID); ok {
		return session
	}
	loaded := s.loadShared(ctx, userID)
	if !loaded.found {
		loaded.session = app.NewSession()
	}
	return s.adopt(userID, loaded.session)
}

func (s *SessionStore) Get(ctx context.Context, userID int64) (*app.Session, bool) {
	if session, ok := s.local(userID); ok {
		return session, true
	}
	loaded := s.loadShared(ctx, userID)
	if !loaded.found {
		return nil, false
	}
	return s.adopt(userID, loaded.session), true
}

// Save stores snapshot unless Redis already holds a newer one, so snapshots written out of order
// by concurrent events for one user never roll the conversation back.
func (s *SessionStore) Save(ctx context.Context, userID int64, snapshot app.SessionSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if entry, ok := s.sessions[userID]; ok {
		entry.touched = s.clock()
	}
	s.mu.Unlock()
	return saveScript.Run(ctx, s.client, []string{s.key(userID)},
		payload, snapshot.Version, s.ttl.Milliseconds()).Err()
}

// local returns the cached session of userID if it is not idle.
func (s *SessionStore) local(userID int64) (*app.Session, bool) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[userID]; ok && !s.idle(entry, now) {
		entry.touched = now
		return entry.session, true
	}
	return nil, false
}

// adopt installs session for userID unless another caller got there first, in which case that
// session wins so the user keeps a single lock.
func (s *SessionStore) adopt(userID int64, session *app.Session) *app.Session {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[userID]; ok && !s.idle(entry, now) {
		entry.touched = now
		return entry.session
	}
	s.sessions[userID] = &localSession{session: session, touched: now}
	return session
}

func (s *SessionStore) loadShared(ctx context.Context, userID int64) loadedSession {
	v, _, _ := s.loads.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		session, found := s.load(ctx, userID)
		return loadedSession{session: session, found: found}, nil
	})
	return v.(loadedSession)
}

// Prune drops local entries that have been idle longer than ttl. Their snapshots stay in Redis
// until the key expires.
func (s *SessionStore) Prune() int {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, entry := range s.sessions {
		if s.idle(entry, now) {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned
}

func (s *SessionStore) idle(entry *localSession, now time.Time) bool {
	return s.ttl > 0 && now.Sub(entry.touched) > s.ttl
}

func (s *SessionStore) load(ctx context.Context, userID int64) (*app.Session, bool) {
	payload, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var snap app.SessionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, false
	}
	return app.RestoreSession(snap), true
}

func (s *SessionStore) key(userID int64) string {
	return "bot:session:" + strconv.FormatInt(userID, 10)
}
