// Package flash keeps one-shot status messages between a form post and the
// page it redirects to.
package flash

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mx-space/newsletter/internal/pkg/redis"
)

const (
	CookieName = "nl_flash"
	DefaultTTL = 10 * time.Minute

	keyPrefix = "newsletter:flash:"
)

type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityError Severity = "error"
)

type Message struct {
	Severity Severity `json:"severity"`
	Key      string   `json:"key"`
	Text     string   `json:"text"`
}

// Store queues messages per browser session.
type Store interface {
	Push(ctx context.Context, sid string, msg Message) error
	// Pop returns and forgets every queued message for sid.
	Pop(ctx context.Context, sid string) ([]Message, error)
}

// RedisStore keeps messages in a Redis list per session.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Push(ctx context.Context, sid string, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.Append(ctx, keyPrefix+sid, s.ttl, string(raw))
}

func (s *RedisStore) Pop(ctx context.Context, sid string) ([]Message, error) {
	values, err := s.client.Drain(ctx, keyPrefix+sid)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(values))
	for _, v := range values {
		var m Message
		if json.Unmarshal([]byte(v), &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

type memoryEntry struct {
	messages []Message
	expires  time.Time
}

// MemoryStore is the single-process fallback used when Redis is disabled.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Push(_ context.Context, sid string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now)
	e, ok := s.entries[sid]
	if !ok {
		e = &memoryEntry{}
		s.entries[sid] = e
	}
	e.messages = append(e.messages, msg)
	e.expires = now.Add(s.ttl)
	return nil
}

func (s *MemoryStore) Pop(_ context.Context, sid string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evict(s.now())
	e, ok := s.entries[sid]
	if !ok {
		return []Message{}, nil
	}
	delete(s.entries, sid)
	return e.messages, nil
}

func (s *MemoryStore) evict(now time.Time) {
	for sid, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, sid)
		}
	}
}

// SessionID returns the flash cookie value, issuing a new one when create is
// set and the request carries none. An empty string means no session.
func SessionID(c *gin.Context, create bool) string {
	if sid, err := c.Cookie(CookieName); err == nil {
		if _, err := uuid.Parse(sid); err == nil {
			return sid
		}
	}
	if !create {
		return ""
	}
	sid := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, sid, int(DefaultTTL/time.Second), "/", "", c.Request.TLS != nil, true)
	return sid
}
