package conversations

import (
	"sync"
	"time"

	"github.com/mudler/xlog"

	"github.com/workpal/pulse/core/types"
)

type TrackerKey interface{ ~int | ~int64 | ~string }

// Tracker keeps the in-memory message history per conversation key and
// forgets conversations that have been inactive longer than the configured
// duration.
type Tracker[K TrackerKey] struct {
	mu              sync.Mutex
	conversations   map[K][]*types.Message
	lastMessageTime map[K]time.Time
	maxIdle         time.Duration
}

func NewTracker[K TrackerKey](maxIdle time.Duration) *Tracker[K] {
	return &Tracker[K]{
		maxIdle:         maxIdle,
		conversations:   map[K][]*types.Message{},
		lastMessageTime: map[K]time.Time{},
	}
}

// Get returns the current history for key, dropping it first if it expired.
// Stale histories for other keys are cleaned up on the way.
func (t *Tracker[K]) Get(key K) []*types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for k, last := range t.lastMessageTime {
		if last.Add(t.maxIdle).Before(now) {
			xlog.Debug("Expiring conversation", "key", k)
			delete(t.conversations, k)
			delete(t.lastMessageTime, k)
		}
	}

	history := make([]*types.Message, len(t.conversations[key]))
	copy(history, t.conversations[key])
	return history
}

// Append adds a message to the history for key and refreshes its activity.
func (t *Tracker[K]) Append(key K, msg *types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conversations[key] = append(t.conversations[key], msg)
	t.lastMessageTime[key] = time.Now()
}

// Set replaces the history for key, e.g. after loading a conversation from
// the store.
func (t *Tracker[K]) Set(key K, msgs []*types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conversations[key] = msgs
	t.lastMessageTime[key] = time.Now()
}

// Drop removes the history for key.
func (t *Tracker[K]) Drop(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.conversations, key)
	delete(t.lastMessageTime, key)
}
