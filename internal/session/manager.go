// Package session manages bounded conversation state and the
// per-session request budget. State lives behind a cache.Provider so
// the memory and Redis backends are interchangeable.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/insightxstack/insightx-nlq/internal/cache"
	"github.com/insightxstack/insightx-nlq/internal/metrics"
	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/utils"
	"github.com/insightxstack/insightx-nlq/pkg/keylock"
)

// rateWindow is the span the per-session request budget covers.
const rateWindow = time.Minute

// Options bound session growth and request rates.
type Options struct {
	// TTL is how long an idle session survives in the store.
	TTL time.Duration

	// MaxTurns is the context window; older turns are dropped silently.
	MaxTurns int

	// MaxSessions caps tracked sessions; the least recently seen one is
	// evicted when the cap is hit.
	MaxSessions int

	// RatePerMinute is the sliding-window request budget per session.
	RatePerMinute int
}

// Manager loads, mutates, and persists session state. All writes to a
// given session are serialized, so a reset never interleaves with an
// append.
type Manager struct {
	store  cache.Provider
	locks  *keylock.KeyLock
	clock  clockwork.Clock
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	index map[string]time.Time // session id -> last seen
}

// NewManager wires a manager over the given store.
func NewManager(store cache.Provider, clock clockwork.Clock, opts Options, logger *slog.Logger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 5
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		locks:  keylock.New(),
		clock:  clock,
		opts:   opts,
		logger: logger,
		index:  make(map[string]time.Time),
	}
}

// Get returns the state for id, or a fresh state when none exists.
func (m *Manager) Get(ctx context.Context, id string) (models.SessionState, error) {
	if id == "" {
		return models.SessionState{}, utils.NewAppError("session.Get", "session id is empty", nil)
	}
	return m.load(ctx, id), nil
}

// CheckAndRecord enforces the sliding-window budget. When allowed it
// records the request stamp and returns nil; when the budget is spent
// it returns RateLimitedError and records nothing.
func (m *Manager) CheckAndRecord(ctx context.Context, id string) error {
	m.locks.Lock(id)
	defer m.locks.Unlock(id)

	now := m.clock.Now()
	state := m.load(ctx, id)

	cutoff := now.Add(-rateWindow)
	kept := state.RequestStamps[:0]
	for _, ts := range state.RequestStamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	state.RequestStamps = kept

	if len(state.RequestStamps) >= m.opts.RatePerMinute {
		retry := state.RequestStamps[0].Add(rateWindow).Sub(now)
		if retry < 0 {
			retry = 0
		}
		metrics.IncRateLimited()
		return &models.RateLimitedError{
			SessionID:  id,
			Limit:      m.opts.RatePerMinute,
			Window:     rateWindow,
			RetryAfter: retry,
		}
	}

	state.RequestStamps = append(state.RequestStamps, now)
	state.LastSeenAt = now
	if err := m.save(ctx, state); err != nil {
		return err
	}
	m.touch(ctx, id, now)
	return nil
}

// Append adds one completed turn, trimming the context window.
func (m *Manager) Append(ctx context.Context, id string, turn models.Turn) error {
	m.locks.Lock(id)
	defer m.locks.Unlock(id)

	now := m.clock.Now()
	turn.Query = models.TruncateTurnText(turn.Query)
	turn.Summary = models.TruncateTurnText(turn.Summary)
	if turn.At.IsZero() {
		turn.At = now
	}

	state := m.load(ctx, id)
	state.Turns = append(state.Turns, turn)
	if len(state.Turns) > m.opts.MaxTurns {
		state.Turns = state.Turns[len(state.Turns)-m.opts.MaxTurns:]
	}
	state.LastSeenAt = now

	if err := m.save(ctx, state); err != nil {
		return err
	}
	m.touch(ctx, id, now)
	return nil
}

// Reset clears a session synchronously. Concurrent readers see either
// the old state or an empty one, never a partial write.
func (m *Manager) Reset(ctx context.Context, id string) error {
	m.locks.Lock(id)
	defer m.locks.Unlock(id)

	if err := m.store.Del(ctx, cache.SessionKey(id)); err != nil {
		return utils.WrapErr("session.Reset", err)
	}
	m.mu.Lock()
	delete(m.index, id)
	metrics.SetActiveSessions(len(m.index))
	m.mu.Unlock()
	m.logger.Info("session reset", "session_id", id)
	return nil
}

// ContextText renders the retained turns for the extraction prompt.
// Returns the empty string when there is no history.
func (m *Manager) ContextText(state models.SessionState) string {
	if len(state.Turns) == 0 {
		return ""
	}
	parts := make([]string, 0, len(state.Turns)*2)
	for _, turn := range state.Turns {
		parts = append(parts, "User: "+turn.Query)
		if turn.Summary != "" {
			parts = append(parts, "Assistant: "+turn.Summary)
		}
	}
	return strings.Join(parts, "\n")
}

// load returns the stored state or a fresh one. Storage failures
// degrade to a fresh state so a cache outage cannot take chat down.
func (m *Manager) load(ctx context.Context, id string) models.SessionState {
	data, err := m.store.Get(ctx, cache.SessionKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			m.logger.Warn("session load failed, starting fresh", "session_id", id, "error", err)
		}
		return models.SessionState{SessionID: id, CreatedAt: m.clock.Now()}
	}
	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn("session state corrupted, starting fresh", "session_id", id, "error", err)
		return models.SessionState{SessionID: id, CreatedAt: m.clock.Now()}
	}
	return state
}

func (m *Manager) save(ctx context.Context, state models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return utils.WrapErr("session.save", err)
	}
	if err := m.store.Set(ctx, cache.SessionKey(state.SessionID), data, m.opts.TTL); err != nil {
		return utils.WrapErr("session.save", err)
	}
	return nil
}

// touch refreshes the recency index, evicting the least recently seen
// session beyond the cap and expiring idle entries.
func (m *Manager) touch(ctx context.Context, id string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-m.opts.TTL)
	for sid, seen := range m.index {
		if seen.Before(cutoff) {
			delete(m.index, sid)
		}
	}

	if _, known := m.index[id]; !known && len(m.index) >= m.opts.MaxSessions {
		oldest := ""
		var oldestSeen time.Time
		for sid, seen := range m.index {
			if oldest == "" || seen.Before(oldestSeen) {
				oldest = sid
				oldestSeen = seen
			}
		}
		if oldest != "" {
			delete(m.index, oldest)
			if err := m.store.Del(ctx, cache.SessionKey(oldest)); err != nil {
				m.logger.Warn("session eviction failed", "session_id", oldest, "error", err)
			} else {
				m.logger.Debug("session evicted", "session_id", oldest)
			}
		}
	}

	m.index[id] = now
	metrics.SetActiveSessions(len(m.index))
}

// Describe summarizes manager configuration for startup logs.
func (m *Manager) Describe() string {
	return fmt.Sprintf("turns=%d rate=%d/min ttl=%s cap=%d",
		m.opts.MaxTurns, m.opts.RatePerMinute, m.opts.TTL, m.opts.MaxSessions)
}
