// Package alarm keeps the operational alarms raised by the core.
//
// An alarm is either standing (a condition that persists until cleared, such as
// a configuration error) or transient (a one-off event such as a failed
// persistence write, kept for inspection and counted on repeat).
package alarm

import (
	"sort"
	"sync"
	"time"

	"github.com/orris-inc/cellcore/internal/shared/biztime"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// Kind identifies the source of an alarm.
type Kind string

const (
	KindConfig      Kind = "config"
	KindPersistence Kind = "persistence"
	KindGateway     Kind = "gateway"
)

// State follows the Normal -> Firing -> Normal lifecycle.
type State string

const (
	StateNormal State = "normal"
	StateFiring State = "firing"
)

// Alarm is a snapshot of one alarm entry.
type Alarm struct {
	Kind     Kind      `json:"kind"`
	Key      string    `json:"key"`
	Message  string    `json:"message"`
	Standing bool      `json:"standing"`
	State    State     `json:"state"`
	Count    int       `json:"count"`
	FiredAt  time.Time `json:"fired_at"`
	LastSeen time.Time `json:"last_seen"`
}

// Board is safe for concurrent use.
type Board struct {
	mu     sync.RWMutex
	alarms map[string]*Alarm
	logger logger.Interface
	now    biztime.Clock
}

func NewBoard(log logger.Interface) *Board {
	if log == nil {
		log = logger.NewNop()
	}
	return &Board{
		alarms: make(map[string]*Alarm),
		logger: log,
		now:    biztime.NowUTC,
	}
}

// WithClock replaces the board's clock.
func (b *Board) WithClock(clock biztime.Clock) *Board {
	b.now = clock.OrDefault()
	return b
}

func entryKey(kind Kind, key string) string {
	return string(kind) + ":" + key
}

// Raise fires a transient alarm.
func (b *Board) Raise(kind Kind, key, message string, keysAndValues ...any) {
	b.fire(kind, key, message, false, keysAndValues)
}

// RaiseStanding fires an alarm that stays up until Clear is called.
func (b *Board) RaiseStanding(kind Kind, key, message string, keysAndValues ...any) {
	b.fire(kind, key, message, true, keysAndValues)
}

func (b *Board) fire(kind Kind, key, message string, standing bool, keysAndValues []any) {
	now := b.now()

	b.mu.Lock()
	a, ok := b.alarms[entryKey(kind, key)]
	if !ok || a.State == StateNormal {
		a = &Alarm{Kind: kind, Key: key, FiredAt: now}
		b.alarms[entryKey(kind, key)] = a
	}
	a.Message = message
	a.Standing = standing
	a.State = StateFiring
	a.Count++
	a.LastSeen = now
	count := a.Count
	b.mu.Unlock()

	args := append([]any{"alarm", string(kind), "key", key, "count", count}, keysAndValues...)
	b.logger.Errorw(message, args...)
}

// Clear returns an alarm to normal. Clearing an unknown alarm is a no-op.
func (b *Board) Clear(kind Kind, key string) {
	b.mu.Lock()
	a, ok := b.alarms[entryKey(kind, key)]
	wasFiring := ok && a.State == StateFiring
	if wasFiring {
		a.State = StateNormal
	}
	b.mu.Unlock()

	if wasFiring {
		b.logger.Infow("alarm cleared", "alarm", string(kind), "key", key)
	}
}

// Firing reports whether the given alarm is currently up.
func (b *Board) Firing(kind Kind, key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.alarms[entryKey(kind, key)]
	return ok && a.State == StateFiring
}

// List returns all firing alarms, standing first, then by kind and key.
func (b *Board) List() []Alarm {
	b.mu.RLock()
	out := make([]Alarm, 0, len(b.alarms))
	for _, a := range b.alarms {
		if a.State == StateFiring {
			out = append(out, *a)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Standing != out[j].Standing {
			return out[i].Standing
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})
	return out
}
