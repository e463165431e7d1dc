package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/shared/biztime"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

func TestBoard(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("repeat raises count on the same entry", func(t *testing.T) {
		b := NewBoard(logger.NewNop()).WithClock(biztime.Fixed(fixed))

		b.Raise(KindPersistence, "registered", "persistence write failed")
		b.Raise(KindPersistence, "registered", "persistence write failed")

		list := b.List()
		require.Len(t, list, 1)
		assert.Equal(t, 2, list[0].Count)
		assert.Equal(t, StateFiring, list[0].State)
		assert.Equal(t, fixed, list[0].FiredAt)
	})

	t.Run("standing alarms sort first and clear", func(t *testing.T) {
		b := NewBoard(logger.NewNop())

		b.Raise(KindGateway, "vector", "vector service unreachable")
		b.RaiseStanding(KindConfig, "policy", "no registration policy configured")

		list := b.List()
		require.Len(t, list, 2)
		assert.Equal(t, KindConfig, list[0].Kind)
		assert.True(t, b.Firing(KindConfig, "policy"))

		b.Clear(KindConfig, "policy")
		assert.False(t, b.Firing(KindConfig, "policy"))
		assert.Len(t, b.List(), 1)
	})

	t.Run("clearing an unknown alarm is a no-op", func(t *testing.T) {
		b := NewBoard(nil)
		b.Clear(KindConfig, "missing")
		assert.Empty(t, b.List())
	})

	t.Run("raising after clear starts a fresh entry", func(t *testing.T) {
		b := NewBoard(logger.NewNop())
		b.RaiseStanding(KindConfig, "policy", "bad")
		b.Clear(KindConfig, "policy")
		b.RaiseStanding(KindConfig, "policy", "bad again")

		list := b.List()
		require.Len(t, list, 1)
		assert.Equal(t, 1, list[0].Count)
		assert.Equal(t, "bad again", list[0].Message)
	})
}
