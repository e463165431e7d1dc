package message

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPendingMessage(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	m, err := NewPendingMessage("001", "1000", "", "002", "2000", "hi", 0, now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.ID, "sm_"))
	assert.Equal(t, DefaultAttemptBudget, m.Attempts)
	assert.True(t, m.Due(now))

	_, err = NewPendingMessage("001", "1000", "", "", "2000", "hi", 3, now)
	assert.Error(t, err)
}

func TestPendingMessageFailExhaustsBudget(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewPendingMessage("001", "1000", "", "002", "2000", "hi", 3, now)
	require.NoError(t, err)

	assert.True(t, m.Fail(now, time.Minute))
	assert.False(t, m.Due(now))
	assert.True(t, m.Fail(now, time.Minute))
	assert.False(t, m.Fail(now, time.Minute))
	assert.Equal(t, 0, m.Attempts)
}

func TestPendingMessageDefer(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewPendingMessage("001", "1000", "", "002", "2000", "hi", 3, now)
	require.NoError(t, err)

	m.Defer(now, 5*time.Minute)
	assert.Equal(t, 3, m.Attempts)
	assert.Equal(t, now.Add(5*time.Minute), m.NextAttempt)

	d := m.DeliveryTo("sip:002@10.0.0.2")
	assert.Equal(t, m.ID, d.MessageID)
	assert.Equal(t, "2000", d.ToNumber)
}
