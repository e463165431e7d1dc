package goroutine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orris-inc/cellcore/internal/shared/logger"
)

func TestRun(t *testing.T) {
	log := logger.NewNop()

	t.Run("returns the function error", func(t *testing.T) {
		want := errors.New("boom")
		assert.Equal(t, want, Run(log, "handler", func() error { return want }))
	})

	t.Run("converts a panic into an error", func(t *testing.T) {
		err := Run(log, "handler", func() error { panic("nil profile") })
		assert.EqualError(t, err, "handler panicked: nil profile")
	})
}

func TestSafeGo(t *testing.T) {
	done := make(chan struct{})
	SafeGo(logger.NewNop(), "worker", func() {
		defer close(done)
		panic("worker failure")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}
