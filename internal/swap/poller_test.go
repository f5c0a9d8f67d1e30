package swap

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

func TestPollerSingleTimer(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller(&PollerConfig{
		Interval: 10 * time.Millisecond,
		Tick:     func(ctx context.Context) { ticks.Add(1) },
		Logger:   logging.Discard(),
	})
	defer p.Close()

	assert.Equal(t, PollerIdle, p.State())
	assert.False(t, p.Stop(), "stop while idle is a no-op")

	assert.True(t, p.Start())
	assert.False(t, p.Start(), "second start is a no-op")
	assert.Equal(t, PollerPolling, p.State())

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)

	assert.True(t, p.Stop())
	assert.False(t, p.Stop())
	assert.Equal(t, PollerIdle, p.State())

	p.Close()
	stopped := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load(), "no ticks after close")
}

func TestPollerRestart(t *testing.T) {
	var ticks atomic.Int32
	p := NewPoller(&PollerConfig{
		Interval: 10 * time.Millisecond,
		Tick:     func(ctx context.Context) { ticks.Add(1) },
		Logger:   logging.Discard(),
	})
	defer p.Close()

	for i := 0; i < 3; i++ {
		assert.True(t, p.Start())
		assert.True(t, p.Stop())
	}
	assert.True(t, p.Start())
	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestPollerTickTimeout(t *testing.T) {
	deadlines := make(chan bool, 1)
	p := NewPoller(&PollerConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
		Tick: func(ctx context.Context) {
			_, ok := ctx.Deadline()
			select {
			case deadlines <- ok:
			default:
			}
		},
		Logger: logging.Discard(),
	})
	defer p.Close()

	p.Start()
	select {
	case ok := <-deadlines:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}
}
