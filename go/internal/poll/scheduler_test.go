package poll

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

func TestSchedulerFiresAfterDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var fired atomic.Int32
	s.Schedule("p1", 10*time.Second, func(id string) {
		assert.Equal(t, "p1", id)
		fired.Add(1)
	})

	deadline, ok := s.Pending("p1")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(10*time.Second), deadline)

	clock.Advance(9 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, 5*time.Millisecond)

	_, ok = s.Pending("p1")
	assert.False(t, ok)
}

func TestSchedulerReplaceDropsPreviousHandle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var first, second atomic.Int32
	s.Schedule("p1", 10*time.Second, func(string) { first.Add(1) })
	s.Schedule("p1", 20*time.Second, func(string) { second.Add(1) })

	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(0), second.Load())

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var fired atomic.Int32
	s.Schedule("p1", 10*time.Second, func(string) { fired.Add(1) })

	s.Cancel("p1")
	s.Cancel("p1")
	s.Cancel("unknown")

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	_, ok := s.Pending("p1")
	assert.False(t, ok)
}

func TestSchedulerStopCancelsEverything(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock)

	var fired atomic.Int32
	s.Schedule("p1", 10*time.Second, func(string) { fired.Add(1) })
	s.Schedule("p2", 15*time.Second, func(string) { fired.Add(1) })

	s.Stop()

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
