package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerRunsImmediatelyAndRepeats(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("BRT", -3*60*60)
	var runs atomic.Int32
	zones := make(chan string, 16)
	s := NewTickerScheduler(10*time.Millisecond, loc)

	require.NoError(t, s.Start(context.Background(), func(at time.Time) {
		runs.Add(1)
		name, _ := at.Zone()
		select {
		case zones <- name:
		default:
		}
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, "BRT", <-zones)

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestTickerStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewTickerScheduler(time.Hour, nil)
	started := make(chan struct{}, 1)
	require.NoError(t, s.Start(ctx, func(time.Time) { started <- struct{}{} }))
	<-started

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
}

func TestTickerRejectsZeroInterval(t *testing.T) {
	t.Parallel()

	err := NewTickerScheduler(0, nil).Start(context.Background(), func(time.Time) {})
	assert.Error(t, err)
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewTickerScheduler(time.Minute, nil).Stop(context.Background()))
}
