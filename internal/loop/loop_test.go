package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInPostOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New("test")
	go l.Run(ctx)

	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not drain")
	}
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopSurvivesPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New("test")
	go l.Run(ctx)

	done := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after panic")
	}
}

func TestLoopTimerStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New("test")
	go l.Run(ctx)

	var mu sync.Mutex
	fired := 0
	timer := l.AfterFunc(20*time.Millisecond, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	done := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(done) })
	<-done
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, fired)
}

func TestPostAfterStopIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New("test")
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	l.Post(func() { t.Error("ran after stop") })
	time.Sleep(10 * time.Millisecond)
}

func TestManualAdvance(t *testing.T) {
	m := NewManual()
	var order []string
	m.AfterFunc(300*time.Millisecond, func() { order = append(order, "late") })
	early := m.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "early")
		m.Post(func() { order = append(order, "posted") })
	})
	cancelled := m.AfterFunc(200*time.Millisecond, func() { order = append(order, "cancelled") })
	assert.True(t, cancelled.Stop())
	assert.Equal(t, 2, m.Pending())

	m.Advance(150 * time.Millisecond)
	assert.Equal(t, []string{"early", "posted"}, order)
	assert.False(t, early.Stop())

	m.Advance(150 * time.Millisecond)
	assert.Equal(t, []string{"early", "posted", "late"}, order)
	assert.Equal(t, 0, m.Pending())
}

func TestManualRunUntil(t *testing.T) {
	m := NewManual()
	n := 0
	go func() {
		for i := 0; i < 3; i++ {
			m.Post(func() { n++ })
		}
	}()
	assert.True(t, m.RunUntil(func() bool { return n == 3 }, time.Second))
}
