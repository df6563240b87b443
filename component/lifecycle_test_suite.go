package component

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LifecycleFactory creates a fresh LifecycleComponent for one test case.
type LifecycleFactory func() LifecycleComponent

// StandardLifecycleTests checks that a component follows the lifecycle rules:
// Stop is idempotent and safe before Start, Start honours a done context,
// a stopped component can be initialized and started again, and concurrent
// Start/Stop calls do not race or leak goroutines.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	t.Run("StartStop", func(t *testing.T) {
		comp := newComponent(t, factory)
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("StopWithoutStart", func(t *testing.T) {
		comp := newComponent(t, factory)
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("DoubleStop", func(t *testing.T) {
		comp := newComponent(t, factory)
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		assert.NoError(t, comp.Stop(5*time.Second))
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("DoubleStart", func(t *testing.T) {
		comp := newComponent(t, factory)
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		// Implementations may reject or ignore the second call.
		_ = comp.Start(testContext(t))
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("StartWithoutInitialize", func(t *testing.T) {
		comp := newComponent(t, factory)
		if err := comp.Start(testContext(t)); err != nil {
			assert.Contains(t, err.Error(), "not initialized")
		}
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		comp := newComponent(t, factory)
		require.NoError(t, comp.Initialize())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := comp.Start(ctx)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "context"), "unexpected error: %v", err)
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("RestartAfterStop", func(t *testing.T) {
		comp := newComponent(t, factory)
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		require.NoError(t, comp.Stop(5*time.Second))

		if err := comp.Start(testContext(t)); err != nil {
			require.NoError(t, comp.Initialize(), "re-initialize after stop")
			require.NoError(t, comp.Start(testContext(t)))
		}
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("ConcurrentStartStop", func(t *testing.T) {
		testConcurrentStartStop(t, factory)
	})

	t.Run("NoGoroutineLeak", func(t *testing.T) {
		testNoGoroutineLeak(t, factory)
	})
}

func newComponent(t *testing.T, factory LifecycleFactory) LifecycleComponent {
	t.Helper()
	comp := factory()
	require.NotNil(t, comp, "component factory returned nil")
	return comp
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testConcurrentStartStop(t *testing.T, factory LifecycleFactory) {
	comp := newComponent(t, factory)
	require.NoError(t, comp.Initialize())

	var wg sync.WaitGroup
	errs := make([]error, 40)
	for i := range errs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if idx%2 == 0 {
				errs[idx] = comp.Start(testContext(t))
				return
			}
			time.Sleep(5 * time.Millisecond)
			errs[idx] = comp.Stop(5 * time.Second)
		}(i)
	}
	wg.Wait()

	starts, stops := 0, 0
	for i, err := range errs {
		if err != nil {
			continue
		}
		if i%2 == 0 {
			starts++
		} else {
			stops++
		}
	}
	assert.GreaterOrEqual(t, starts, 1, "at least one Start should succeed")
	assert.GreaterOrEqual(t, stops, 1, "at least one Stop should succeed")
	assert.NoError(t, comp.Stop(5*time.Second))
}

func testNoGoroutineLeak(t *testing.T, factory LifecycleFactory) {
	runtime.GC()
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		comp := newComponent(t, factory)
		require.NoError(t, comp.Initialize())
		require.NoError(t, comp.Start(testContext(t)))
		require.NoError(t, comp.Stop(5*time.Second))
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 20*time.Millisecond, "goroutines leaked: before=%d after=%d", before, runtime.NumGoroutine())
}
