package common

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PositionalIntegrity(t *testing.T) {
	inputs := []string{"A", "B", "C"}
	results := Run(context.Background(), inputs, func(ctx context.Context, in string) (string, error) {
		if in == "B" {
			return "", errors.New("lookup failed")
		}
		return in + "!", nil
	})

	require.Len(t, results, 3)
	assert.Equal(t, "A!", results[0].Value)
	assert.True(t, results[0].OK())
	assert.Equal(t, "", results[1].Value)
	assert.Equal(t, UnitFailed, results[1].Status)
	assert.EqualError(t, results[1].Err, "lookup failed")
	assert.Equal(t, "C!", results[2].Value)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	results := Run(context.Background(), []int{}, func(ctx context.Context, in int) (int, error) {
		t.Fatal("unit must not run")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestRun_UnitTimeoutIsScopedToUnit(t *testing.T) {
	inputs := []int{1, 2, 3}
	start := time.Now()
	results := Run(context.Background(), inputs, func(ctx context.Context, in int) (int, error) {
		if in == 2 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return in * 10, nil
	}, WithUnitTimeout(50*time.Millisecond))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 10, results[0].Value)
	assert.Equal(t, UnitTimedOut, results[1].Status)
	assert.ErrorIs(t, results[1].Err, context.DeadlineExceeded)
	assert.Equal(t, 30, results[2].Value)
}

func TestRun_UnitIgnoringContextIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	results := Run(context.Background(), []int{1}, func(ctx context.Context, in int) (int, error) {
		<-release
		return in, nil
	}, WithUnitTimeout(30*time.Millisecond))

	assert.Equal(t, UnitTimedOut, results[0].Status)
}

func TestRun_PanicIsRecovered(t *testing.T) {
	results := Run(context.Background(), []int{1, 2}, func(ctx context.Context, in int) (int, error) {
		if in == 1 {
			panic("boom")
		}
		return in, nil
	})

	assert.Equal(t, UnitPanicked, results[0].Status)
	assert.ErrorIs(t, results[0].Err, ErrUnitPanicked)
	assert.Contains(t, results[0].Err.Error(), "boom")
	assert.Equal(t, 2, results[1].Value)
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	inputs := make([]int, 20)

	Run(context.Background(), inputs, func(ctx context.Context, in int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return in, nil
	}, WithConcurrency(3))

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRun_UnboundedStartsEveryUnit(t *testing.T) {
	const n = 20
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()

	results := Run(context.Background(), make([]int, n), func(ctx context.Context, in int) (int, error) {
		started.Done()
		select {
		case <-release:
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, WithConcurrency(0), WithUnitTimeout(2*time.Second))

	for i, r := range results {
		assert.True(t, r.OK(), "unit %d", i)
	}
}

func TestRun_DefaultBoundsUnits(t *testing.T) {
	var inFlight, peak int32
	Run(context.Background(), make([]int, 3*DefaultConcurrency), func(ctx context.Context, in int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return in, nil
	})
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(DefaultConcurrency))
}

func TestRun_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, []int{1, 2}, func(ctx context.Context, in int) (int, error) {
		return 0, ctx.Err()
	})
	for _, r := range results {
		assert.Equal(t, UnitCancelled, r.Status)
	}
}

func TestValues_DropsFailedSlots(t *testing.T) {
	results := []Result[string]{
		{Index: 0, Value: "a", Status: UnitSucceeded},
		{Index: 1, Status: UnitFailed},
		{Index: 2, Value: "c", Status: UnitSucceeded},
	}
	assert.Equal(t, []string{"a", "c"}, Values(results))
}

func TestUnitStatus_String(t *testing.T) {
	assert.Equal(t, "TIMED_OUT", UnitTimedOut.String())
	assert.Equal(t, "UNKNOWN(42)", UnitStatus(42).String())
}
