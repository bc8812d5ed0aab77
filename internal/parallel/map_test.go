package parallel_test

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/massscan/internal/parallel"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Parallel()

	f := func(ctx context.Context, d time.Duration) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(d):
			return int(d), nil
		}
	}

	input := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}
	all4 := []int{
		int(1 * time.Second),
		int(2 * time.Second),
		int(5 * time.Second),
		int(10 * time.Second),
	}

	type given struct {
		limit   int
		timeout time.Duration
	}
	type then struct {
		values  []int
		elapsed time.Duration
	}

	var testCases = []struct {
		scenario string
		given    given
		then     then
	}{
		{"limit 1", given{1, 0}, then{all4, 18 * time.Second}},
		{"limit 0 is limit 1", given{0, 0}, then{all4, 18 * time.Second}},
		{"limit 2", given{2, 0}, then{all4, 12 * time.Second}},
		{"limit 10", given{10, 0}, then{all4, 10 * time.Second}},
		{"limit 1, cancel 1.5s", given{1, 1500 * time.Millisecond}, then{all4[:1], 1500 * time.Millisecond}},
		{"limit 10, cancel 1.5s", given{10, 1500 * time.Millisecond}, then{all4[:1], 1500 * time.Millisecond}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				ctx := t.Context()
				if tt.given.timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, tt.given.timeout)
					defer cancel()
				}
				start := time.Now()
				m := parallel.NewMap(ctx, tt.given.limit, f).Iter(all(input))
				require.ElementsMatch(t, tt.then.values, values(m))
				require.Equal(t, tt.then.elapsed, time.Since(start))
			})
		})
	}
}

func TestMap_Peak(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		limit    int
		jobs     int
		then     int32
	}{
		{"limit below jobs", 2, 5, 2},
		{"limit equals jobs", 5, 5, 5},
		{"limit above jobs", 10, 5, 5},
		{"limit 1", 1, 3, 1},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				var inFlight, peak atomic.Int32
				f := func(_ context.Context, id int) (int, error) {
					n := inFlight.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(time.Second)
					inFlight.Add(-1)
					return id, nil
				}
				ids := make([]int, tt.jobs)
				for i := range ids {
					ids[i] = i + 1
				}
				got := values(parallel.NewMap(t.Context(), tt.limit, f).Iter(all(ids)))
				require.ElementsMatch(t, ids, got)
				require.Equal(t, tt.then, peak.Load())
			})
		})
	}
}

func TestMap_Isolation(t *testing.T) {
	t.Parallel()
	errOdd := errors.New("odd")

	f := func(_ context.Context, i int) (int, error) {
		switch {
		case i == 3:
			panic("three")
		case i%2 == 1:
			return 0, errOdd
		default:
			return i, nil
		}
	}

	var ok []int
	var errs []error
	for d, err := range parallel.NewMap(t.Context(), 2, f).Iter(all([]int{1, 2, 3, 4, 5, 6})) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ok = append(ok, d)
	}
	require.ElementsMatch(t, []int{2, 4, 6}, ok)
	require.Len(t, errs, 3)
	var panics int
	for _, err := range errs {
		if !errors.Is(err, errOdd) {
			require.ErrorContains(t, err, "panic: three")
			panics++
		}
	}
	require.Equal(t, 1, panics)
}

func TestMap_Break(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		f := func(ctx context.Context, i int) (int, error) {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(i) * time.Second):
			}
			return i, nil
		}
		for range parallel.NewMap(t.Context(), 3, f).Iter(all([]int{1, 2, 3, 4})) {
			break
		}
		synctest.Wait()
	})
}

func all[T any](s []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, x := range s {
			if !yield(x, nil) {
				return
			}
		}
	}
}

func values[T any](i iter.Seq2[T, error]) []T {
	var ret []T
	for k, err := range i {
		if err != nil {
			continue
		}
		ret = append(ret, k)
	}
	return ret
}
