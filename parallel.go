package lcservice

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one item of ParallelExec: fn's value or the error,
// panic or timeout that replaced it.
type Outcome[R any] struct {
	Value R
	Err   error
}

// KeyedOutcome is an Outcome tagged with the key of its item.
type KeyedOutcome[K comparable, R any] struct {
	Key   K
	Value R
	Err   error
}

// ParallelExec applies fn to every item with at most limit calls running at
// once (limit <= 0 means no bound). Each call gets timeout, if positive. The
// outcomes are in completion order and one failure never cancels the others.
//
// A call that times out is reported at once, but it keeps its slot until fn
// returns, and ParallelExec only returns once every call has. fn should honor
// ctx to give the slot back early.
func ParallelExec[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), items []T, limit int, timeout time.Duration) []Outcome[R] {
	keys := make([]int, len(items))
	for i := range keys {
		keys[i] = i
	}
	keyed := fanOut(ctx, fn, keys, func(i int) T { return items[i] }, limit, timeout)
	out := make([]Outcome[R], len(keyed))
	for i, o := range keyed {
		out[i] = Outcome[R]{Value: o.Value, Err: o.Err}
	}
	return out
}

// ParallelExecKeyed is ParallelExec over a map, keeping each item's key next
// to its outcome.
func ParallelExecKeyed[K comparable, T, R any](ctx context.Context, fn func(context.Context, T) (R, error), items map[K]T, limit int, timeout time.Duration) []KeyedOutcome[K, R] {
	keys := make([]K, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return fanOut(ctx, fn, keys, func(k K) T { return items[k] }, limit, timeout)
}

func fanOut[K comparable, T, R any](ctx context.Context, fn func(context.Context, T) (R, error), keys []K, item func(K) T, limit int, timeout time.Duration) []KeyedOutcome[K, R] {
	var (
		g   errgroup.Group
		mu  sync.Mutex
		out = make([]KeyedOutcome[K, R], 0, len(keys))
	)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, k := range keys {
		v := item(k)
		g.Go(func() error {
			callItem(ctx, fn, v, timeout, func(r R, err error) {
				mu.Lock()
				out = append(out, KeyedOutcome[K, R]{Key: k, Value: r, Err: err})
				mu.Unlock()
			})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// callItem reports the outcome of fn on item through record, as soon as it is
// known, and returns once fn has returned.
func callItem[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), item T, timeout time.Duration, record func(R, error)) {
	if timeout <= 0 {
		record(protect(ctx, fn, item))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value R
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := protect(ctx, fn, item)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		record(r.value, r.err)
	case <-ctx.Done():
		var zero R
		record(zero, ctx.Err())
		<-ch
	}
}

func protect[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), item T) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, item)
}
