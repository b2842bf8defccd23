package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/drewfead/lovemovie/internal"
)

// deadlineGrace bounds how long a stream whose deadline passed waits for its reader to take the
// final Timeout state.
const deadlineGrace = time.Second

// cachedRead runs the cache-then-network protocol on one goroutine, so the cached emission always
// precedes the network one. The channel closes after the terminal state. A cancelled ctx closes
// it without one; a ctx whose deadline passed before anything was cached ends with a Timeout.
func cachedRead[T any](
	ctx context.Context,
	key string,
	load func(context.Context) (T, bool),
	fetch func(context.Context) (T, error),
	persist func(context.Context, T) error,
) <-chan internal.Result[T] {
	out := make(chan internal.Result[T])
	go func() {
		defer close(out)
		if !send(ctx, out, internal.Loading[T]()) {
			return
		}

		cached, hit := load(ctx)
		if hit && !send(ctx, out, internal.Success(cached)) {
			return
		}

		fresh, err := fetch(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			if hit {
				slog.Debug("repository: network failed, keeping cached value", "key", key, "error", err)
				return
			}
			failure := internal.Failure[T](Classify(err))
			if ctx.Err() != nil {
				sendLate(out, failure)
				return
			}
			send(ctx, out, failure)
			return
		}
		if err := persist(ctx, fresh); err != nil {
			slog.Warn("repository: cache write failed", "key", key, "error", err)
		}
		send(ctx, out, internal.Success(fresh))
	}()
	return out
}

func send[T any](ctx context.Context, out chan<- internal.Result[T], r internal.Result[T]) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendLate delivers r after ctx expired, giving up if nobody reads within deadlineGrace.
func sendLate[T any](out chan<- internal.Result[T], r internal.Result[T]) {
	timer := time.NewTimer(deadlineGrace)
	defer timer.Stop()
	select {
	case out <- r:
	case <-timer.C:
	}
}

// Collect drains a stream into a slice, for callers that only want the settled sequence.
func Collect[T any](ch <-chan internal.Result[T]) []internal.Result[T] {
	var results []internal.Result[T]
	for r := range ch {
		results = append(results, r)
	}
	return results
}
