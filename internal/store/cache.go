package store

import (
	"context"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/drewfead/lovemovie/internal"
)

// PopularKey is the cache key of one popular-movies page.
func PopularKey(page int) string {
	return fmt.Sprintf("popular_%d", page)
}

// DetailKey is the cache key of one movie detail.
func DetailKey(movieID int) string {
	return fmt.Sprintf("detail_%d", movieID)
}

// LoadCached decodes the fresh entry under key. A payload that no longer decodes as T is a miss.
func LoadCached[T any](ctx context.Context, s internal.LocalStore, key string) (T, bool, error) {
	var value T
	payload, ok, err := s.GetCache(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		slog.Debug("store: discarding undecodable cache entry", "key", key, "error", err)
		var zero T
		return zero, false, nil
	}
	return value, true, nil
}

// StoreCached encodes value and writes it under key.
func StoreCached[T any](ctx context.Context, s internal.LocalStore, key string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	return s.PutCache(ctx, key, payload)
}
