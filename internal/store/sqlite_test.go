package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/lovemovie/internal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(t.Context(), filepath.Join(t.TempDir(), "lovemovie.db"), opts...)
	require.NoError(t, err, "Open")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func inception() internal.Movie {
	poster := "/inception.jpg"
	return internal.Movie{
		ID: 27205, Title: "Inception", PosterPath: &poster,
		ReleaseDate: "2010-07-15", VoteAverage: 8.4, OriginalLanguage: "en",
	}
}

func TestUnit_Favorite_DefaultsToFalse(t *testing.T) {
	s := openTestStore(t)
	fav, err := s.GetFavorite(t.Context(), 42)
	require.NoError(t, err)
	require.False(t, fav)
}

func TestUnit_Favorite_SetAndUnset(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	movie := inception()

	require.NoError(t, s.SetFavorite(ctx, movie.ID, true, movie))
	fav, err := s.GetFavorite(ctx, movie.ID)
	require.NoError(t, err)
	require.True(t, fav)

	snapshots, err := s.ListFavoriteSnapshots(ctx)
	require.NoError(t, err)
	require.Equal(t, []internal.Movie{movie}, snapshots)

	ids, err := s.FavoriteIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{movie.ID}, ids)

	snapshot, ok, err := s.FavoriteSnapshot(ctx, movie.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, movie, snapshot)

	require.NoError(t, s.SetFavorite(ctx, movie.ID, false, movie))
	fav, err = s.GetFavorite(ctx, movie.ID)
	require.NoError(t, err)
	require.False(t, fav)

	snapshots, err = s.ListFavoriteSnapshots(ctx)
	require.NoError(t, err)
	require.Empty(t, snapshots, "unsetting removes the snapshot")

	_, ok, err = s.FavoriteSnapshot(ctx, movie.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnit_Favorite_RestoreSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	movie := inception()

	require.NoError(t, s.SetFavorite(ctx, movie.ID, true, movie))
	require.NoError(t, s.SetFavorite(ctx, movie.ID, false, movie))
	require.NoError(t, s.SetFavorite(ctx, movie.ID, true, movie))

	snapshots, err := s.ListFavoriteSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, movie, snapshots[0], "restored snapshot equals the original")
}

func TestUnit_Favorite_LegacyRowWithoutSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	ctx := t.Context()

	legacy, err := open(ctx, path, 1)
	require.NoError(t, err)
	_, err = legacy.db.ExecContext(ctx, `INSERT INTO favorites (movie_id, favorite) VALUES (?, 1)`, 550)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fav, err := s.GetFavorite(ctx, 550)
	require.NoError(t, err)
	assert.False(t, fav, "flag without snapshot reads as not favorite")

	ids, err := s.FavoriteIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUnit_ListFavoriteSnapshots_SkipsUndecodableAndStale(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	movie := inception()
	require.NoError(t, s.SetFavorite(ctx, movie.ID, true, movie))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO favorites (movie_id, favorite, snapshot, updated_at) VALUES (?, 1, ?, 0)`, 1, []byte("{not json"))
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO favorites (movie_id, favorite, snapshot, updated_at) VALUES (?, 0, ?, 0)`, 2, []byte(`{"id":2}`))
	require.NoError(t, err)

	snapshots, err := s.ListFavoriteSnapshots(ctx)
	require.NoError(t, err)
	require.Equal(t, []internal.Movie{movie}, snapshots)
}

func TestUnit_MergeFavorites(t *testing.T) {
	clock := newFakeClock()
	s := openTestStore(t, WithClock(clock.Now))
	ctx := t.Context()

	older := internal.Movie{ID: 129, Title: "Spirited Away"}
	require.NoError(t, s.SetFavorite(ctx, older.ID, true, older))
	clock.Advance(time.Second)

	remote := []internal.Movie{inception(), {ID: 155, Title: "The Dark Knight"}}
	require.NoError(t, s.MergeFavorites(ctx, remote))
	require.NoError(t, s.MergeFavorites(ctx, nil))

	snapshots, err := s.ListFavoriteSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	assert.Equal(t, older.ID, snapshots[0].ID, "oldest first")

	ids, err := s.FavoriteIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{129, 155, 27205}, ids)
}

func TestUnit_Cache_RoundTripAndExpiry(t *testing.T) {
	for _, tc := range []struct {
		name   string
		memory int
	}{
		{name: "with memory layer", memory: DefaultMemoryEntries},
		{name: "disk only", memory: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			s := openTestStore(t, WithClock(clock.Now), WithMemoryEntries(tc.memory))
			ctx := t.Context()

			require.NoError(t, s.PutCache(ctx, "popular_1", []byte(`{"page":1}`)))
			got, ok, err := s.GetCache(ctx, "popular_1")
			require.NoError(t, err)
			require.True(t, ok)
			require.JSONEq(t, `{"page":1}`, string(got))

			clock.Advance(DefaultTTL - time.Millisecond)
			_, ok, err = s.GetCache(ctx, "popular_1")
			require.NoError(t, err)
			require.True(t, ok, "fresh just before the TTL")

			clock.Advance(time.Millisecond)
			_, ok, err = s.GetCache(ctx, "popular_1")
			require.NoError(t, err)
			require.False(t, ok, "expired at exactly the TTL")

			require.NoError(t, s.PutCache(ctx, "popular_1", []byte(`{"page":2}`)))
			got, ok, err = s.GetCache(ctx, "popular_1")
			require.NoError(t, err)
			require.True(t, ok, "overwrite refreshes the timestamp")
			require.JSONEq(t, `{"page":2}`, string(got))
		})
	}
}

func TestUnit_Cache_Missing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetCache(t.Context(), "detail_1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnit_Cache_SurvivesReopen(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "lovemovie.db")
	ctx := t.Context()

	first, err := Open(ctx, path, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, first.PutCache(ctx, DetailKey(27205), []byte(`{"id":27205}`)))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, ok, err := second.GetCache(ctx, DetailKey(27205))
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":27205}`, string(got))
}

func TestUnit_LoadCached(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	want := internal.MoviesResponse{Page: 1, Results: []internal.Movie{inception()}, TotalPages: 3, TotalResults: 60}

	require.NoError(t, StoreCached(ctx, s, PopularKey(1), want))
	got, ok, err := LoadCached[internal.MoviesResponse](ctx, s, PopularKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestUnit_LoadCached_DecodeFailureIsMiss(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.PutCache(ctx, PopularKey(1), []byte(`{"page":"one"`)))
	got, ok, err := LoadCached[internal.MoviesResponse](ctx, s, PopularKey(1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, got)
}

func TestUnit_Keys(t *testing.T) {
	assert.Equal(t, "popular_3", PopularKey(3))
	assert.Equal(t, "detail_27205", DetailKey(27205))
}

func TestUnit_Cache_ConcurrentReadersSeeWholeEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	payloads := map[string]bool{}
	for i := range 5 {
		payloads[fmt.Sprintf(`{"page":%d}`, i)] = true
	}

	var wg conc.WaitGroup
	for p := range payloads {
		wg.Go(func() {
			for range 10 {
				assert.NoError(t, s.PutCache(ctx, "popular_1", []byte(p)))
			}
		})
	}
	for range 4 {
		wg.Go(func() {
			for range 20 {
				got, ok, err := s.GetCache(ctx, "popular_1")
				if !assert.NoError(t, err) || !ok {
					continue
				}
				assert.True(t, payloads[string(got)], "torn read: %q", got)
			}
		})
	}
	wg.Wait()
}
