package repository_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/drewfead/lovemovie/internal"
	"github.com/drewfead/lovemovie/internal/catalog"
	"github.com/drewfead/lovemovie/internal/catalog/catalogtest"
	"github.com/drewfead/lovemovie/internal/httputil"
	"github.com/drewfead/lovemovie/internal/mocks"
	"github.com/drewfead/lovemovie/internal/netcheck"
	"github.com/drewfead/lovemovie/internal/repository"
	"github.com/drewfead/lovemovie/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "lovemovie.db"))
	require.NoError(t, err, "store.Open")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRepository(t *testing.T) (*repository.Repository, *mocks.MockRemote, *store.Store) {
	t.Helper()
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	local := openStore(t)
	return repository.New(remote, local), remote, local
}

func kinds[T any](results []internal.Result[T]) []internal.ResultKind {
	out := make([]internal.ResultKind, len(results))
	for i, r := range results {
		out[i] = r.Kind
	}
	return out
}

func page(ids ...int) *internal.MoviesResponse {
	res := &internal.MoviesResponse{Page: 1, TotalPages: 1, TotalResults: len(ids)}
	for _, id := range ids {
		res.Results = append(res.Results, internal.Movie{ID: id, Title: "movie"})
	}
	return res
}

var errUnavailable = &httputil.StatusError{StatusCode: http.StatusServiceUnavailable}

func TestUnit_ToggleFavorite_SuccessNegates(t *testing.T) {
	repo, remote, _ := newRepository(t)
	ctx := t.Context()
	movie := internal.Movie{ID: 27205, Title: "Inception"}

	remote.EXPECT().SetFavorite(gomock.Any(), 27205, true).Return(nil)
	remote.EXPECT().SetFavorite(gomock.Any(), 27205, false).Return(nil)

	before, err := repo.IsFavorite(ctx, movie.ID)
	require.NoError(t, err)
	require.False(t, before)

	res := repo.ToggleFavorite(ctx, movie.ID, movie)
	got, ok := res.Get()
	require.True(t, ok, "toggle: %+v", res.Err)
	require.True(t, got)
	after, err := repo.IsFavorite(ctx, movie.ID)
	require.NoError(t, err)
	require.Equal(t, !before, after)

	res = repo.ToggleFavorite(ctx, movie.ID, movie)
	got, ok = res.Get()
	require.True(t, ok)
	require.False(t, got)
	after, err = repo.IsFavorite(ctx, movie.ID)
	require.NoError(t, err)
	require.False(t, after)
}

func TestUnit_ToggleFavorite_FailureRollsBack(t *testing.T) {
	for _, before := range []bool{false, true} {
		t.Run(map[bool]string{false: "from unset", true: "from set"}[before], func(t *testing.T) {
			repo, remote, local := newRepository(t)
			ctx := t.Context()
			original := internal.Movie{ID: 27205, Title: "Inception"}
			if before {
				require.NoError(t, local.SetFavorite(ctx, original.ID, true, original))
			}

			remote.EXPECT().SetFavorite(gomock.Any(), 27205, !before).Return(errUnavailable)

			res := repo.ToggleFavorite(ctx, original.ID, internal.Movie{ID: 27205, Title: "Inception (edited)"})
			require.True(t, res.IsError())
			assert.Equal(t, internal.ErrorHTTP, res.Err.Kind)
			assert.Equal(t, http.StatusServiceUnavailable, res.Err.Code)

			after, err := repo.IsFavorite(ctx, original.ID)
			require.NoError(t, err)
			require.Equal(t, before, after, "rollback restores the flag")

			snapshot, ok, err := local.FavoriteSnapshot(ctx, original.ID)
			require.NoError(t, err)
			require.Equal(t, before, ok)
			if before {
				require.Equal(t, original, snapshot, "rollback restores the snapshot")
			}
		})
	}
}

func TestUnit_ToggleFavorite_ConcurrentTogglesAreSerialized(t *testing.T) {
	repo, remote, _ := newRepository(t)
	ctx := t.Context()
	movie := internal.Movie{ID: 155, Title: "The Dark Knight"}
	remote.EXPECT().SetFavorite(gomock.Any(), 155, gomock.Any()).Return(nil).Times(10)

	var wg conc.WaitGroup
	for range 10 {
		wg.Go(func() {
			assert.True(t, repo.ToggleFavorite(ctx, movie.ID, movie).IsSuccess())
		})
	}
	wg.Wait()

	fav, err := repo.IsFavorite(ctx, movie.ID)
	require.NoError(t, err)
	require.False(t, fav, "an even number of toggles ends where it started")
}

func TestUnit_PopularMovies_CachedThenNetworkFailure(t *testing.T) {
	repo, remote, local := newRepository(t)
	ctx := t.Context()
	cached := page(1, 2)
	require.NoError(t, store.StoreCached(ctx, local, store.PopularKey(1), *cached))

	remote.EXPECT().FetchPopular(gomock.Any(), 1).Return(nil, errUnavailable)

	results := repository.Collect(repo.PopularMovies(ctx, 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultSuccess}, kinds(results))
	require.Equal(t, *cached, results[1].Data)
}

func TestUnit_PopularMovies_NoCacheNetworkFailure(t *testing.T) {
	repo, remote, _ := newRepository(t)
	remote.EXPECT().FetchPopular(gomock.Any(), 1).Return(nil, netcheck.ErrNoConnectivity)

	results := repository.Collect(repo.PopularMovies(t.Context(), 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultError}, kinds(results))
	require.Equal(t, internal.ErrorNoConnectivity, results[1].Err.Kind)
}

func TestUnit_PopularMovies_CachedThenFresh(t *testing.T) {
	repo, remote, local := newRepository(t)
	ctx := t.Context()
	require.NoError(t, store.StoreCached(ctx, local, store.PopularKey(1), *page(1)))
	fresh := page(1, 2, 3)
	remote.EXPECT().FetchPopular(gomock.Any(), 1).Return(fresh, nil)

	results := repository.Collect(repo.PopularMovies(ctx, 1))
	require.Equal(t,
		[]internal.ResultKind{internal.ResultLoading, internal.ResultSuccess, internal.ResultSuccess},
		kinds(results))
	require.Len(t, results[1].Data.Results, 1, "cached value first")
	require.Equal(t, *fresh, results[2].Data)

	stored, ok, err := store.LoadCached[internal.MoviesResponse](ctx, local, store.PopularKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, *fresh, stored, "network value overwrites the cache")
}

func TestUnit_MovieDetail_NoCacheNotFound(t *testing.T) {
	repo, remote, _ := newRepository(t)
	remote.EXPECT().FetchDetail(gomock.Any(), 1).Return(nil, &httputil.StatusError{StatusCode: http.StatusNotFound})

	results := repository.Collect(repo.MovieDetail(t.Context(), 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultError}, kinds(results))
	assert.Equal(t, internal.ErrorHTTP, results[1].Err.Kind)
	assert.Equal(t, http.StatusNotFound, results[1].Err.Code)
	assert.Equal(t, "Resource not found", results[1].Err.Message)
}

func TestUnit_PopularPage_SecondCallServedFromCache(t *testing.T) {
	repo, remote, _ := newRepository(t)
	ctx := t.Context()
	remote.EXPECT().FetchPopular(gomock.Any(), 1).Return(page(1, 2), nil).Times(1)

	first := repo.PopularPage(ctx, 1)
	require.True(t, first.IsSuccess())
	second := repo.PopularPage(ctx, 1)
	require.True(t, second.IsSuccess())
	require.Equal(t, first.Data, second.Data)
}

func TestUnit_PopularPage_Failure(t *testing.T) {
	repo, remote, _ := newRepository(t)
	remote.EXPECT().FetchPopular(gomock.Any(), 2).Return(nil, context.DeadlineExceeded)

	res := repo.PopularPage(t.Context(), 2)
	require.True(t, res.IsError())
	require.Equal(t, internal.ErrorTimeout, res.Err.Kind)
}

func TestUnit_FavoriteMovies_LocalThenRemote(t *testing.T) {
	repo, remote, local := newRepository(t)
	ctx := t.Context()
	require.NoError(t, local.SetFavorite(ctx, 129, true, internal.Movie{ID: 129, Title: "Spirited Away"}))
	remote.EXPECT().FetchFavorites(gomock.Any(), 1).Return(page(129, 27205), nil)

	results := repository.Collect(repo.FavoriteMovies(ctx, 1))
	require.Equal(t,
		[]internal.ResultKind{internal.ResultLoading, internal.ResultSuccess, internal.ResultSuccess},
		kinds(results))
	require.Len(t, results[1].Data.Results, 1)
	require.Len(t, results[2].Data.Results, 2)

	ids, err := repo.FavoriteIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{129, 27205}, ids, "remote favorites are merged locally")
}

func TestUnit_FavoriteMovies_OfflineKeepsLocal(t *testing.T) {
	repo, remote, local := newRepository(t)
	ctx := t.Context()
	require.NoError(t, local.SetFavorite(ctx, 129, true, internal.Movie{ID: 129, Title: "Spirited Away"}))
	remote.EXPECT().FetchFavorites(gomock.Any(), 1).Return(nil, netcheck.ErrNoConnectivity)

	results := repository.Collect(repo.FavoriteMovies(ctx, 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultSuccess}, kinds(results))
	require.Equal(t, 129, results[1].Data.Results[0].ID)
}

func TestUnit_FavoriteMovies_Unauthorized(t *testing.T) {
	repo, remote, _ := newRepository(t)
	remote.EXPECT().FetchFavorites(gomock.Any(), 1).
		Return(nil, &httputil.StatusError{StatusCode: http.StatusUnauthorized})

	results := repository.Collect(repo.FavoriteMovies(t.Context(), 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultError}, kinds(results))
	require.Equal(t, http.StatusUnauthorized, results[1].Err.Code)
}

func TestUnit_Stream_StopsWhenContextCancelled(t *testing.T) {
	repo, remote, _ := newRepository(t)
	ctx, cancel := context.WithCancel(t.Context())
	remote.EXPECT().FetchPopular(gomock.Any(), 1).DoAndReturn(
		func(ctx context.Context, _ int) (*internal.MoviesResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	ch := repo.PopularMovies(ctx, 1)
	first := <-ch
	require.True(t, first.IsLoading())
	cancel()
	for r := range ch {
		t.Fatalf("unexpected emission after cancel: %+v", r)
	}
}

func TestUnit_Stream_DeadlineEndsWithTimeout(t *testing.T) {
	repo, remote, _ := newRepository(t)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	remote.EXPECT().FetchPopular(gomock.Any(), 1).DoAndReturn(
		func(ctx context.Context, _ int) (*internal.MoviesResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	results := repository.Collect(repo.PopularMovies(ctx, 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultError}, kinds(results))
	assert.Equal(t, internal.ErrorTimeout, results[1].Err.Kind)
	assert.ErrorIs(t, results[1].Err, context.DeadlineExceeded)
}

func TestUnit_Stream_DeadlineKeepsCachedValue(t *testing.T) {
	repo, remote, local := newRepository(t)
	require.NoError(t, store.StoreCached(t.Context(), local, store.PopularKey(1), *page(1, 2)))
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	remote.EXPECT().FetchPopular(gomock.Any(), 1).DoAndReturn(
		func(ctx context.Context, _ int) (*internal.MoviesResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	results := repository.Collect(repo.PopularMovies(ctx, 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultSuccess}, kinds(results))
}

func TestAcceptance_ToggleServerErrorIsHTTP(t *testing.T) {
	server := catalogtest.New(t)
	server.Fail("/favorite", http.StatusInternalServerError)
	repo := repository.New(server.NewRemote(t), openStore(t))
	ctx := t.Context()

	res := repo.ToggleFavorite(ctx, catalogtest.InceptionID, internal.Movie{ID: catalogtest.InceptionID, Title: "Inception"})
	require.True(t, res.IsError())
	assert.Equal(t, internal.ErrorHTTP, res.Err.Kind)
	assert.Equal(t, http.StatusInternalServerError, res.Err.Code)
	assert.Equal(t, "Server error, try again later", res.Err.Message)

	fav, err := repo.IsFavorite(ctx, catalogtest.InceptionID)
	require.NoError(t, err)
	assert.False(t, fav, "rolled back")
}

func TestAcceptance_ToggleTimeoutIsTimeout(t *testing.T) {
	server := catalogtest.New(t)
	server.Stall("/favorite")
	repo := repository.New(server.NewRemote(t, catalog.WithTimeout(50*time.Millisecond)), openStore(t))

	res := repo.ToggleFavorite(t.Context(), catalogtest.InceptionID, internal.Movie{ID: catalogtest.InceptionID, Title: "Inception"})
	require.True(t, res.IsError())
	assert.Equal(t, internal.ErrorTimeout, res.Err.Kind)
}

func TestAcceptance_ClassifiedErrorHidesCredentials(t *testing.T) {
	server := catalogtest.New(t)
	server.Fail("/movie/popular", http.StatusServiceUnavailable)
	server.Fail("/favorite", http.StatusInternalServerError)
	repo := repository.New(server.NewRemote(t, catalog.WithSessionID("test-session")), openStore(t))
	ctx := t.Context()

	results := repository.Collect(repo.PopularMovies(ctx, 1))
	last := results[len(results)-1]
	require.True(t, last.IsError())
	assert.Equal(t, http.StatusServiceUnavailable, last.Err.Code)
	assert.NotContains(t, last.Err.Error(), "test-key")

	res := repo.ToggleFavorite(ctx, catalogtest.InceptionID, internal.Movie{ID: catalogtest.InceptionID, Title: "Inception"})
	require.True(t, res.IsError())
	assert.NotContains(t, res.Err.Error(), "test-key")
	assert.NotContains(t, res.Err.Error(), "test-session")
}

func TestAcceptance_InceptionToggleWhileOffline(t *testing.T) {
	server := catalogtest.New(t)
	online := netcheck.NewToggle(true)
	remote := server.NewRemote(t, catalog.WithConnectivity(online))
	repo := repository.New(remote, openStore(t))
	ctx := t.Context()

	results := repository.Collect(repo.MovieDetail(ctx, catalogtest.InceptionID))
	require.NotEmpty(t, results)
	last := results[len(results)-1]
	detail, ok := last.Get()
	require.True(t, ok, "detail: %+v", last.Err)
	require.Equal(t, "Inception", detail.Title)

	before, err := repo.IsFavorite(ctx, catalogtest.InceptionID)
	require.NoError(t, err)

	online.Set(false)
	res := repo.ToggleFavorite(ctx, catalogtest.InceptionID, detail.ToMovie())
	require.True(t, res.IsError())
	require.Equal(t, internal.ErrorNoConnectivity, res.Err.Kind)
	require.True(t, errors.Is(res.Err, netcheck.ErrNoConnectivity))

	after, err := repo.IsFavorite(ctx, catalogtest.InceptionID)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Zero(t, server.Count(http.MethodPost, "/favorite"), "no mutation was sent")
}

func TestAcceptance_SequentialPopularLoadsShareOneRequest(t *testing.T) {
	server := catalogtest.New(t)
	repo := repository.New(server.NewRemote(t), openStore(t))
	ctx := t.Context()

	first := repository.Collect(repo.PopularMovies(ctx, 1))
	require.Equal(t, []internal.ResultKind{internal.ResultLoading, internal.ResultSuccess}, kinds(first))

	second := repo.PopularPage(ctx, 1)
	require.True(t, second.IsSuccess())
	require.Equal(t, first[1].Data, second.Data)
	require.Equal(t, 1, server.Count(http.MethodGet, "/movie/popular"))
}
