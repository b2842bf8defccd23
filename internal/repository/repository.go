// Package repository combines the remote catalog and the local store behind Result streams.
package repository

import (
	"context"
	"log/slog"

	"github.com/drewfead/lovemovie/internal"
	"github.com/drewfead/lovemovie/internal/store"
)

// Repository is shared by every consumer in a process. Construct one with New and pass it around.
type Repository struct {
	remote internal.Remote
	local  internal.LocalStore
	toggle *movieLocks
}

func New(remote internal.Remote, local internal.LocalStore) *Repository {
	return &Repository{
		remote: remote,
		local:  local,
		toggle: newMovieLocks(),
	}
}

// PopularMovies streams one page of popular movies: Loading, the cached page if fresh, then the
// network page. An error is only emitted when no cached page was.
func (r *Repository) PopularMovies(ctx context.Context, page int) <-chan internal.Result[internal.MoviesResponse] {
	key := store.PopularKey(page)
	return cachedRead(ctx, key,
		func(ctx context.Context) (internal.MoviesResponse, bool) {
			return loadCached[internal.MoviesResponse](ctx, r.local, key)
		},
		func(ctx context.Context) (internal.MoviesResponse, error) {
			res, err := r.remote.FetchPopular(ctx, page)
			if err != nil {
				return internal.MoviesResponse{}, err
			}
			return *res, nil
		},
		func(ctx context.Context, res internal.MoviesResponse) error {
			return store.StoreCached(ctx, r.local, key, res)
		},
	)
}

// MovieDetail streams a movie detail with the same protocol as PopularMovies.
func (r *Repository) MovieDetail(ctx context.Context, movieID int) <-chan internal.Result[internal.MovieDetail] {
	key := store.DetailKey(movieID)
	return cachedRead(ctx, key,
		func(ctx context.Context) (internal.MovieDetail, bool) {
			return loadCached[internal.MovieDetail](ctx, r.local, key)
		},
		func(ctx context.Context) (internal.MovieDetail, error) {
			res, err := r.remote.FetchDetail(ctx, movieID)
			if err != nil {
				return internal.MovieDetail{}, err
			}
			return *res, nil
		},
		func(ctx context.Context, res internal.MovieDetail) error {
			return store.StoreCached(ctx, r.local, key, res)
		},
	)
}

// FavoriteMovies streams the account's favorites. The locally stored snapshots stand in for the
// cache on the first page, and every fetched page is merged into the local favorites.
func (r *Repository) FavoriteMovies(ctx context.Context, page int) <-chan internal.Result[internal.MoviesResponse] {
	return cachedRead(ctx, "favorites",
		func(ctx context.Context) (internal.MoviesResponse, bool) {
			if page != 1 {
				return internal.MoviesResponse{}, false
			}
			movies, err := r.local.ListFavoriteSnapshots(ctx)
			if err != nil {
				slog.Warn("repository: list favorite snapshots failed", "error", err)
				return internal.MoviesResponse{}, false
			}
			if len(movies) == 0 {
				return internal.MoviesResponse{}, false
			}
			return internal.MoviesResponse{
				Page:         1,
				Results:      movies,
				TotalPages:   1,
				TotalResults: len(movies),
			}, true
		},
		func(ctx context.Context) (internal.MoviesResponse, error) {
			res, err := r.remote.FetchFavorites(ctx, page)
			if err != nil {
				return internal.MoviesResponse{}, err
			}
			return *res, nil
		},
		func(ctx context.Context, res internal.MoviesResponse) error {
			return r.local.MergeFavorites(ctx, res.Results)
		},
	)
}

// PopularPage returns a popular page from a fresh cache entry, or else from the network.
// Unlike PopularMovies it resolves once and never reports Loading.
func (r *Repository) PopularPage(ctx context.Context, page int) internal.Result[internal.MoviesResponse] {
	key := store.PopularKey(page)
	if cached, ok := loadCached[internal.MoviesResponse](ctx, r.local, key); ok {
		return internal.Success(cached)
	}
	res, err := r.remote.FetchPopular(ctx, page)
	if err != nil {
		return internal.Failure[internal.MoviesResponse](Classify(err))
	}
	if err := store.StoreCached(ctx, r.local, key, *res); err != nil {
		slog.Warn("repository: cache write failed", "key", key, "error", err)
	}
	return internal.Success(*res)
}

// ToggleFavorite flips the favorite flag locally, then on the account. When the account update
// fails the previous flag and snapshot are restored and the classified error returned.
// Toggles of the same movie are serialized.
func (r *Repository) ToggleFavorite(ctx context.Context, movieID int, movie internal.Movie) internal.Result[bool] {
	unlock := r.toggle.Lock(movieID)
	defer unlock()

	wasFavorite, err := r.local.GetFavorite(ctx, movieID)
	if err != nil {
		return internal.Failure[bool](Classify(err))
	}
	previous, ok, err := r.local.FavoriteSnapshot(ctx, movieID)
	if err != nil {
		return internal.Failure[bool](Classify(err))
	}
	if !ok {
		previous = movie
	}
	next := !wasFavorite

	if err := r.local.SetFavorite(ctx, movieID, next, movie); err != nil {
		return internal.Failure[bool](Classify(err))
	}
	if err := r.remote.SetFavorite(ctx, movieID, next); err != nil {
		// The rollback must land even if the caller has given up on ctx.
		if rbErr := r.local.SetFavorite(context.WithoutCancel(ctx), movieID, wasFavorite, previous); rbErr != nil {
			slog.Error("repository: favorite rollback failed",
				"movie_id", movieID, "favorite", wasFavorite, "error", rbErr)
		}
		slog.Info("repository: favorite toggle rolled back", "movie_id", movieID, "error", err)
		return internal.Failure[bool](Classify(err))
	}
	return internal.Success(next)
}

// IsFavorite reads the local flag only.
func (r *Repository) IsFavorite(ctx context.Context, movieID int) (bool, error) {
	return r.local.GetFavorite(ctx, movieID)
}

// FavoriteIDs returns every locally favorited movie id.
func (r *Repository) FavoriteIDs(ctx context.Context) ([]int, error) {
	return r.local.FavoriteIDs(ctx)
}

// loadCached treats a store failure like a miss; the network read that follows decides the outcome.
func loadCached[T any](ctx context.Context, local internal.LocalStore, key string) (T, bool) {
	value, ok, err := store.LoadCached[T](ctx, local, key)
	if err != nil {
		slog.Warn("repository: cache read failed", "key", key, "error", err)
		return value, false
	}
	return value, ok
}
