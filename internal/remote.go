package internal

import "context"

//go:generate go tool mockgen -destination=mocks/mock_remote.go -package=mocks . Remote

// Remote is the typed view of the catalog API. Implementations make a single attempt per call.
type Remote interface {
	FetchPopular(ctx context.Context, page int) (*MoviesResponse, error)
	FetchDetail(ctx context.Context, movieID int) (*MovieDetail, error)
	// FetchFavorites requires an authenticated session.
	FetchFavorites(ctx context.Context, page int) (*MoviesResponse, error)
	SetFavorite(ctx context.Context, movieID int, favorite bool) error
}
