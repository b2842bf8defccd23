package internal

import "context"

// LocalStore persists favorite flags with their movie snapshots, and time-stamped response caches.
type LocalStore interface {
	GetFavorite(ctx context.Context, movieID int) (bool, error)
	// FavoriteSnapshot returns the stored snapshot of a favorite; false when movieID is not one.
	FavoriteSnapshot(ctx context.Context, movieID int) (Movie, bool, error)
	// SetFavorite writes the flag and the snapshot together; the snapshot is dropped when favorite is false.
	SetFavorite(ctx context.Context, movieID int, favorite bool, snapshot Movie) error
	ListFavoriteSnapshots(ctx context.Context) ([]Movie, error)
	// MergeFavorites marks every movie as favorite, snapshot included, in one commit.
	MergeFavorites(ctx context.Context, movies []Movie) error
	FavoriteIDs(ctx context.Context) ([]int, error)

	// GetCache returns the payload stored under key if it is younger than the store's TTL.
	GetCache(ctx context.Context, key string) ([]byte, bool, error)
	PutCache(ctx context.Context, key string, payload []byte) error
}
