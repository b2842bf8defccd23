// Package viewstate turns repository streams into observable per-screen state.
package viewstate

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sourcegraph/conc"

	"github.com/drewfead/lovemovie/internal"
)

const DefaultPageCacheSize = 16

// Source is the subset of the repository the holder reads from.
type Source interface {
	PopularMovies(ctx context.Context, page int) <-chan internal.Result[internal.MoviesResponse]
	MovieDetail(ctx context.Context, movieID int) <-chan internal.Result[internal.MovieDetail]
	FavoriteMovies(ctx context.Context, page int) <-chan internal.Result[internal.MoviesResponse]
	ToggleFavorite(ctx context.Context, movieID int, movie internal.Movie) internal.Result[bool]
	IsFavorite(ctx context.Context, movieID int) (bool, error)
	FavoriteIDs(ctx context.Context) ([]int, error)
}

// Option configures a Holder.
type Option func(*Holder)

// WithPageCacheSize bounds how many loaded popular pages are kept for LoadPopular.
func WithPageCacheSize(n int) Option {
	return func(h *Holder) {
		if n > 0 {
			h.pageCacheSize = n
		}
	}
}

type loadKind uint8

const (
	loadPopular loadKind = iota
	loadDetail
	loadFavorites
	loadFavoriteIDs
)

type loadKey struct {
	kind loadKind
	id   int // page or movie id
}

type inflight struct {
	generation uint64
	cancel     context.CancelFunc
}

// Holder keeps the latest state per screen. A new load for a key supersedes the previous one:
// the old load is cancelled and anything it still delivers is dropped.
type Holder struct {
	src           Source
	pageCacheSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu          sync.Mutex
	generation  uint64
	loads       map[loadKey]inflight
	popular     map[int]internal.Result[internal.MoviesResponse]
	details     map[int]internal.Result[internal.MovieDetail]
	favorites   internal.Result[internal.MoviesResponse]
	favLoaded   bool
	favoriteIDs map[int]struct{}
	pending     map[int]int // toggles in flight per movie
	lastToggle  map[int]internal.Result[bool]
	pages       *lru.Cache[int, internal.MoviesResponse]

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// New builds a Holder and starts loading the local favorite ids, which counts as a load for
// Loading. Call Close when done.
func New(src Source, opts ...Option) (*Holder, error) {
	h := &Holder{
		src:           src,
		pageCacheSize: DefaultPageCacheSize,
		loads:         map[loadKey]inflight{},
		popular:       map[int]internal.Result[internal.MoviesResponse]{},
		details:       map[int]internal.Result[internal.MovieDetail]{},
		favoriteIDs:   map[int]struct{}{},
		pending:       map[int]int{},
		lastToggle:    map[int]internal.Result[bool]{},
		subs:          map[int]chan struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}
	pages, err := lru.New[int, internal.MoviesResponse](h.pageCacheSize)
	if err != nil {
		return nil, err
	}
	h.pages = pages
	h.ctx, h.cancel = context.WithCancel(context.Background())

	key := loadKey{kind: loadFavoriteIDs}
	ctx, gen := h.begin(key)
	h.wg.Go(func() {
		defer h.finish(key, gen)
		h.syncFavoriteIDs(ctx)
	})
	return h, nil
}

// Close cancels every load and waits for background work to stop.
func (h *Holder) Close() {
	h.cancel()
	h.wg.Wait()
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Subscribe returns a channel that receives a value after state changes. Notifications are
// coalesced: a slow reader sees one pending signal, not one per change.
func (h *Holder) Subscribe() (<-chan struct{}, func()) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan struct{}, 1)
	h.subs[id] = ch
	return ch, func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		if ch, ok := h.subs[id]; ok {
			close(ch)
			delete(h.subs, id)
		}
	}
}

func (h *Holder) notify() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// LoadPopular shows a page, from the page cache when it was loaded before.
func (h *Holder) LoadPopular(page int) {
	if cached, ok := h.pages.Get(page); ok {
		h.mu.Lock()
		h.popular[page] = internal.Success(cached)
		h.mu.Unlock()
		h.notify()
		return
	}
	h.RefreshPopular(page)
}

// RefreshPopular reloads a page through the repository, ignoring the page cache.
func (h *Holder) RefreshPopular(page int) {
	key := loadKey{kind: loadPopular, id: page}
	ctx, gen := h.begin(key)
	h.wg.Go(func() {
		defer h.finish(key, gen)
		drain(h, key, gen, h.src.PopularMovies(ctx, page), func(r internal.Result[internal.MoviesResponse]) {
			h.popular[page] = r
			if data, ok := r.Get(); ok {
				h.pages.Add(page, data)
			}
		})
	})
}

// LoadDetail loads a movie detail, superseding any earlier load of the same movie.
func (h *Holder) LoadDetail(movieID int) {
	key := loadKey{kind: loadDetail, id: movieID}
	ctx, gen := h.begin(key)
	h.wg.Go(func() {
		defer h.finish(key, gen)
		drain(h, key, gen, h.src.MovieDetail(ctx, movieID), func(r internal.Result[internal.MovieDetail]) {
			h.details[movieID] = r
		})
	})
}

// LoadFavorites loads a page of the account's favorites and then resyncs the favorite id set.
func (h *Holder) LoadFavorites(page int) {
	key := loadKey{kind: loadFavorites}
	ctx, gen := h.begin(key)
	h.wg.Go(func() {
		defer h.finish(key, gen)
		drain(h, key, gen, h.src.FavoriteMovies(ctx, page), func(r internal.Result[internal.MoviesResponse]) {
			h.favorites = r
			h.favLoaded = true
		})
		if ctx.Err() == nil {
			h.syncFavoriteIDs(ctx)
		}
	})
}

// ToggleFavorite flips the movie in the favorite set right away, then reconciles the set with
// the stored flag once the repository has finished, so a rolled back toggle shows as such.
func (h *Holder) ToggleFavorite(movie internal.Movie) {
	id := movie.ID
	h.mu.Lock()
	if _, ok := h.favoriteIDs[id]; ok {
		delete(h.favoriteIDs, id)
	} else {
		h.favoriteIDs[id] = struct{}{}
	}
	h.pending[id]++
	h.mu.Unlock()
	h.notify()

	h.wg.Go(func() {
		res := h.src.ToggleFavorite(h.ctx, id, movie)
		fav, err := h.src.IsFavorite(context.WithoutCancel(h.ctx), id)

		h.mu.Lock()
		h.pending[id]--
		if h.pending[id] == 0 {
			delete(h.pending, id)
			if err != nil {
				slog.Warn("viewstate: read favorite flag failed", "movie_id", id, "error", err)
			} else {
				h.setFavorite(id, fav)
			}
		}
		h.lastToggle[id] = res
		h.mu.Unlock()
		h.notify()
	})
}

// Popular returns the state of a page, false if it was never requested.
func (h *Holder) Popular(page int) (internal.Result[internal.MoviesResponse], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.popular[page]
	return copyPage(r), ok
}

// Detail returns the state of a movie detail, false if it was never requested.
func (h *Holder) Detail(movieID int) (internal.Result[internal.MovieDetail], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.details[movieID]
	return copyDetail(r), ok
}

// Favorites returns the favorites list state, false if it was never requested.
func (h *Holder) Favorites() (internal.Result[internal.MoviesResponse], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyPage(h.favorites), h.favLoaded
}

// FavoriteIDs returns a copy of the favorite set.
func (h *Holder) FavoriteIDs() map[int]struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.favoriteIDs)
}

func (h *Holder) IsFavorite(movieID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.favoriteIDs[movieID]
	return ok
}

// LastToggle returns the outcome of the most recent finished toggle of a movie.
func (h *Holder) LastToggle(movieID int) (internal.Result[bool], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.lastToggle[movieID]
	return r, ok
}

// Loading reports whether any load or toggle is still in flight.
func (h *Holder) Loading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.loads) > 0 || len(h.pending) > 0
}

// begin registers a new load for key, cancelling the one it replaces.
func (h *Holder) begin(key loadKey) (context.Context, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.loads[key]; ok {
		prev.cancel()
	}
	h.generation++
	ctx, cancel := context.WithCancel(h.ctx)
	h.loads[key] = inflight{generation: h.generation, cancel: cancel}
	return ctx, h.generation
}

// current must be called with mu held.
func (h *Holder) current(key loadKey, gen uint64) bool {
	l, ok := h.loads[key]
	return ok && l.generation == gen
}

func (h *Holder) finish(key loadKey, gen uint64) {
	h.mu.Lock()
	if h.current(key, gen) {
		h.loads[key].cancel()
		delete(h.loads, key)
	}
	h.mu.Unlock()
	h.notify()
}

// drain applies each result of a load while it is still the current one for its key.
func drain[T any](h *Holder, key loadKey, gen uint64, ch <-chan internal.Result[T], apply func(internal.Result[T])) {
	for r := range ch {
		h.mu.Lock()
		if !h.current(key, gen) {
			h.mu.Unlock()
			continue
		}
		apply(r)
		h.mu.Unlock()
		h.notify()
	}
}

func (h *Holder) syncFavoriteIDs(ctx context.Context) {
	ids, err := h.src.FavoriteIDs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("viewstate: load favorite ids failed", "error", err)
		}
		return
	}
	h.mu.Lock()
	next := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	// Movies with a toggle in flight keep their optimistic state.
	for id := range h.pending {
		if _, ok := h.favoriteIDs[id]; ok {
			next[id] = struct{}{}
		} else {
			delete(next, id)
		}
	}
	h.favoriteIDs = next
	h.mu.Unlock()
	h.notify()
}

// setFavorite must be called with mu held.
func (h *Holder) setFavorite(id int, fav bool) {
	if fav {
		h.favoriteIDs[id] = struct{}{}
	} else {
		delete(h.favoriteIDs, id)
	}
}

func copyPage(r internal.Result[internal.MoviesResponse]) internal.Result[internal.MoviesResponse] {
	r.Data.Results = slices.Clone(r.Data.Results)
	return r
}

func copyDetail(r internal.Result[internal.MovieDetail]) internal.Result[internal.MovieDetail] {
	r.Data.Genres = slices.Clone(r.Data.Genres)
	r.Data.ProductionCompanies = slices.Clone(r.Data.ProductionCompanies)
	if r.Data.Runtime != nil {
		runtime := *r.Data.Runtime
		r.Data.Runtime = &runtime
	}
	return r
}
