package root

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/drewfead/lovemovie/internal"
	"github.com/drewfead/lovemovie/internal/viewstate"
)

func pageFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "page",
		Usage: "page number, starting at 1",
		Value: 1,
	}
}

func popularCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "popular",
		Usage: "list popular movies, printing the cached page before the network one",
		Flags: []cli.Flag{pageFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			page, err := pageArg(cmd)
			if err != nil {
				return err
			}
			repo, err := s.repository()
			if err != nil {
				return err
			}
			return emitStream(ctx, s, viewList, func(ctx context.Context) <-chan internal.Result[internal.MoviesResponse] {
				return repo.PopularMovies(ctx, page)
			})
		},
	}
}

func detailCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:      "detail",
		Usage:     "show one movie",
		ArgsUsage: "MOVIE_ID",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := movieIDArg(cmd)
			if err != nil {
				return err
			}
			repo, err := s.repository()
			if err != nil {
				return err
			}
			return emitStream(ctx, s, viewDetail, func(ctx context.Context) <-chan internal.Result[internal.MovieDetail] {
				return repo.MovieDetail(ctx, id)
			})
		},
	}
}

func favoritesCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "favorites",
		Usage: "list the account's favorite movies, local snapshots first",
		Flags: []cli.Flag{pageFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			page, err := pageArg(cmd)
			if err != nil {
				return err
			}
			repo, err := s.repository()
			if err != nil {
				return err
			}
			return emitStream(ctx, s, viewList, func(ctx context.Context) <-chan internal.Result[internal.MoviesResponse] {
				return repo.FavoriteMovies(ctx, page)
			})
		},
	}
}

func toggleCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:      "toggle",
		Usage:     "flip a movie's favorite flag locally and on the account, rolling back on failure",
		ArgsUsage: "MOVIE_ID",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := movieIDArg(cmd)
			if err != nil {
				return err
			}
			repo, err := s.repository()
			if err != nil {
				return err
			}

			movie, err := s.toggleSnapshot(ctx, id)
			if err != nil {
				return err
			}

			res := repo.ToggleFavorite(ctx, id, movie)
			if err := s.format.Format(s.out, viewToggle, res); err != nil {
				return err
			}
			if res.IsError() {
				return res.Err
			}
			return nil
		},
	}
}

func isFavoriteCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:      "is-favorite",
		Usage:     "report the local favorite flag of a movie",
		ArgsUsage: "MOVIE_ID",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := movieIDArg(cmd)
			if err != nil {
				return err
			}
			fav, err := s.store.GetFavorite(ctx, id)
			if err != nil {
				return fmt.Errorf("read favorite: %w", err)
			}
			return s.format.Format(s.out, viewFavorite, favoriteState{MovieID: id, Favorite: fav})
		},
	}
}

func browseCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "load popular pages through the view state and print them with favorite marks",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "pages",
				Usage: "how many popular pages to load",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			pages := cmd.Int("pages")
			if pages < 1 {
				return fmt.Errorf("invalid --pages %d (must be at least 1)", pages)
			}
			repo, err := s.repository()
			if err != nil {
				return err
			}
			holder, err := viewstate.New(repo)
			if err != nil {
				return err
			}
			defer holder.Close()

			updates, unsubscribe := holder.Subscribe()
			defer unsubscribe()

			for page := 1; page <= pages; page++ {
				holder.LoadPopular(page)
			}
			if err := settle(ctx, holder, updates); err != nil {
				return err
			}

			var failed *internal.Error
			for page := 1; page <= pages; page++ {
				r, _ := holder.Popular(page)
				switch r.Kind {
				case internal.ResultSuccess:
					for _, m := range r.Data.Results {
						row := browseRow{Page: page, Movie: m, Favorite: holder.IsFavorite(m.ID)}
						if err := s.format.Format(s.out, viewBrowse, row); err != nil {
							return err
						}
					}
				case internal.ResultError:
					if err := s.format.Format(s.out, viewList, r); err != nil {
						return err
					}
					failed = r.Err
				case internal.ResultLoading:
					return fmt.Errorf("page %d did not settle", page)
				}
			}
			if failed != nil {
				return failed
			}
			return nil
		},
	}
}

// toggleSnapshot picks the movie stored with a favorite: the freshest detail available, else
// the snapshot already stored for it. Without either the toggle is refused.
func (s *session) toggleSnapshot(ctx context.Context, id int) (internal.Movie, error) {
	repo, err := s.repository()
	if err != nil {
		return internal.Movie{}, err
	}
	var (
		movie   internal.Movie
		found   bool
		lastErr *internal.Error
	)
	for r := range repo.MovieDetail(ctx, id) {
		if d, ok := r.Get(); ok {
			movie, found = d.ToMovie(), true
		} else if r.IsError() {
			lastErr = r.Err
		}
	}
	if found {
		return movie, nil
	}
	if err := ctx.Err(); err != nil {
		return internal.Movie{}, err
	}

	stored, ok, err := s.store.FavoriteSnapshot(ctx, id)
	if err != nil {
		return internal.Movie{}, fmt.Errorf("read favorite snapshot: %w", err)
	}
	if ok && stored.Title != "" {
		slog.Debug("toggling with the stored snapshot", "movie_id", id)
		return stored, nil
	}
	if lastErr != nil {
		return internal.Movie{}, fmt.Errorf("cannot toggle movie %d without its details: %w", id, lastErr)
	}
	return internal.Movie{}, fmt.Errorf("cannot toggle movie %d without its details", id)
}

// emitStream prints every state of a stream. It fails with the last state's error, if any.
func emitStream[T any](ctx context.Context, s *session, view string, open func(context.Context) <-chan internal.Result[T]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var last internal.Result[T]
	for r := range open(ctx) {
		if err := s.format.Format(s.out, view, r); err != nil {
			return err
		}
		last = r
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if last.IsError() {
		return last.Err
	}
	return nil
}

// settle waits until the holder has no load in flight.
func settle(ctx context.Context, h *viewstate.Holder, updates <-chan struct{}) error {
	for h.Loading() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return errors.New("view state closed")
			}
		}
	}
	return nil
}

func pageArg(cmd *cli.Command) (int, error) {
	page := cmd.Int("page")
	if page < 1 {
		return 0, fmt.Errorf("invalid --page %d (must be at least 1)", page)
	}
	return page, nil
}

func movieIDArg(cmd *cli.Command) (int, error) {
	if cmd.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one MOVIE_ID argument, got %d", cmd.NArg())
	}
	raw := cmd.Args().First()
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid movie id %q", raw)
	}
	return id, nil
}
