// Package catalogtest serves a small in-memory imitation of the TMDB v3 endpoints the catalog
// client uses, for tests across packages.
package catalogtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/drewfead/lovemovie/internal"
	"github.com/drewfead/lovemovie/internal/catalog"
	"github.com/drewfead/lovemovie/internal/netcheck"
)

const (
	AuthToken = "test-token"
	AccountID = 21643797
	pageSize  = 2

	InceptionID = 27205
)

// Server is a fake TMDB. The zero value is not usable; call New.
type Server struct {
	*httptest.Server
	BaseURL *url.URL

	mu        sync.Mutex
	movies    []internal.MovieDetail
	favorites []int
	failures  map[string]int // path suffix -> status code
	stalls    []string       // path suffixes that never answer
	requests  []string       // "METHOD /path"
	release   chan struct{}
}

// New starts a fake server seeded with Movies and registers its shutdown with t.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		movies:   Movies(),
		failures: map[string]int{},
		release:  make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	t.Cleanup(func() { close(s.release) })
	u, err := url.Parse(s.Server.URL)
	if err != nil {
		t.Fatalf("parse fake TMDB url: %v", err)
	}
	s.BaseURL = u
	return s
}

// NewRemote returns a catalog client pointed at s with full account credentials and an
// always-online connectivity check. Later options override earlier ones.
func (s *Server) NewRemote(t testing.TB, opts ...catalog.Option) *catalog.Client {
	t.Helper()
	base := []catalog.Option{
		catalog.WithAPIKey("test-key"),
		catalog.WithAuthToken(AuthToken),
		catalog.WithAccountID(AccountID),
		catalog.WithBaseURL(s.BaseURL),
		catalog.WithConnectivity(netcheck.Static(true)),
	}
	client, err := catalog.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new catalog client: %v", err)
	}
	return client
}

// Movies is the seed catalog in popularity order.
func Movies() []internal.MovieDetail {
	poster := "/inception.jpg"
	runtime := 148
	return []internal.MovieDetail{
		{
			Movie: internal.Movie{
				ID: InceptionID, Title: "Inception", OriginalTitle: "Inception",
				Overview: "A thief who steals corporate secrets through dream-sharing.",
				PosterPath: &poster, ReleaseDate: "2010-07-15", VoteAverage: 8.4,
				VoteCount: 35000, Popularity: 98.5, OriginalLanguage: "en",
			},
			Runtime: &runtime,
			Genres:  []internal.Genre{{ID: 28, Name: "Action"}, {ID: 878, Name: "Science Fiction"}},
			ProductionCompanies: []internal.ProductionCompany{
				{ID: 923, Name: "Legendary Pictures", OriginCountry: "US"},
			},
		},
		{
			Movie: internal.Movie{
				ID: 155, Title: "The Dark Knight", OriginalTitle: "The Dark Knight",
				ReleaseDate: "2008-07-16", VoteAverage: 8.5, VoteCount: 31000,
				Popularity: 80.1, OriginalLanguage: "en",
			},
		},
		{
			Movie: internal.Movie{
				ID: 129, Title: "Spirited Away", OriginalTitle: "千と千尋の神隠し",
				ReleaseDate: "2001-07-20", VoteAverage: 8.5, VoteCount: 16000,
				Popularity: 60.2, OriginalLanguage: "ja",
			},
		},
	}
}

// Fail makes every request whose path ends with suffix answer with status. Zero clears it.
func (s *Server) Fail(suffix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, suffix)
		return
	}
	s.failures[suffix] = status
}

// Stall makes every request whose path ends with suffix hang until the client gives up.
func (s *Server) Stall(suffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalls = append(s.stalls, suffix)
}

// Requests returns the "METHOD /path" of every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Count returns how many received requests had a path ending with suffix.
func (s *Server) Count(method, suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		m, path, _ := strings.Cut(r, " ")
		if m == method && strings.HasSuffix(path, suffix) {
			n++
		}
	}
	return n
}

// Favorites returns the server-side favorite ids in the order they were added.
func (s *Server) Favorites() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favorites)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	for suffix, status := range s.failures {
		if strings.HasSuffix(r.URL.Path, suffix) {
			s.mu.Unlock()
			writeStatus(w, status, "injected failure")
			return
		}
	}
	stalled := slices.ContainsFunc(s.stalls, func(suffix string) bool {
		return strings.HasSuffix(r.URL.Path, suffix)
	})
	s.mu.Unlock()
	if stalled {
		select {
		case <-r.Context().Done():
		case <-s.release:
		}
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/movie/popular"):
		s.popular(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/favorite/movies"):
		if !s.authorized(r) {
			writeStatus(w, http.StatusUnauthorized, "Invalid API key: You must be granted a valid key.")
			return
		}
		s.favoriteMovies(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/favorite"):
		if !s.authorized(r) {
			writeStatus(w, http.StatusUnauthorized, "Authentication failed.")
			return
		}
		s.markFavorite(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/movie/"):
		s.detail(w, path)
	default:
		writeStatus(w, http.StatusNotFound, "The resource you requested could not be found.")
	}
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+AuthToken
}

func (s *Server) popular(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	movies := make([]internal.Movie, 0, len(s.movies))
	for _, m := range s.movies {
		movies = append(movies, m.Movie)
	}
	s.mu.Unlock()
	writeJSON(w, paginate(movies, pageParam(r)))
}

func (s *Server) favoriteMovies(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	movies := make([]internal.Movie, 0, len(s.favorites))
	for _, id := range s.favorites {
		if d, ok := s.lookup(id); ok {
			movies = append(movies, d.Movie)
		}
	}
	s.mu.Unlock()
	writeJSON(w, paginate(movies, pageParam(r)))
}

func (s *Server) detail(w http.ResponseWriter, path string) {
	id, err := strconv.Atoi(path[strings.LastIndex(path, "/")+1:])
	if err != nil {
		writeStatus(w, http.StatusNotFound, "The resource you requested could not be found.")
		return
	}
	s.mu.Lock()
	d, ok := s.lookup(id)
	s.mu.Unlock()
	if !ok {
		writeStatus(w, http.StatusNotFound, "The resource you requested could not be found.")
		return
	}
	writeJSON(w, d)
}

func (s *Server) markFavorite(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	var body internal.FavoriteBody
	if err := json.Unmarshal(raw, &body); err != nil || body.MediaType != internal.MediaTypeMovie {
		writeStatus(w, http.StatusBadRequest, "invalid favorite body")
		return
	}
	s.mu.Lock()
	idx := slices.Index(s.favorites, body.MediaID)
	switch {
	case body.Favorite && idx < 0:
		s.favorites = append(s.favorites, body.MediaID)
	case !body.Favorite && idx >= 0:
		s.favorites = slices.Delete(s.favorites, idx, idx+1)
	}
	s.mu.Unlock()
	writeStatus(w, http.StatusCreated, "Success.")
}

// lookup must be called with mu held.
func (s *Server) lookup(id int) (internal.MovieDetail, bool) {
	for _, m := range s.movies {
		if m.ID == id {
			return m, true
		}
	}
	return internal.MovieDetail{}, false
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func paginate(movies []internal.Movie, page int) internal.MoviesResponse {
	total := len(movies)
	pages := (total + pageSize - 1) / pageSize
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	return internal.MoviesResponse{
		Page:         page,
		Results:      slices.Clone(movies[start:end]),
		TotalPages:   pages,
		TotalResults: total,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":        status < 400,
		"status_code":    status,
		"status_message": message,
	})
}
