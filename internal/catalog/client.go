// Package catalog talks to the TMDB v3 API through github.com/cyruzin/golang-tmdb and maps
// its responses onto the internal movie types.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	tmdb "github.com/cyruzin/golang-tmdb"
	json "github.com/goccy/go-json"

	"github.com/drewfead/lovemovie/internal"
	"github.com/drewfead/lovemovie/internal/httputil"
	"github.com/drewfead/lovemovie/internal/netcheck"
)

const (
	DefaultLanguage = "zh-TW"
	DefaultTimeout  = 30 * time.Second

	// BaseURL is the v3 API root the TMDB library also uses.
	BaseURL = "https://api.themoviedb.org/3"

	favoritesSortOrder = "created_at.asc"
)

// Option applies configuration to a Client.
type Option func(*Client)

// WithAPIKey sets the v3 API key used for catalog reads.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithAuthToken sets the bearer token used for account endpoints. When no API key is set it is
// also used for catalog reads.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithAccountID sets the account whose favorites are read and written.
func WithAccountID(id int) Option {
	return func(c *Client) {
		c.accountID = id
	}
}

// WithSessionID sets an optional v3 session id for account writes.
func WithSessionID(id string) Option {
	return func(c *Client) {
		c.sessionID = id
	}
}

// WithLanguage sets the language query parameter. Empty keeps the default.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBaseURL redirects all requests to baseURL's scheme and host. Use in tests to point the
// client at an httptest server.
func WithBaseURL(baseURL *url.URL) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTransport sets the innermost RoundTripper. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithConnectivity sets the pre-flight check. Defaults to netcheck.Interfaces.
func WithConnectivity(checker netcheck.Checker) Option {
	return func(c *Client) {
		c.connectivity = checker
	}
}

// WithRequestObserver is called once per outgoing request.
func WithRequestObserver(fn func(httputil.RequestRecord)) Option {
	return func(c *Client) {
		c.observer = fn
	}
}

// Client implements internal.Remote.
type Client struct {
	apiKey       string
	authToken    string
	accountID    int
	sessionID    string
	language     string
	timeout      time.Duration
	baseURL      *url.URL
	transport    http.RoundTripper
	connectivity netcheck.Checker
	observer     func(httputil.RequestRecord)

	http    http.Client
	catalog *tmdb.Client
	account *tmdb.Client // nil without an auth token
}

var _ internal.Remote = (*Client)(nil)

// New builds a Client. At least one of an API key or an auth token is required.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		language: DefaultLanguage,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.connectivity == nil {
		c.connectivity = netcheck.Interfaces()
	}
	if c.apiKey == "" && c.authToken == "" {
		return nil, errors.New("catalog: an API key or auth token is required")
	}

	httpClient := c.httpClient()
	c.http = httpClient
	if c.authToken != "" {
		account, err := tmdb.InitV4(c.authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TMDB account client: %w", err)
		}
		account.SetClientConfig(httpClient)
		if c.sessionID != "" {
			if err := account.SetSessionID(c.sessionID); err != nil {
				return nil, fmt.Errorf("failed to set TMDB session: %w", err)
			}
		}
		c.account = account
		c.catalog = account
	}
	if c.apiKey != "" {
		catalog, err := tmdb.Init(c.apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TMDB client: %w", err)
		}
		catalog.SetClientConfig(httpClient)
		c.catalog = catalog
	}
	return c, nil
}

// httpClient assembles status -> audit -> rewrite -> base. The audit layer sits below
// StatusTransport so its record still carries the real status code.
func (c *Client) httpClient() http.Client {
	rt := c.transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if c.baseURL != nil {
		rt = &httputil.RewriteTransport{Base: rt, Target: c.baseURL}
	}
	return http.Client{
		Timeout: c.timeout,
		Transport: &httputil.StatusTransport{
			Base: &httputil.AuditTransport{Base: rt, OnRequest: c.observer},
		},
	}
}

// FetchPopular returns one page of movie/popular.
func (c *Client) FetchPopular(ctx context.Context, page int) (*internal.MoviesResponse, error) {
	if err := c.preflight(ctx); err != nil {
		return nil, err
	}
	res, err := call(ctx, func() (*tmdb.MoviePopular, error) {
		return c.catalog.GetMoviePopular(c.options(page))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch popular page %d: %w", page,redact(err))
	}
	out := &internal.MoviesResponse{}
	if err := recode(res, out); err != nil {
		return nil, fmt.Errorf("decode popular page %d: %w", page, err)
	}
	normalizeMovies(out.Results)
	return out, nil
}

// FetchDetail returns movie/{id}. A missing movie surfaces as a 404 *httputil.StatusError.
func (c *Client) FetchDetail(ctx context.Context, movieID int) (*internal.MovieDetail, error) {
	if err := c.preflight(ctx); err != nil {
		return nil, err
	}
	res, err := call(ctx, func() (*tmdb.MovieDetails, error) {
		return c.catalog.GetMovieDetails(movieID, c.options(0))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch movie %d: %w", movieID,redact(err))
	}
	out := &internal.MovieDetail{}
	if err := recode(res, out); err != nil {
		return nil, fmt.Errorf("decode movie %d: %w", movieID, err)
	}
	normalizeDetail(out)
	return out, nil
}

// FetchFavorites returns one page of the account's favorite movies, oldest first.
func (c *Client) FetchFavorites(ctx context.Context, page int) (*internal.MoviesResponse, error) {
	if err := c.preflight(ctx); err != nil {
		return nil, err
	}
	if err := c.requireAccount(http.MethodGet, "favorite/movies"); err != nil {
		return nil, err
	}
	opts := c.options(page)
	opts["sort_by"] = favoritesSortOrder
	res, err := call(ctx, func() (*tmdb.AccountFavoriteMovies, error) {
		return c.account.GetFavoriteMovies(c.accountID, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch favorites page %d: %w", page,redact(err))
	}
	out := &internal.MoviesResponse{}
	if err := recode(res, out); err != nil {
		return nil, fmt.Errorf("decode favorites page %d: %w", page, err)
	}
	normalizeMovies(out.Results)
	return out, nil
}

// SetFavorite marks or unmarks movieID as a favorite on the account. The POST goes through the
// client's own http.Client: the TMDB library flattens write errors to strings, which would lose
// the *httputil.StatusError and timeout types.
func (c *Client) SetFavorite(ctx context.Context, movieID int, favorite bool) error {
	if err := c.preflight(ctx); err != nil {
		return err
	}
	if err := c.requireAccount(http.MethodPost, "favorite"); err != nil {
		return err
	}
	payload, err := json.Marshal(internal.FavoriteBody{
		MediaType: internal.MediaTypeMovie,
		MediaID:   movieID,
		Favorite:  favorite,
	})
	if err != nil {
		return fmt.Errorf("encode favorite body: %w", err)
	}

	query := url.Values{}
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}
	if c.sessionID != "" {
		query.Set("session_id", c.sessionID)
	}
	endpoint := BaseURL + "/account/" + strconv.Itoa(c.accountID) + "/favorite"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("set favorite %d=%t: %w", movieID, favorite, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("set favorite %d=%t: %w", movieID, favorite, redact(err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) preflight(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.connectivity.Available(ctx) {
		return netcheck.ErrNoConnectivity
	}
	return nil
}

// requireAccount fails like the server would for an unauthenticated account call.
func (c *Client) requireAccount(method, path string) error {
	if c.account != nil && c.accountID != 0 {
		return nil
	}
	return &httputil.StatusError{
		StatusCode: http.StatusUnauthorized,
		Method:     method,
		URL:        "account/" + strconv.Itoa(c.accountID) + "/" + path,
		Body:       "no account credentials configured",
	}
}

func (c *Client) options(page int) map[string]string {
	opts := map[string]string{"language": c.language}
	if page > 0 {
		opts["page"] = strconv.Itoa(page)
	}
	return opts
}

// call runs fn, which cannot be cancelled, and stops waiting for it when ctx is done.
// The abandoned request still ends at the http.Client timeout.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case o := <-done:
		return o.value, o.err
	}
}

// redact masks credentials in the URL of a *url.Error, which http.Client builds from the raw
// request URL.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = httputil.RedactURL(urlErr.URL)
	}
	return err
}

// recode converts between structurally equivalent types through their JSON form; the TMDB
// library structs and internal types share the wire field names.
func recode(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func normalizeMovies(movies []internal.Movie) {
	for i := range movies {
		normalizeMovie(&movies[i])
	}
}

func normalizeMovie(m *internal.Movie) {
	m.PosterPath = nonEmpty(m.PosterPath)
	m.BackdropPath = nonEmpty(m.BackdropPath)
}

func normalizeDetail(d *internal.MovieDetail) {
	normalizeMovie(&d.Movie)
	if d.Runtime != nil && *d.Runtime == 0 {
		d.Runtime = nil
	}
	for i := range d.ProductionCompanies {
		d.ProductionCompanies[i].LogoPath = nonEmpty(d.ProductionCompanies[i].LogoPath)
	}
}

// nonEmpty maps the library's "" for a missing path back to nil.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
