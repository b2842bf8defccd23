package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/drewfead/lovemovie/internal"
	"github.com/drewfead/lovemovie/internal/catalog"
	"github.com/drewfead/lovemovie/internal/config"
	"github.com/drewfead/lovemovie/internal/logging"
	"github.com/drewfead/lovemovie/internal/netcheck"
	"github.com/drewfead/lovemovie/internal/repository"
	"github.com/drewfead/lovemovie/internal/store"
)

// syncWriter wraps an *os.File and calls Sync after each Write so streamed results
// appear as soon as they are emitted.
type syncWriter struct {
	f *os.File
}

func (w *syncWriter) Write(p []byte) (n int, err error) {
	n, err = w.f.Write(p)
	if err != nil {
		return n, err
	}
	_ = w.f.Sync()
	return n, nil
}

// RootOption configures the root command (e.g. for tests).
type RootOption func(*rootConfig)

type rootConfig struct {
	remote       internal.Remote
	connectivity netcheck.Checker
	fs           afero.Fs
	env          func(string) (string, bool)
	stdout       io.Writer
}

// WithRemote replaces the TMDB client built from config. Use in tests to point the CLI at a
// fake catalog or a mock.
func WithRemote(remote internal.Remote) RootOption {
	return func(c *rootConfig) {
		c.remote = remote
	}
}

// WithConnectivity sets the pre-flight check of the TMDB client built from config.
func WithConnectivity(checker netcheck.Checker) RootOption {
	return func(c *rootConfig) {
		c.connectivity = checker
	}
}

// WithConfigFs reads config and .env files from fs.
func WithConfigFs(fs afero.Fs) RootOption {
	return func(c *rootConfig) {
		c.fs = fs
	}
}

// WithEnv replaces the process environment for config lookups.
func WithEnv(lookup func(string) (string, bool)) RootOption {
	return func(c *rootConfig) {
		c.env = lookup
	}
}

// WithStdout sets where results go when --output is not given.
func WithStdout(w io.Writer) RootOption {
	return func(c *rootConfig) {
		c.stdout = w
	}
}

// session holds what the root Before hook sets up for the subcommand that runs.
type session struct {
	opts   *rootConfig
	conf   config.Config
	store  *store.Store
	repo   *repository.Repository
	out    io.Writer
	format outputFormat

	closers []io.Closer
}

func Root(ctx context.Context, opts ...RootOption) (*cli.Command, error) {
	cfg := &rootConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}
	if cfg.env == nil {
		cfg.env = os.LookupEnv
	}
	if cfg.stdout == nil {
		cfg.stdout = &syncWriter{f: os.Stdout}
	}

	s := &session{opts: cfg}

	rootCmd := &cli.Command{
		Name:  "lovemovie",
		Usage: "browse popular movies from TMDB and keep a favorites list, cached locally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the TOML config file",
				Value:   config.DefaultConfigPath,
				Sources: cli.EnvVars("LOVEMOVIE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "path to the SQLite database (overrides store.path)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides log.level)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write logs to a rotated file instead of stderr",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format: dense or json",
				Value:   denseFormatName,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "write results to a file instead of stdout",
			},
		},
		Before: s.before,
		After:  s.after,
		Commands: []*cli.Command{
			popularCommand(s),
			detailCommand(s),
			favoritesCommand(s),
			toggleCommand(s),
			isFavoriteCommand(s),
			browseCommand(s),
		},
	}
	return rootCmd, nil
}

func (s *session) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := s.setup(ctx, cmd); err != nil {
		_ = s.after(ctx, cmd)
		return ctx, err
	}
	return ctx, nil
}

func (s *session) setup(ctx context.Context, cmd *cli.Command) error {
	conf, err := config.Load(cmd.String("config"),
		config.WithFs(s.opts.fs),
		config.WithEnv(s.opts.env),
	)
	if err != nil {
		return err
	}
	if cmd.IsSet("db") {
		conf.Store.Path = cmd.String("db")
	}
	if cmd.IsSet("log-level") {
		conf.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-file") {
		conf.Log.File = cmd.String("log-file")
	}
	if err := conf.ValidateLocal(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	s.conf = conf

	logger, logCloser, err := logging.New(conf.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	s.closers = append(s.closers, logCloser)

	format, err := formatByName(cmd.String("format"))
	if err != nil {
		return err
	}
	s.format = format

	s.out = s.opts.stdout
	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		s.out = f
		s.closers = append(s.closers, f)
	}

	st, err := store.Open(ctx, conf.Store.Path,
		store.WithTTL(conf.Store.CacheTTL),
		store.WithMemoryEntries(conf.Store.MemoryEntries),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st
	s.closers = append(s.closers, st)
	slog.Debug("store opened", "path", conf.Store.Path, "cache_ttl", conf.Store.CacheTTL)
	return nil
}

func (s *session) after(context.Context, *cli.Command) error {
	var errs []error
	// Close in reverse so the logger outlives the store.
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// repository builds the Repository on first use. Commands that only read local state never
// need TMDB credentials.
func (s *session) repository() (*repository.Repository, error) {
	if s.repo != nil {
		return s.repo, nil
	}
	remote := s.opts.remote
	if remote == nil {
		client, err := s.newClient()
		if err != nil {
			return nil, err
		}
		remote = client
	}
	s.repo = repository.New(remote, s.store)
	return s.repo, nil
}

func (s *session) newClient() (*catalog.Client, error) {
	if err := s.conf.ValidateRemote(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	tmdbConf := s.conf.TMDB
	opts := []catalog.Option{
		catalog.WithAPIKey(tmdbConf.APIKey),
		catalog.WithAuthToken(tmdbConf.AuthToken),
		catalog.WithAccountID(tmdbConf.AccountID),
		catalog.WithSessionID(tmdbConf.SessionID),
		catalog.WithLanguage(tmdbConf.Language),
		catalog.WithTimeout(tmdbConf.Timeout),
	}
	if tmdbConf.BaseURL != "" {
		baseURL, err := url.Parse(tmdbConf.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("tmdb.base_url: %w", err)
		}
		opts = append(opts, catalog.WithBaseURL(baseURL))
	}
	if s.opts.connectivity != nil {
		opts = append(opts, catalog.WithConnectivity(s.opts.connectivity))
	}
	client, err := catalog.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("tmdb client: %w", err)
	}
	return client, nil
}
