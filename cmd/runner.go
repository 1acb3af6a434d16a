package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/beatq/internal/matchcache"
	"github.com/desertthunder/beatq/internal/matcher"
	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/repositories"
	"github.com/desertthunder/beatq/internal/services"
	"github.com/desertthunder/beatq/internal/shared"
	"github.com/desertthunder/beatq/internal/storage"
	"github.com/desertthunder/beatq/internal/streamcache"
	"github.com/desertthunder/beatq/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Pipeline dependencies are built on first use by [Runner.open], so commands like setup work without a database.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer

	db         *sql.DB
	store      models.Store
	resolver   services.Resolver
	extractors services.Extractors
	sink       storage.Sink
	fetcher    tasks.Fetcher
	cache      *matchcache.Cache
	matcher    *matcher.Matcher
	orch       *tasks.Orchestrator
	updates    chan tasks.ProgressUpdate
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Store, Resolver, Extractors, Sink and Fetcher replace the configured implementations when set.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Store      models.Store
	Resolver   services.Resolver
	Extractors services.Extractors
	Sink       storage.Sink
	Fetcher    tasks.Fetcher
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
		resolver:   opts.Resolver,
		extractors: opts.Extractors,
		sink:       opts.Sink,
		fetcher:    opts.Fetcher,
	}
}

// SetLogger replaces the logger used by the runner and everything it builds afterwards.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, importCommand, runCommand, batchCommand, cacheCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// load reads the config file named by --config, keeping defaults when it does not exist.
func (r *Runner) load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config = config
			if config.Logging.File != "" {
				r.logger = shared.NewConfiguredLogger(config.Logging)
			}
			shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.Logging.Level))
		} else {
			r.logger.Debug("config file not found, using defaults", "path", path)
		}
	}

	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// open builds the pipeline: database, match cache, matcher, stream cache, sink and orchestrator.
func (r *Runner) open(ctx context.Context) error {
	if r.orch != nil {
		return nil
	}
	cfg := r.config

	if r.store == nil {
		db, err := shared.NewDatabase(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		r.db = db
		r.store = repositories.NewSQLStore(db)
	}

	if r.resolver == nil {
		r.resolver = services.NewYTDLPResolver(cfg.Downloads.Format)
	}
	if r.extractors == nil {
		r.extractors = r.newExtractors(ctx)
	}
	if r.sink == nil {
		sink, err := storage.NewSink(cfg.Storage)
		if err != nil {
			return err
		}
		r.sink = sink
	}
	if r.fetcher == nil {
		r.fetcher = tasks.NewHTTPFetcher(nil)
	}

	r.cache = matchcache.New(r.store, cfg.Matcher.CacheTimeout)
	r.matcher = matcher.New(r.resolver, r.cache, matcher.Options{
		Version:        cfg.Matcher.Version,
		SearchLimit:    cfg.Matcher.SearchLimit,
		CacheThreshold: cfg.Matcher.CacheThreshold,
		RateLimit:      cfg.Matcher.RateLimit,
	}, r.logger)
	streams := streamcache.New(r.resolver, streamcache.Options{
		TTL:  cfg.Downloads.StreamTTL,
		Wait: cfg.Downloads.PrefetchWait,
	}, r.logger)

	r.updates = make(chan tasks.ProgressUpdate, 256)
	r.orch = tasks.New(tasks.Deps{
		Store:   r.store,
		Matcher: r.matcher,
		Streams: streams,
		Fetcher: r.fetcher,
		Sink:    r.sink,
		Purger:  r.cache,
	}, tasks.Options{
		MatchWorkers:      cfg.Matcher.Workers,
		DownloadWorkers:   cfg.Downloads.Workers,
		TrustThreshold:    cfg.Matcher.TrustThreshold,
		ManualReview:      cfg.Matcher.ManualReview,
		MaxRetries:        cfg.Downloads.MaxRetries,
		Backoff:           cfg.Downloads.Backoff,
		PollInterval:      cfg.Downloads.PollInterval,
		NegativeRetention: cfg.Matcher.NegativeRetention,
		PurgeInterval:     cfg.Matcher.PurgeInterval,
		Updates:           r.updates,
	}, r.logger)
	return nil
}

// newExtractors registers the YouTube extractor and, when credentials are configured, the Spotify one.
func (r *Runner) newExtractors(ctx context.Context) services.Extractors {
	extractors := []services.Extractor{services.NewYouTubeExtractor()}

	creds := r.config.Credentials.Spotify
	if creds.ClientID != "" && creds.ClientSecret != "" && !strings.HasPrefix(creds.ClientID, "your_") {
		spotify, err := services.NewSpotifyExtractor(ctx, creds)
		if err != nil {
			r.logger.Warn("spotify extraction disabled", "error", err)
		} else {
			extractors = append(extractors, spotify)
		}
	}
	return services.NewExtractors(extractors...)
}

func (r *Runner) close() {
	if r.db != nil {
		r.db.Close()
		r.db = nil
		r.store = nil
		r.orch = nil
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
