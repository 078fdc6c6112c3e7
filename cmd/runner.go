package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexsync/internal/repositories"
	"github.com/desertthunder/plexsync/internal/retry"
	"github.com/desertthunder/plexsync/internal/services"
	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/desertthunder/plexsync/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const lockFile = "plexsync.lock"

// TraktClient is the tracker plus the authorization calls the auth commands need.
type TraktClient interface {
	services.Tracker
	AuthCodeURL(state string) string
	RedirectURI() string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Token() (*oauth2.Token, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Services are built from the loaded config on first use unless they were injected.
type Runner struct {
	config      *shared.Config
	configPath  string
	pinned      bool
	library     services.Library
	trakt       TraktClient
	engine      tasks.SyncEngine
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
	lookupEnv   func(string) (string, bool)
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Library    services.Library
	Trakt      TraktClient
	Engine     tasks.SyncEngine
	HTTPClient *http.Client // nil lets each service build its own client with a timeout
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	pinned := opts.Config != nil
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
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		pinned:      pinned,
		library:     opts.Library,
		trakt:       opts.Trakt,
		engine:      opts.Engine,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: shared.OpenBrowser,
		lookupEnv:   os.LookupEnv,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, librariesCommand, syncCommand, daemonCommand, historyCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// load reads the config file named by --config, applies environment overrides and sets the log
// level. A missing file leaves the defaults in place so `setup config` can create it.
func (r *Runner) load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if !r.pinned {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		}
		r.config.ApplyEnv(r.lookupEnv)
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// SetLogger replaces the logger, e.g. to send logs to a file while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) retrier() *retry.Retrier {
	return retry.New(retry.Policy{
		MaxRetries: r.config.Retry.MaxRetries,
		BaseDelay:  r.config.Retry.BaseDelay,
		MaxDelay:   r.config.Retry.MaxDelay,
	}, r.logger)
}

func (r *Runner) traktClient() (TraktClient, error) {
	if r.trakt != nil {
		return r.trakt, nil
	}

	cfg := r.config.Trakt
	svc, err := services.NewTraktService(services.TraktOpts{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		APIURL:       cfg.APIURL,
		HTTPClient:   r.httpClient,
		Store:        services.NewFileTokenStore(r.config.ResolvePath(cfg.TokenPath)),
		Retrier:      r.retrier(),
		Logger:       shared.WithLogger(r.logger, "service", "trakt"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Trakt service: %w", err)
	}
	r.trakt = svc
	return svc, nil
}

func (r *Runner) plexLibrary() (services.Library, error) {
	if r.library != nil {
		return r.library, nil
	}

	cfg := r.config.Plex
	opts := services.PlexOpts{
		BaseURL:          cfg.BaseURL,
		Token:            cfg.Token,
		ClientIdentifier: cfg.ClientIdentifier,
		PageSize:         cfg.PageSize,
		Timeout:          cfg.Timeout,
		Retrier:          r.retrier(),
		Logger:           shared.WithLogger(r.logger, "service", "plex"),
	}
	if r.httpClient != nil {
		opts.HTTPClient = r.httpClient
	}
	svc, err := services.NewPlexService(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Plex service: %w", err)
	}
	r.library = svc
	return svc, nil
}

func (r *Runner) syncEngine() (tasks.SyncEngine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	if r.library == nil || r.trakt == nil {
		if err := r.config.Validate(); err != nil {
			return nil, err
		}
	}

	library, err := r.plexLibrary()
	if err != nil {
		return nil, err
	}
	tracker, err := r.traktClient()
	if err != nil {
		return nil, err
	}

	r.engine = tasks.NewEngine(library, tracker, r.retrier(), r.logger)
	return r.engine, nil
}

// openHistory opens the database, applies pending migrations and returns the run history.
func (r *Runner) openHistory() (*sql.DB, *repositories.SyncRunRepository, error) {
	path := r.config.ResolvePath(r.config.Database.Path)
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, repositories.NewSyncRunRepository(db), nil
}

// interruptible returns a context cancelled by the first SIGINT or SIGTERM. The engine stops
// after the write in flight and the run is still recorded; a second signal exits at once.
func (r *Runner) interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	unhook := context.AfterFunc(ctx, func() {
		r.logger.Warn("interrupted, stopping after the current write")
		stop()
	})
	return ctx, func() {
		unhook()
		stop()
	}
}

func (r *Runner) acquireLock() (*shared.ProcessLock, error) {
	return shared.AcquireLock(r.config.ResolvePath(lockFile))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

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
