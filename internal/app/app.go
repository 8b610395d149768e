package app

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/integrations/misttrack"
	"github.com/Dan9191/bank-batch/internal/integrations/trongrid"
	"github.com/Dan9191/bank-batch/internal/logging"
	"github.com/Dan9191/bank-batch/internal/notify"
	"github.com/Dan9191/bank-batch/internal/ratelimit"
	"github.com/Dan9191/bank-batch/internal/repository"
	"github.com/Dan9191/bank-batch/internal/retry"
	"github.com/Dan9191/bank-batch/internal/service"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ParseFlags reads the selectors shared by every command: -m environment,
// -n app name and -t test date.
func ParseFlags(name string, args []string) (config.Options, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var opts config.Options
	fs.StringVar(&opts.Env, "m", config.EnvDev, "environment: dev|stg|stg-aws|prd|prd-aws")
	fs.StringVar(&opts.AppName, "n", name, "app name stamped on audit columns")
	fs.StringVar(&opts.TestDate, "t", "", "base date override YYYY/MM/DD (dev only)")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs.Args(), nil
}

// App holds the wired dependencies of one process.
type App struct {
	Config  *config.Config
	Log     *logrus.Logger
	Service *service.Service
	Wallets *trongrid.Client
	Risks   *misttrack.Client

	db    *sql.DB
	redis *redis.Client
}

// Build loads configuration and wires storage, vendor clients and notifiers.
func Build(opts config.Options) (*App, error) {
	return build(opts, true)
}

// BuildClients wires only the vendor clients, for tools that never touch the
// database.
func BuildClients(opts config.Options) (*App, error) {
	return build(opts, false)
}

func build(opts config.Options, withStore bool) (*App, error) {
	cfg, err := config.NewConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.IsDev())

	cal, err := clock.NewCalendar(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: logger}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(redisOpts)
	} else {
		logger.Warn("REDIS_URL not set, vendor calls are only spaced locally")
	}

	policy := retry.Default(logger)
	policy.MaxRetries = cfg.RetryMax
	if cfg.RetryInitialDelay > 0 {
		policy.InitialDelay = cfg.RetryInitialDelay
	}

	limiter := ratelimit.Chain{ratelimit.NewInterval(cfg.VendorMinInterval)}
	if a.redis != nil {
		limiter = append(limiter, ratelimit.NewWindow(a.redis, "", cfg.VendorCallsPerMin, time.Minute))
	}

	a.Wallets = trongrid.NewClient(cfg, policy, limiter, logger)
	a.Risks = misttrack.NewClient(cfg, policy, limiter, logger)

	if !withStore {
		return a, nil
	}

	a.db, err = sql.Open("postgres", cfg.DBConn)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := a.db.Ping(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	notifier, err := notify.FromConfig(cfg, logger, policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	repo := repository.NewRepository(a.db, cal, cfg.ActorID, cfg.Process("batch"))
	a.Service, err = service.NewService(service.RepositoryStore{Repo: repo}, cal, logger, cfg, service.Deps{
		Wallets:  a.Wallets,
		Risks:    a.Risks,
		Notifier: notifier,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
