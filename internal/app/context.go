package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tickler/internal/config"
	"tickler/internal/db"
	"tickler/internal/domain"
	"tickler/internal/events"
	"tickler/internal/logger"
	"tickler/internal/metrics"
	"tickler/internal/notify"
	"tickler/internal/repo"
	"tickler/internal/scanner"
	"tickler/internal/store"
)

// Options configure an App. Slot and Platform default to the workspace
// database and the configured platform.
type Options struct {
	Workspace string
	Config    *config.Config
	Slot      store.Slot
	Platform  notify.Platform
	Prompt    notify.Prompter
	Metrics   *metrics.Metrics
	Now       func() time.Time
	Location  *time.Location
	// Watch runs the due-item scanner between Start and Shutdown.
	Watch bool
}

// App owns the session state: the task collection, its store, the
// notification permission and the scanner.
type App struct {
	Config  *config.Config
	Store   store.Store
	Repo    *repo.Repo
	Auth    *notify.Authorizer
	Scanner *scanner.Scanner
	Alerts  *events.Writer
	Metrics *metrics.Metrics

	conn  *sql.DB
	watch bool
	log   *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	unsubs  []func()
}

func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(opts.Workspace); err != nil {
			return nil, err
		}
	}
	a := &App{Config: cfg, Metrics: opts.Metrics, watch: opts.Watch, log: logger.With("component", "app")}

	slot := opts.Slot
	if slot == nil {
		conn, err := db.OpenMigrated(db.Config{Workspace: opts.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open workspace db: %w", err)
		}
		a.conn = conn
		slot = store.SQLiteSlot{DB: conn}
		a.Alerts = &events.Writer{DB: conn}
	}
	a.Store = store.New(slot, cfg.Storage.Key)

	a.Repo = repo.New()
	if opts.Now != nil {
		a.Repo.Now = opts.Now
	}

	platform := opts.Platform
	if platform == nil {
		platform = notify.FromConfig(cfg, opts.Prompt)
	}
	a.Auth = notify.NewAuthorizer(platform)

	a.Scanner = &scanner.Scanner{
		Repo:     a.Repo,
		Auth:     a.Auth,
		Interval: cfg.ScanInterval(),
		Location: opts.Location,
		Title:    cfg.Notifications.Title,
		Icon:     cfg.Notifications.Icon,
		Now:      opts.Now,
		Metrics:  opts.Metrics,
	}
	if a.Alerts != nil {
		a.Scanner.Recorder = a.Alerts
	}
	return a, nil
}

// Start loads the stored collection, then begins mirroring every mutation
// back to the store. With Watch set it also activates notifications and
// launches the scanner.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("app already started")
	}
	a.started = true

	a.Repo.Replace(a.Store.Load(ctx))
	a.Metrics.ObserveCounts(a.Repo.Counts())
	a.unsubs = append(a.unsubs, a.Repo.Subscribe(func(snapshot []domain.Task) {
		if err := a.Store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
			a.log.Error("save tasks failed", "error", err)
		}
		a.Metrics.ObserveCounts(repo.CountTasks(snapshot))
	}))

	if !a.watch {
		return nil
	}
	a.unsubs = append(a.unsubs, a.Auth.OnChange(a.Metrics.ObservePermission))
	a.Metrics.ObservePermission(a.Auth.State())

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.Auth.Activate(runCtx)
	go func() {
		defer close(a.done)
		if err := a.Scanner.Run(runCtx); err != nil {
			a.log.Error("scanner exited", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the scanner, detaches the store and closes the database.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		<-a.done
		a.cancel = nil
	}
	for i := len(a.unsubs) - 1; i >= 0; i-- {
		a.unsubs[i]()
	}
	a.unsubs = nil
	if a.conn != nil {
		err := a.conn.Close()
		a.conn = nil
		return err
	}
	return nil
}
