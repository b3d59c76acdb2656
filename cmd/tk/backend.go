package main

import (
	"context"
	"os"

	"github.com/spf13/viper"

	"tickler/internal/app"
	"tickler/internal/domain"
	"tickler/internal/repo"
	ticklersdk "tickler/sdk/go"
)

// backend is what the one-shot commands need. The local backend owns the
// workspace store for the duration of a command; the remote one defers to
// a running 'tk serve'.
type backend interface {
	List(ctx context.Context, f domain.Filter) ([]domain.Task, domain.Counts, error)
	Add(ctx context.Context, text, dueDate, dueTime string) (domain.Task, error)
	Toggle(ctx context.Context, id string) (domain.Task, error)
	Edit(ctx context.Context, id string, u domain.TaskUpdate) (domain.Task, error)
	Delete(ctx context.Context, id string) error
	ClearCompleted(ctx context.Context) (int, error)
	Alerts(ctx context.Context, n int) ([]domain.AlertRecord, error)
}

func withBackend(ctx context.Context, fn func(context.Context, backend) error) error {
	if url := viper.GetString("server"); url != "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c := ticklersdk.New(url)
		if cfg.Server.BasePath != "" {
			c.BasePath = cfg.Server.BasePath
		}
		c.BearerToken = os.Getenv("TICKLER_TOKEN")
		return fn(ctx, remote{c: c})
	}
	return withApp(ctx, app.Options{}, func(ctx context.Context, a *app.App) error {
		return fn(ctx, local{a: a})
	})
}

// withApp starts an App on the workspace store and shuts it down after fn.
func withApp(ctx context.Context, opts app.Options, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.Workspace = viper.GetString("workspace")
	opts.Config = cfg
	a, err := app.New(opts)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown()
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

type local struct{ a *app.App }

func (l local) List(_ context.Context, f domain.Filter) ([]domain.Task, domain.Counts, error) {
	snap := l.a.Repo.Snapshot()
	return repo.FilterTasks(snap, f), repo.CountTasks(snap), nil
}

func (l local) Add(_ context.Context, text, dueDate, dueTime string) (domain.Task, error) {
	return l.a.Repo.Create(text, dueDate, dueTime)
}

func (l local) Toggle(_ context.Context, id string) (domain.Task, error) {
	return l.a.Repo.Toggle(id)
}

func (l local) Edit(_ context.Context, id string, u domain.TaskUpdate) (domain.Task, error) {
	return l.a.Repo.Edit(id, u)
}

func (l local) Delete(_ context.Context, id string) error {
	return l.a.Repo.Delete(id)
}

func (l local) ClearCompleted(context.Context) (int, error) {
	return l.a.Repo.ClearCompleted(), nil
}

func (l local) Alerts(ctx context.Context, n int) ([]domain.AlertRecord, error) {
	if l.a.Alerts == nil {
		return []domain.AlertRecord{}, nil
	}
	return l.a.Alerts.Latest(ctx, n, "")
}

type remote struct{ c *ticklersdk.Client }

func (r remote) List(ctx context.Context, f domain.Filter) ([]domain.Task, domain.Counts, error) {
	res, err := r.c.ListTasks(ctx, string(f))
	if err != nil {
		return nil, domain.Counts{}, err
	}
	out := make([]domain.Task, 0, len(res.Items))
	for _, t := range res.Items {
		out = append(out, fromSDK(t))
	}
	return out, domain.Counts{Active: res.Counts.Active, Completed: res.Counts.Completed}, nil
}

func (r remote) Add(ctx context.Context, text, dueDate, dueTime string) (domain.Task, error) {
	t, err := r.c.CreateTask(ctx, text, dueDate, dueTime)
	return fromSDK(t), err
}

func (r remote) Toggle(ctx context.Context, id string) (domain.Task, error) {
	t, err := r.c.ToggleTask(ctx, id)
	return fromSDK(t), err
}

func (r remote) Edit(ctx context.Context, id string, u domain.TaskUpdate) (domain.Task, error) {
	t, err := r.c.UpdateTask(ctx, id, ticklersdk.TaskUpdate{
		Text:      u.Text,
		Completed: u.Completed,
		DueDate:   u.DueDate,
		DueTime:   u.DueTime,
		Notified:  u.Notified,
	})
	return fromSDK(t), err
}

func (r remote) Delete(ctx context.Context, id string) error {
	return r.c.DeleteTask(ctx, id)
}

func (r remote) ClearCompleted(ctx context.Context) (int, error) {
	return r.c.ClearCompleted(ctx)
}

func (r remote) Alerts(ctx context.Context, n int) ([]domain.AlertRecord, error) {
	items, err := r.c.Alerts(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AlertRecord, 0, len(items))
	for _, a := range items {
		out = append(out, domain.AlertRecord{
			ID:       a.ID,
			TS:       a.TS,
			TaskID:   a.TaskID,
			Title:    a.Title,
			Body:     a.Body,
			Platform: a.Platform,
		})
	}
	return out, nil
}

func fromSDK(t ticklersdk.Task) domain.Task {
	return domain.Task{
		ID:        t.ID,
		Text:      t.Text,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt,
		DueDate:   t.DueDate,
		DueTime:   t.DueTime,
		Notified:  t.Notified,
	}
}
