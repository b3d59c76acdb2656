package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"tickler/internal/config"
	"tickler/internal/domain"
	"tickler/internal/logger"
	"tickler/internal/metrics"
	"tickler/internal/notify"
	"tickler/internal/repo"
)

// Recorder keeps a log of emitted alerts.
type Recorder interface {
	Append(ctx context.Context, platform string, alert domain.Alert) error
}

// Scanner fires one alert per task once its due instant has passed.
type Scanner struct {
	Repo     *repo.Repo
	Auth     *notify.Authorizer
	Interval time.Duration
	Location *time.Location
	Title    string
	Icon     string
	Now      func() time.Time
	Recorder Recorder
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// Result summarizes one pass.
type Result struct {
	Active    bool
	Evaluated int
	Pending   int
	Fired     []domain.Alert
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scanner) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.With("component", "scanner")
}

func (s *Scanner) interval() time.Duration {
	if s.Interval < time.Second {
		return config.DefaultInterval
	}
	return s.Interval
}

func (s *Scanner) title() string {
	if s.Title == "" {
		return "Task due"
	}
	return s.Title
}

// Scan runs one pass. Without granted permission it does nothing. Qualifying
// tasks are alerted in collection order and all of their notified marks land
// in a single collection rebuild.
func (s *Scanner) Scan(ctx context.Context) Result {
	if !s.Auth.Granted() {
		s.Metrics.ObserveScan(false, 0)
		return Result{}
	}
	res := Result{Active: true}
	now := s.now()
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	platform := s.Auth.PlatformName()
	s.Repo.Rebuild(func(current []domain.Task) ([]domain.Task, bool) {
		var next []domain.Task
		for i, t := range current {
			res.Evaluated++
			if t.Completed || t.Notified {
				continue
			}
			at, ok := t.DueInstant(loc)
			if !ok {
				continue
			}
			if now.Before(at) {
				res.Pending++
				continue
			}
			alert := domain.Alert{TaskID: t.ID, Title: s.title(), Body: t.Text, Icon: s.Icon, FiredAt: now}
			delivered := s.Auth.Notify(ctx, alert)
			s.Metrics.ObserveAlert(platform, delivered)
			res.Fired = append(res.Fired, alert)
			if next == nil {
				next = make([]domain.Task, len(current))
				copy(next, current)
			}
			next[i].Notified = true
		}
		return next, next != nil
	})
	s.Metrics.ObserveScan(true, res.Pending)
	for _, alert := range res.Fired {
		s.log().Info("task due", "task", alert.TaskID, "text", alert.Body)
		if s.Recorder == nil {
			continue
		}
		if err := s.Recorder.Append(ctx, platform, alert); err != nil {
			s.log().Warn("record alert failed", "task", alert.TaskID, "error", err)
		}
	}
	return res
}

// Run scans immediately, then on every interval tick, repository change and
// grant of permission, until ctx is cancelled. Passes never overlap.
func (s *Scanner) Run(ctx context.Context) error {
	kick := make(chan struct{}, 1)
	trigger := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	unsubscribeRepo := s.Repo.Subscribe(func([]domain.Task) { trigger() })
	defer unsubscribeRepo()
	unsubscribeAuth := s.Auth.OnChange(func(p domain.Permission) {
		if p == domain.PermissionGranted {
			trigger()
		}
	})
	defer unsubscribeAuth()

	sched := cron.New()
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", s.interval()), trigger); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()
	s.log().Debug("scanner started", "interval", s.interval())

	s.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log().Debug("scanner stopped")
			return nil
		case <-kick:
			s.Scan(ctx)
		}
	}
}
