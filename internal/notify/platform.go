package notify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/mattn/go-isatty"

	"tickler/internal/config"
	"tickler/internal/domain"
	"tickler/internal/logger"
)

const defaultWebhookTimeout = 5 * time.Second

// Platform is an alert capability offered by the host.
type Platform interface {
	Name() string
	// Supported probes whether the capability exists at all.
	Supported() bool
	// Permission reports the live authorization state.
	Permission(ctx context.Context) domain.Permission
	// RequestPermission asks once; the answer is granted, denied, or default
	// when the request was dismissed.
	RequestPermission(ctx context.Context) (domain.Permission, error)
	Notify(ctx context.Context, alert domain.Alert) error
}

// Prompter asks the user a yes/no question.
type Prompter func(ctx context.Context, question string) (bool, error)

// Desktop shows native notifications through beeep.
type Desktop struct {
	Configured domain.Permission
	Prompt     Prompter

	send  func(title, body, icon string) error
	probe func() bool
}

func NewDesktop(configured domain.Permission, prompt Prompter) *Desktop {
	return &Desktop{Configured: configured, Prompt: prompt}
}

func (d *Desktop) Name() string { return config.PlatformDesktop }

func (d *Desktop) Supported() bool {
	if d.probe != nil {
		return d.probe()
	}
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux", "freebsd", "openbsd", "netbsd":
		return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != "" || os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	default:
		return false
	}
}

func (d *Desktop) Permission(context.Context) domain.Permission {
	if d.Configured == "" {
		return domain.PermissionDefault
	}
	return d.Configured
}

func (d *Desktop) RequestPermission(ctx context.Context) (domain.Permission, error) {
	if d.Prompt == nil {
		return domain.PermissionDefault, nil
	}
	ok, err := d.Prompt(ctx, "Allow desktop notifications for due tasks?")
	if err != nil {
		return domain.PermissionDenied, err
	}
	if ok {
		return domain.PermissionGranted, nil
	}
	return domain.PermissionDenied, nil
}

func (d *Desktop) Notify(_ context.Context, alert domain.Alert) error {
	send := d.send
	if send == nil {
		send = func(title, body, icon string) error { return beeep.Notify(title, body, icon) }
	}
	return send(alert.Title, alert.Body, alert.Icon)
}

// Webhook posts alerts as JSON to a URL.
type Webhook struct {
	URL    string
	Client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: defaultWebhookTimeout}}
}

func (w *Webhook) Name() string { return config.PlatformWebhook }

func (w *Webhook) Supported() bool { return strings.TrimSpace(w.URL) != "" }

func (w *Webhook) Permission(context.Context) domain.Permission { return domain.PermissionGranted }

func (w *Webhook) RequestPermission(context.Context) (domain.Permission, error) {
	return domain.PermissionGranted, nil
}

func (w *Webhook) Notify(ctx context.Context, alert domain.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultWebhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tickler-Task", alert.TaskID)
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", res.StatusCode)
	}
	return nil
}

// Log writes alerts to the structured logger; useful headless.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Name() string { return config.PlatformLog }

func (l Log) Supported() bool { return true }

func (l Log) Permission(context.Context) domain.Permission { return domain.PermissionGranted }

func (l Log) RequestPermission(context.Context) (domain.Permission, error) {
	return domain.PermissionGranted, nil
}

func (l Log) Notify(_ context.Context, alert domain.Alert) error {
	lg := l.Logger
	if lg == nil {
		lg = logger.Get()
	}
	lg.Info(alert.Title, "task", alert.TaskID, "body", alert.Body)
	return nil
}

// FromConfig builds the platform selected in cfg.
func FromConfig(cfg *config.Config, prompt Prompter) Platform {
	switch cfg.Notifications.Platform {
	case config.PlatformWebhook:
		return NewWebhook(cfg.Notifications.WebhookURL)
	case config.PlatformLog:
		return Log{}
	default:
		return NewDesktop(cfg.Permission(), prompt)
	}
}

// StdinPrompter asks on out and reads the answer from in. When in is not a
// terminal the question is not asked and the answer is no.
func StdinPrompter(in *os.File, out io.Writer) Prompter {
	return func(ctx context.Context, question string) (bool, error) {
		if !isatty.IsTerminal(in.Fd()) && !isatty.IsCygwinTerminal(in.Fd()) {
			return false, nil
		}
		return askYesNo(ctx, in, out, question)
	}
}

func askYesNo(ctx context.Context, in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer <- line
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
