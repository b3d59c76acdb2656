package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickler/internal/config"
	"tickler/internal/domain"
)

type fakePlatform struct {
	supported bool
	live      domain.Permission
	answer    chan domain.Permission
	reqErr    error

	mu       sync.Mutex
	requests int
	sent     []domain.Alert
	sendErr  error
}

func (f *fakePlatform) Name() string    { return "fake" }
func (f *fakePlatform) Supported() bool { return f.supported }
func (f *fakePlatform) Permission(context.Context) domain.Permission {
	return f.live
}
func (f *fakePlatform) RequestPermission(ctx context.Context) (domain.Permission, error) {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
	if f.reqErr != nil {
		return domain.PermissionDefault, f.reqErr
	}
	select {
	case p := <-f.answer:
		return p, nil
	case <-ctx.Done():
		return domain.PermissionDefault, ctx.Err()
	}
}
func (f *fakePlatform) Notify(_ context.Context, a domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
	return f.sendErr
}

func waitResolved(t *testing.T, a *Authorizer) {
	t.Helper()
	select {
	case <-a.Resolved():
	case <-time.After(2 * time.Second):
		t.Fatal("authorizer did not resolve")
	}
}

func TestUnsupportedPlatformIsDenied(t *testing.T) {
	a := NewAuthorizer(&fakePlatform{supported: false, live: domain.PermissionGranted})
	a.Activate(context.Background())
	waitResolved(t, a)
	assert.Equal(t, domain.PermissionDenied, a.State())
	assert.False(t, a.Notify(context.Background(), domain.Alert{Title: "x"}))

	nilPlatform := NewAuthorizer(nil)
	nilPlatform.Activate(context.Background())
	waitResolved(t, nilPlatform)
	assert.Equal(t, domain.PermissionDenied, nilPlatform.State())
}

func TestTerminalLivePermissionSkipsRequest(t *testing.T) {
	for _, live := range []domain.Permission{domain.PermissionGranted, domain.PermissionDenied} {
		p := &fakePlatform{supported: true, live: live}
		a := NewAuthorizer(p)
		a.Activate(context.Background())
		waitResolved(t, a)
		assert.Equal(t, live, a.State())
		assert.Zero(t, p.requests)
	}
}

func TestDefaultRequestsExactlyOnce(t *testing.T) {
	p := &fakePlatform{supported: true, live: domain.PermissionDefault, answer: make(chan domain.Permission, 1)}
	a := NewAuthorizer(p)
	changes := make(chan domain.Permission, 4)
	a.OnChange(func(s domain.Permission) { changes <- s })

	ctx := context.Background()
	a.Activate(ctx)
	a.Activate(ctx)
	assert.Equal(t, domain.PermissionDefault, a.State(), "pending until answered")

	p.answer <- domain.PermissionGranted
	waitResolved(t, a)
	assert.Equal(t, domain.PermissionGranted, a.State())
	assert.Equal(t, domain.PermissionGranted, <-changes)

	a.Activate(ctx)
	p.mu.Lock()
	assert.Equal(t, 1, p.requests)
	p.mu.Unlock()
	assert.Len(t, changes, 0)
}

func TestRequestErrorResolvesDenied(t *testing.T) {
	p := &fakePlatform{supported: true, live: domain.PermissionDefault, reqErr: errors.New("boom")}
	a := NewAuthorizer(p)
	a.Activate(context.Background())
	waitResolved(t, a)
	assert.Equal(t, domain.PermissionDenied, a.State())
}

func TestDismissedRequestStaysDefault(t *testing.T) {
	p := &fakePlatform{supported: true, live: domain.PermissionDefault, answer: make(chan domain.Permission, 1)}
	p.answer <- domain.PermissionDefault
	a := NewAuthorizer(p)
	a.Activate(context.Background())
	waitResolved(t, a)
	assert.Equal(t, domain.PermissionDefault, a.State())
	assert.False(t, a.Granted())
}

func TestNotifyAbsorbsDeliveryErrors(t *testing.T) {
	p := &fakePlatform{supported: true, live: domain.PermissionGranted, sendErr: errors.New("no bus")}
	a := NewAuthorizer(p)
	a.Activate(context.Background())
	waitResolved(t, a)
	assert.False(t, a.Notify(context.Background(), domain.Alert{TaskID: "t", Title: "Task due", Body: "x"}))
	p.sendErr = nil
	assert.True(t, a.Notify(context.Background(), domain.Alert{TaskID: "t", Title: "Task due", Body: "x"}))
	assert.Len(t, p.sent, 2)
}

func TestDesktopPermissionAndPrompt(t *testing.T) {
	ctx := context.Background()
	d := NewDesktop(domain.PermissionDefault, func(context.Context, string) (bool, error) { return true, nil })
	assert.Equal(t, domain.PermissionDefault, d.Permission(ctx))
	got, err := d.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionGranted, got)

	d.Prompt = func(context.Context, string) (bool, error) { return false, nil }
	got, _ = d.RequestPermission(ctx)
	assert.Equal(t, domain.PermissionDenied, got)

	d.Prompt = nil
	got, _ = d.RequestPermission(ctx)
	assert.Equal(t, domain.PermissionDefault, got)

	var sent []string
	d.send = func(title, body, icon string) error {
		sent = append(sent, title+"|"+body+"|"+icon)
		return nil
	}
	require.NoError(t, d.Notify(ctx, domain.Alert{Title: "Task due", Body: "call", Icon: "bell.png"}))
	assert.Equal(t, []string{"Task due|call|bell.png"}, sent)

	d.probe = func() bool { return false }
	assert.False(t, d.Supported())
}

func TestWebhookPostsAlert(t *testing.T) {
	var got domain.Alert
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Tickler-Task")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	assert.True(t, w.Supported())
	require.NoError(t, w.Notify(context.Background(), domain.Alert{TaskID: "t1", Title: "Task due", Body: "call"}))
	assert.Equal(t, "t1", header)
	assert.Equal(t, "call", got.Body)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	assert.Error(t, NewWebhook(failing.URL).Notify(context.Background(), domain.Alert{}))
	assert.False(t, NewWebhook("").Supported())
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, config.PlatformDesktop, FromConfig(cfg, nil).Name())
	cfg.Notifications.Platform = config.PlatformLog
	assert.Equal(t, config.PlatformLog, FromConfig(cfg, nil).Name())
	cfg.Notifications.Platform = config.PlatformWebhook
	cfg.Notifications.WebhookURL = "http://127.0.0.1:1/hook"
	assert.Equal(t, config.PlatformWebhook, FromConfig(cfg, nil).Name())
}

func TestAskYesNo(t *testing.T) {
	var out strings.Builder
	ok, err := askYesNo(context.Background(), strings.NewReader("Yes\n"), &out, "Allow?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Allow? [y/N]")

	ok, err = askYesNo(context.Background(), strings.NewReader(""), &out, "Allow?")
	require.NoError(t, err)
	assert.False(t, ok)
}
