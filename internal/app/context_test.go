package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickler/internal/app"
	"tickler/internal/config"
	"tickler/internal/domain"
	"tickler/internal/store"
)

type chanPlatform struct {
	mu  sync.Mutex
	out chan domain.Alert
}

func (p *chanPlatform) Name() string                                 { return "chan" }
func (p *chanPlatform) Supported() bool                              { return true }
func (p *chanPlatform) Permission(context.Context) domain.Permission { return domain.PermissionGranted }
func (p *chanPlatform) RequestPermission(context.Context) (domain.Permission, error) {
	return domain.PermissionGranted, nil
}
func (p *chanPlatform) Notify(_ context.Context, a domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out <- a
	return nil
}

func TestStartDoesNotOverwriteStoredTasks(t *testing.T) {
	ctx := context.Background()
	slot := store.NewMemorySlot()
	seed := store.New(slot, config.Default().Storage.Key)
	require.NoError(t, seed.Save(ctx, []domain.Task{{ID: "kept", Text: "from last session"}}))

	a, err := app.New(app.Options{Config: config.Default(), Slot: slot})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer a.Shutdown()

	assert.Len(t, a.Repo.Snapshot(), 1)
	assert.Equal(t, "kept", seed.Load(ctx)[0].ID)

	_, err = a.Repo.Create("new", "", "")
	require.NoError(t, err)
	stored := seed.Load(ctx)
	require.Len(t, stored, 2)
	assert.Equal(t, "new", stored[0].Text)
	assert.Error(t, a.Start(ctx))
}

func TestCorruptStoreStartsEmpty(t *testing.T) {
	ctx := context.Background()
	slot := store.NewMemorySlot()
	require.NoError(t, slot.Put(ctx, "tickler.tasks", "not json"))
	a, err := app.New(app.Options{Config: config.Default(), Slot: slot})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer a.Shutdown()
	assert.Empty(t, a.Repo.Snapshot())
}

func TestWatchAlertsAndPersistsNotified(t *testing.T) {
	ctx := context.Background()
	slot := store.NewMemorySlot()
	plat := &chanPlatform{out: make(chan domain.Alert, 1)}
	a, err := app.New(app.Options{
		Config:   config.Default(),
		Slot:     slot,
		Platform: plat,
		Now:      func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) },
		Location: time.UTC,
		Watch:    true,
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	task, err := a.Repo.Create("call dentist", "2024-01-01", "09:00")
	require.NoError(t, err)
	select {
	case alert := <-plat.out:
		assert.Equal(t, task.ID, alert.TaskID)
		assert.Equal(t, "Task due", alert.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no alert")
	}
	require.NoError(t, a.Shutdown())

	stored := store.New(slot, "tickler.tasks").Load(ctx)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Notified)
	assert.Equal(t, domain.PermissionGranted, a.Auth.State())
}

func TestWorkspaceDatabase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := app.New(app.Options{Workspace: dir})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	_, err = a.Repo.Create("persisted", "", "")
	require.NoError(t, err)
	require.NoError(t, a.Shutdown())

	b, err := app.New(app.Options{Workspace: dir})
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown()
	require.Len(t, b.Repo.Snapshot(), 1)
	assert.Equal(t, "persisted", b.Repo.Snapshot()[0].Text)
	assert.NotNil(t, b.Alerts)
}
