package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickler/internal/app"
	"tickler/internal/config"
	"tickler/internal/domain"
	"tickler/internal/metrics"
	"tickler/internal/notify"
	"tickler/internal/store"
)

func newTestServer(t *testing.T, auth AuthConfig) (*httptest.Server, *app.App) {
	t.Helper()
	a, err := app.New(app.Options{
		Config:   config.Default(),
		Slot:     store.NewMemorySlot(),
		Platform: notify.Log{},
		Metrics:  metrics.New(),
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	handler, err := New(Config{App: a, BasePath: "/v1", Auth: auth})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		a.Shutdown()
	})
	return srv, a
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func TestTaskLifecycle(t *testing.T) {
	srv, a := newTestServer(t, AuthConfig{})
	base := srv.URL + "/v1"

	res, data := doJSON(t, http.MethodPost, base+"/tasks", map[string]any{"text": "call dentist", "dueDate": "2024-01-01", "dueTime": "09:00"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created domain.Task
	require.NoError(t, json.Unmarshal(data, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "09:00", created.DueTime)

	res, data = doJSON(t, http.MethodPost, base+"/tasks", map[string]any{"text": "buy milk"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, base+"/tasks/"+created.ID+"/toggle", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, base+"/tasks?filter=completed", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list TaskList
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)
	assert.Equal(t, CountsBody{Active: 1, Completed: 1, Total: 2}, list.Counts)

	res, data = doJSON(t, http.MethodPatch, base+"/tasks/"+created.ID, map[string]any{"text": "call the dentist"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var edited domain.Task
	require.NoError(t, json.Unmarshal(data, &edited))
	assert.Equal(t, "call the dentist", edited.Text)
	assert.Equal(t, created.CreatedAt, edited.CreatedAt)

	res, data = doJSON(t, http.MethodPost, base+"/tasks/clear-completed", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var cleared ClearCompletedBody
	require.NoError(t, json.Unmarshal(data, &cleared))
	assert.Equal(t, 1, cleared.Removed)

	res, data = doJSON(t, http.MethodGet, base+"/counts", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var counts CountsBody
	require.NoError(t, json.Unmarshal(data, &counts))
	assert.Equal(t, CountsBody{Active: 1, Completed: 0, Total: 1}, counts)

	remaining := a.Repo.Snapshot()[0].ID
	res, _ = doJSON(t, http.MethodDelete, base+"/tasks/"+remaining, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Empty(t, a.Repo.Snapshot())
}

func TestErrors(t *testing.T) {
	srv, _ := newTestServer(t, AuthConfig{})
	base := srv.URL + "/v1"

	res, data := doJSON(t, http.MethodPost, base+"/tasks/missing/toggle", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "not_found", envelope.Error.Code)

	res, _ = doJSON(t, http.MethodPost, base+"/tasks", map[string]any{"text": "x", "dueDate": "tomorrow", "dueTime": "09:00"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, http.MethodPost, base+"/tasks", map[string]any{"text": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, http.MethodDelete, base+"/tasks/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPermissionAndAlerts(t *testing.T) {
	srv, _ := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/permission", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var perm PermissionBody
	require.NoError(t, json.Unmarshal(data, &perm))
	assert.Equal(t, PermissionBody{State: "default", Platform: "log"}, perm)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/alerts", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var alerts AlertList
	require.NoError(t, json.Unmarshal(data, &alerts))
	assert.Empty(t, alerts.Items)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	secret := "test-secret"
	srv, _ := newTestServer(t, AuthConfig{JWTSecret: secret})

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{"Authorization": "Bearer junk"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tester",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{"Authorization": "Bearer " + signed})
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))
}
