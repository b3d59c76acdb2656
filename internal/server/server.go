package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tickler/internal/app"
	"tickler/internal/domain"
	"tickler/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	App      *app.App
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the task list API.
func New(cfg Config) (http.Handler, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.Handle("/metrics", cfg.App.Metrics.Handler())

	hcfg := huma.DefaultConfig("Tickler API", "1.0.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTasks(group, cfg.App)
	registerCounts(group, cfg.App)
	registerPermission(group, cfg.App)
	registerAlerts(group, cfg.App)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrEmptyText), errors.Is(err, repo.ErrInvalidDue):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type taskOutput struct {
	Body domain.Task `json:"body"`
}

func registerTasks(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Filter string `query:"filter" enum:"all,active,completed" default:"all"`
	}) (*struct {
		Body TaskList `json:"body"`
	}, error) {
		f, err := domain.ParseFilter(input.Filter)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		snap := a.Repo.Snapshot()
		return &struct {
			Body TaskList `json:"body"`
		}{Body: TaskList{
			Filter: string(f),
			Items:  repo.FilterTasks(snap, f),
			Counts: countsBody(repo.CountTasks(snap)),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Add a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := a.Repo.Create(input.Body.Text, input.Body.DueDate, input.Body.DueTime)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-completed",
		Method:      http.MethodPost,
		Path:        "/tasks/clear-completed",
		Summary:     "Remove all completed tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ClearCompletedBody `json:"body"`
	}, error) {
		return &struct {
			Body ClearCompletedBody `json:"body"`
		}{Body: ClearCompletedBody{Removed: a.Repo.ClearCompleted()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskOutput, error) {
		t, err := a.Repo.Get(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Edit task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := a.Repo.Edit(input.ID, input.Body.update())
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/toggle",
		Summary:     "Flip task completion",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*taskOutput, error) {
		t, err := a.Repo.Toggle(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := a.Repo.Delete(input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerCounts(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "counts",
		Method:      http.MethodGet,
		Path:        "/counts",
		Summary:     "Active and completed counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CountsBody `json:"body"`
	}, error) {
		return &struct {
			Body CountsBody `json:"body"`
		}{Body: countsBody(a.Repo.Counts())}, nil
	})
}

func registerPermission(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "notification-permission",
		Method:      http.MethodGet,
		Path:        "/permission",
		Summary:     "Notification permission for this session",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PermissionBody `json:"body"`
	}, error) {
		return &struct {
			Body PermissionBody `json:"body"`
		}{Body: PermissionBody{State: string(a.Auth.State()), Platform: a.Auth.PlatformName()}}, nil
	})
}

func registerAlerts(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "Recently fired alerts",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"500"`
		TaskID string `query:"task_id"`
	}) (*struct {
		Body AlertList `json:"body"`
	}, error) {
		out := AlertList{Items: []domain.AlertRecord{}}
		if a.Alerts != nil {
			items, err := a.Alerts.Latest(ctx, input.Limit, input.TaskID)
			if err != nil {
				return nil, handleError(err)
			}
			out.Items = items
		}
		return &struct {
			Body AlertList `json:"body"`
		}{Body: out}, nil
	})
}
