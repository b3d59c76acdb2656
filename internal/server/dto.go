package server

import "tickler/internal/domain"

// Request payloads

type CreateTaskRequest struct {
	Text    string `json:"text" minLength:"1" example:"call dentist"`
	DueDate string `json:"dueDate,omitempty" example:"2024-01-01"`
	DueTime string `json:"dueTime,omitempty" example:"09:00"`
}

type UpdateTaskRequest struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	DueDate   *string `json:"dueDate,omitempty"`
	DueTime   *string `json:"dueTime,omitempty"`
	Notified  *bool   `json:"notified,omitempty"`
}

func (r UpdateTaskRequest) update() domain.TaskUpdate {
	return domain.TaskUpdate{
		Text:      r.Text,
		Completed: r.Completed,
		DueDate:   r.DueDate,
		DueTime:   r.DueTime,
		Notified:  r.Notified,
	}
}

// Responses

type TaskList struct {
	Filter string        `json:"filter"`
	Items  []domain.Task `json:"items"`
	Counts CountsBody    `json:"counts"`
}

type CountsBody struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

func countsBody(c domain.Counts) CountsBody {
	return CountsBody{Active: c.Active, Completed: c.Completed, Total: c.Total()}
}

type ClearCompletedBody struct {
	Removed int `json:"removed"`
}

type PermissionBody struct {
	State    string `json:"state" enum:"default,granted,denied"`
	Platform string `json:"platform"`
}

type AlertList struct {
	Items []domain.AlertRecord `json:"items"`
}
