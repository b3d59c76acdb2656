package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"createdAt"`
	DueDate   string `json:"dueDate,omitempty" example:"2024-01-01"`
	DueTime   string `json:"dueTime,omitempty" example:"09:00"`
	Notified  bool   `json:"notified"`
}

// HasDue reports whether both halves of the due instant are present.
func (t Task) HasDue() bool {
	return t.DueDate != "" && t.DueTime != ""
}

// DueInstant combines due date and time in loc. ok is false for partial or
// unparseable due instants.
func (t Task) DueInstant(loc *time.Location) (time.Time, bool) {
	if !t.HasDue() {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	at, err := time.ParseInLocation(DateLayout+" "+TimeLayout, t.DueDate+" "+t.DueTime, loc)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// TaskUpdate is a partial update; nil fields are left alone.
type TaskUpdate struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	DueDate   *string `json:"dueDate,omitempty"`
	DueTime   *string `json:"dueTime,omitempty"`
	Notified  *bool   `json:"notified,omitempty"`
}

func (u TaskUpdate) Empty() bool {
	return u.Text == nil && u.Completed == nil && u.DueDate == nil && u.DueTime == nil && u.Notified == nil
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("invalid filter %q (want all, active or completed)", s)
	}
}

// Match reports whether t belongs to the view selected by f.
func (f Filter) Match(t Task) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func ParsePermission(s string) (Permission, error) {
	switch p := Permission(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PermissionDefault, nil
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	default:
		return "", fmt.Errorf("invalid permission %q", s)
	}
}

// Terminal reports whether no further prompting may happen this session.
func (p Permission) Terminal() bool {
	return p == PermissionGranted || p == PermissionDenied
}

type Counts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

func (c Counts) Total() int { return c.Active + c.Completed }

type Alert struct {
	TaskID  string    `json:"task_id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Icon    string    `json:"icon,omitempty"`
	FiredAt time.Time `json:"fired_at"`
}

// AlertRecord is a fired alert as kept in the alert log.
type AlertRecord struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Platform string `json:"platform"`
}
