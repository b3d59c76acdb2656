package repo

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickler/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmptyText  = errors.New("text is required")
	ErrInvalidDue = errors.New("invalid due")
)

// Listener receives the collection after every effective mutation.
type Listener func(snapshot []domain.Task)

// Repo is the in-memory task collection, newest first. Every mutation swaps
// in a freshly built slice; slices handed out are never written again.
type Repo struct {
	mu        sync.Mutex
	tasks     []domain.Task
	listeners map[int]Listener
	order     []int
	nextID    int

	Now   func() time.Time
	NewID func() string
}

func New() *Repo {
	return &Repo{
		tasks:     []domain.Task{},
		listeners: make(map[int]Listener),
		Now:       time.Now,
		NewID:     func() string { return uuid.NewString() },
	}
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Subscribe registers fn; listeners run in registration order while the
// collection lock is held, so they observe mutations in order.
func (r *Repo) Subscribe(fn Listener) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.order = append(r.order, id)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i:i], r.order[i+1:]...)
				break
			}
		}
	}
}

// commit must be called with mu held.
func (r *Repo) commit(next []domain.Task) {
	r.tasks = next
	for _, id := range r.order {
		r.listeners[id](next)
	}
}

// Replace installs a loaded collection without notifying listeners.
func (r *Repo) Replace(tasks []domain.Task) {
	next := make([]domain.Task, len(tasks))
	copy(next, tasks)
	r.mu.Lock()
	r.tasks = next
	r.mu.Unlock()
}

// Snapshot returns the current collection. Callers must not modify it.
func (r *Repo) Snapshot() []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks
}

func (r *Repo) Get(id string) (domain.Task, error) {
	for _, t := range r.Snapshot() {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
}

func (r *Repo) Create(text, dueDate, dueTime string) (domain.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Task{}, ErrEmptyText
	}
	dueDate, dueTime = strings.TrimSpace(dueDate), strings.TrimSpace(dueTime)
	if err := ValidateDue(dueDate, dueTime); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:        r.NewID(),
		Text:      text,
		CreatedAt: r.now().UnixMilli(),
		DueDate:   dueDate,
		DueTime:   dueTime,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]domain.Task, 0, len(r.tasks)+1)
	next = append(next, t)
	next = append(next, r.tasks...)
	r.commit(next)
	return t, nil
}

func (r *Repo) Toggle(id string) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.tasks, id)
	if idx < 0 {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	next := clone(r.tasks)
	next[idx].Completed = !next[idx].Completed
	r.commit(next)
	return next[idx], nil
}

func (r *Repo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.tasks, id)
	if idx < 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	next := make([]domain.Task, 0, len(r.tasks)-1)
	next = append(next, r.tasks[:idx]...)
	next = append(next, r.tasks[idx+1:]...)
	r.commit(next)
	return nil
}

func (r *Repo) Edit(id string, u domain.TaskUpdate) (domain.Task, error) {
	if err := validateUpdate(u); err != nil {
		return domain.Task{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.tasks, id)
	if idx < 0 {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	next := clone(r.tasks)
	next[idx] = apply(next[idx], u)
	r.commit(next)
	return next[idx], nil
}

// EditMany applies several updates as a single rebuild and returns how many
// ids matched. Unknown ids are skipped.
func (r *Repo) EditMany(updates map[string]domain.TaskUpdate) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next []domain.Task
	matched := 0
	for i, t := range r.tasks {
		u, ok := updates[t.ID]
		if !ok || validateUpdate(u) != nil {
			continue
		}
		if next == nil {
			next = clone(r.tasks)
		}
		next[i] = apply(t, u)
		matched++
	}
	if matched > 0 {
		r.commit(next)
	}
	return matched
}

// Rebuild runs fn against the current collection under the repository lock.
// When fn reports a change its result becomes the collection. fn must not
// modify its argument or call back into the repository.
func (r *Repo) Rebuild(fn func(current []domain.Task) ([]domain.Task, bool)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, changed := fn(r.tasks)
	if !changed {
		return false
	}
	if next == nil {
		next = []domain.Task{}
	}
	r.commit(next)
	return true
}

// ClearCompleted removes every completed task and returns how many went.
func (r *Repo) ClearCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if !t.Completed {
			next = append(next, t)
		}
	}
	removed := len(r.tasks) - len(next)
	if removed > 0 {
		r.commit(next)
	}
	return removed
}

// Filtered returns the tasks selected by f in collection order.
func (r *Repo) Filtered(f domain.Filter) []domain.Task {
	return FilterTasks(r.Snapshot(), f)
}

func (r *Repo) Counts() domain.Counts {
	return CountTasks(r.Snapshot())
}

func FilterTasks(tasks []domain.Task, f domain.Filter) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

func CountTasks(tasks []domain.Task) domain.Counts {
	active := 0
	for _, t := range tasks {
		if !t.Completed {
			active++
		}
	}
	return domain.Counts{Active: active, Completed: len(tasks) - active}
}

// ValidateDue checks the halves that are present. A lone date or time is
// accepted and simply never scheduled.
func ValidateDue(dueDate, dueTime string) error {
	if dueDate != "" {
		if _, err := time.Parse(domain.DateLayout, dueDate); err != nil {
			return fmt.Errorf("%w date %q (want YYYY-MM-DD)", ErrInvalidDue, dueDate)
		}
	}
	if dueTime != "" {
		if _, err := time.Parse(domain.TimeLayout, dueTime); err != nil {
			return fmt.Errorf("%w time %q (want HH:MM)", ErrInvalidDue, dueTime)
		}
	}
	return nil
}

func validateUpdate(u domain.TaskUpdate) error {
	if u.Text != nil && strings.TrimSpace(*u.Text) == "" {
		return ErrEmptyText
	}
	var date, clock string
	if u.DueDate != nil {
		date = strings.TrimSpace(*u.DueDate)
	}
	if u.DueTime != nil {
		clock = strings.TrimSpace(*u.DueTime)
	}
	return ValidateDue(date, clock)
}

// apply merges u into t. Changing the due instant re-arms the alert unless
// the update sets notified itself.
func apply(t domain.Task, u domain.TaskUpdate) domain.Task {
	before := dueKey(t)
	if u.Text != nil {
		t.Text = strings.TrimSpace(*u.Text)
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
	if u.DueDate != nil {
		t.DueDate = strings.TrimSpace(*u.DueDate)
	}
	if u.DueTime != nil {
		t.DueTime = strings.TrimSpace(*u.DueTime)
	}
	if u.Notified != nil {
		t.Notified = *u.Notified
	} else if dueKey(t) != before {
		t.Notified = false
	}
	return t
}

func dueKey(t domain.Task) string {
	return t.DueDate + "T" + t.DueTime
}

func indexOf(tasks []domain.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func clone(tasks []domain.Task) []domain.Task {
	next := make([]domain.Task, len(tasks))
	copy(next, tasks)
	return next
}
