package tasks

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tasks in process memory, in creation order
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  []Task
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

// Create appends a new incomplete task
func (s *MemoryStore) Create(ctx context.Context, text string, priority Priority, category string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Task{
		ID:        s.nextID,
		Text:      text,
		CreatedAt: s.now(),
		Priority:  priority,
		Category:  category,
	}
	s.nextID++
	s.tasks = append(s.tasks, t)
	return t, nil
}

// ToggleComplete flips the completed flag
func (s *MemoryStore) ToggleComplete(ctx context.Context, id int64) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		t := &s.tasks[i]
		t.Completed = !t.Completed
		if t.Completed {
			now := s.now()
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
		return *t, nil
	}
	return Task{}, ErrTaskNotFound
}

// Delete removes a task
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return ErrTaskNotFound
}

// ClearAll removes every task and returns how many were removed
func (s *MemoryStore) ClearAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.tasks)
	s.tasks = nil
	return n, nil
}

// ListActive returns incomplete tasks
func (s *MemoryStore) ListActive(ctx context.Context) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Task
	for _, t := range s.tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

// List returns all tasks
func (s *MemoryStore) List(ctx context.Context) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}
