package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/voxtask/internal/tasks"
)

type recordingSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSpeaker) Speak(text string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *recordingSpeaker) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return ""
	}
	return s.lines[len(s.lines)-1]
}

type failingStore struct {
	tasks.Store
}

var errDisk = errors.New("disk full")

func (failingStore) Create(context.Context, string, tasks.Priority, string) (tasks.Task, error) {
	return tasks.Task{}, errDisk
}

func newTestExecutor(t *testing.T, titles ...string) (*Executor, tasks.Store, *recordingSpeaker) {
	t.Helper()
	store := tasks.NewMemoryStore()
	for _, title := range titles {
		_, err := store.Create(context.Background(), title, tasks.PriorityLow, "")
		require.NoError(t, err)
	}
	speaker := &recordingSpeaker{}
	return NewExecutor(store, speaker, 0, zerolog.Nop()), store, speaker
}

func titles(t *testing.T, list []tasks.Task) []string {
	t.Helper()
	var out []string
	for _, task := range list {
		out = append(out, task.Text)
	}
	return out
}

func TestExecute_Add(t *testing.T) {
	ctx := context.Background()
	exec, store, speaker := newTestExecutor(t)

	res, err := exec.Execute(ctx, Parse("add buy milk high priority"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	require.NotNil(t, res.Task)
	assert.Equal(t, tasks.PriorityHigh, res.Task.Priority)
	assert.Equal(t, "Added buy milk with high priority", speaker.last())

	all, _ := store.List(ctx)
	assert.Equal(t, []string{"buy milk"}, titles(t, all))
}

func TestExecute_CompleteByIndexUsesActiveTasks(t *testing.T) {
	ctx := context.Background()
	exec, store, _ := newTestExecutor(t, "done already", "a", "b", "c")

	all, _ := store.List(ctx)
	_, err := store.ToggleComplete(ctx, all[0].ID)
	require.NoError(t, err)

	cmd := Parse("complete task 2")
	require.Equal(t, 1, *cmd.Index)

	res, err := exec.Execute(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "b", res.Task.Text)

	active, _ := store.ListActive(ctx)
	assert.Equal(t, []string{"a", "c"}, titles(t, active))
}

func TestExecute_IndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	exec, store, speaker := newTestExecutor(t, "a", "b")

	for _, input := range []string{"complete task 3", "delete task 9", "remove task 0"} {
		res, err := exec.Execute(ctx, Parse(input))
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, res.Outcome, input)
		assert.Equal(t, "Task not found", speaker.last())
	}

	active, _ := store.ListActive(ctx)
	assert.Len(t, active, 2)
}

func TestExecute_DeleteNoMatchDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	exec, store, speaker := newTestExecutor(t, "buy milk", "call mom")

	res, err := exec.Execute(ctx, Parse("delete laundry"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.False(t, res.Outcome.Mutated())
	assert.Equal(t, "Task not found", speaker.last())

	all, _ := store.List(ctx)
	assert.Equal(t, []string{"buy milk", "call mom"}, titles(t, all))
}

func TestExecute_DeleteAllPrefixedTargetRemovesOneTask(t *testing.T) {
	ctx := context.Background()
	exec, store, _ := newTestExecutor(t, "call all hands", "buy milk")

	res, err := exec.Execute(ctx, Parse("delete all hands"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
	require.NotNil(t, res.Task)
	assert.Equal(t, "call all hands", res.Task.Text)

	all, _ := store.List(ctx)
	assert.Equal(t, []string{"buy milk"}, titles(t, all))
}

func TestExecute_DeleteByTextMatchesCompletedToo(t *testing.T) {
	ctx := context.Background()
	exec, store, _ := newTestExecutor(t, "Do Laundry", "buy milk")

	all, _ := store.List(ctx)
	_, _ = store.ToggleComplete(ctx, all[0].ID)

	res, err := exec.Execute(ctx, Parse("delete laundry"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
	assert.Equal(t, "Do Laundry", res.Task.Text)

	all, _ = store.List(ctx)
	assert.Equal(t, []string{"buy milk"}, titles(t, all))
}

func TestExecute_CompleteByTextSkipsCompleted(t *testing.T) {
	ctx := context.Background()
	exec, store, _ := newTestExecutor(t, "milk run", "buy milk")

	all, _ := store.List(ctx)
	_, _ = store.ToggleComplete(ctx, all[0].ID)

	res, err := exec.Execute(ctx, Parse("mark milk as done"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "buy milk", res.Task.Text)
	assert.True(t, res.Task.Completed)
}

func TestExecute_ClearAll(t *testing.T) {
	ctx := context.Background()
	exec, store, speaker := newTestExecutor(t, "a", "b", "c")

	res, err := exec.Execute(ctx, Parse("clear all"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCleared, res.Outcome)
	assert.Equal(t, 3, res.Removed)
	assert.Equal(t, "Cleared all tasks", speaker.last())

	all, _ := store.List(ctx)
	assert.Empty(t, all)

	// clearing an empty list still succeeds
	res, err = exec.Execute(ctx, Parse("clear all"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed)
}

func TestExecute_UnknownNeverMutates(t *testing.T) {
	ctx := context.Background()
	exec, store, speaker := newTestExecutor(t, "a")

	res, err := exec.Execute(ctx, Parse("banana"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotUnderstood, res.Outcome)
	assert.Equal(t, "banana", res.Command.Text)
	assert.Equal(t, "Sorry, I didn't understand", speaker.last())

	all, _ := store.List(ctx)
	assert.Len(t, all, 1)
}

func TestExecute_StoreFailure(t *testing.T) {
	speaker := &recordingSpeaker{}
	exec := NewExecutor(failingStore{Store: tasks.NewMemoryStore()}, speaker, 1.2, zerolog.Nop())

	_, err := exec.Execute(context.Background(), Parse("add buy milk"))
	assert.ErrorIs(t, err, errDisk)
	assert.Equal(t, "Sorry, something went wrong", speaker.last())
}

func TestExecute_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := tasks.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	exec := NewExecutor(store, nil, 0, zerolog.Nop())
	for _, input := range []string{"add a", "add b", "add c", "complete task 2", "delete task one"} {
		_, err := exec.Execute(ctx, Parse(input))
		require.NoError(t, err, input)
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, titles(t, all))
	assert.True(t, all[0].Completed)
}
