package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/model"
)

// createTestTask creates a task for owner and fails the test if it errors.
func createTestTask(t *testing.T, db *DB, ownerID, title string) *model.Task {
	t.Helper()
	task := &model.Task{UserID: ownerID, Title: title}
	require.NoError(t, db.Tasks().Create(context.Background(), task))
	return task
}

func ptr[T any](v T) *T { return &v }

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "want ErrNotFound, got %v", err)
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestTaskCreate(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")

	task := &model.Task{UserID: alice.ID, Title: "Buy milk", Completed: true}
	require.NoError(t, db.Tasks().Create(context.Background(), task))

	assert.NotEmpty(t, task.ID)
	assert.False(t, task.Completed, "new tasks always start incomplete")
	assert.True(t, task.CreatedAt.Equal(task.UpdatedAt))

	got, err := db.Tasks().GetByID(context.Background(), alice.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", got.Title)
	assert.Equal(t, alice.ID, got.UserID)
	assert.False(t, got.Completed)
}

func TestTaskCreate_UnknownOwnerRejected(t *testing.T) {
	db := newTestDB(t)

	err := db.Tasks().Create(context.Background(), &model.Task{UserID: "ghost", Title: "x"})
	assert.Error(t, err, "foreign key should reject a task for a missing user")
}

func TestTaskGetByID_OtherOwnerIsNotFound(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	task := createTestTask(t, db, alice.ID, "alice's secret")

	_, err := db.Tasks().GetByID(context.Background(), bob.ID, task.ID)
	requireNotFound(t, err)

	_, errMissing := db.Tasks().GetByID(context.Background(), bob.ID, "does-not-exist")
	requireNotFound(t, errMissing)
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestTaskList_NewestFirstAndScoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	first := createTestTask(t, db, alice.ID, "first")
	second := createTestTask(t, db, alice.ID, "second")
	third := createTestTask(t, db, alice.ID, "third")
	createTestTask(t, db, bob.ID, "bob's")

	tasks, err := db.Tasks().ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID},
		[]string{tasks[0].ID, tasks[1].ID, tasks[2].ID})
	for _, task := range tasks {
		assert.Equal(t, alice.ID, task.UserID)
	}
}

func TestTaskList_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")

	tasks, err := db.Tasks().ListByOwner(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestTaskUpdate_Partial(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	task := createTestTask(t, db, alice.ID, "original")

	updated, err := db.Tasks().Update(ctx, alice.ID, task.ID, model.TaskPatch{Completed: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "original", updated.Title, "absent title is unchanged")
	assert.True(t, updated.Completed)
	assert.True(t, updated.UpdatedAt.After(task.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(task.CreatedAt))

	renamed, err := db.Tasks().Update(ctx, alice.ID, task.ID, model.TaskPatch{Title: ptr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Title)
	assert.True(t, renamed.Completed, "absent completed is unchanged")
	assert.True(t, renamed.UpdatedAt.After(updated.UpdatedAt))

	stored, err := db.Tasks().GetByID(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Title)
	assert.True(t, stored.Completed)
	assert.True(t, stored.UpdatedAt.Equal(renamed.UpdatedAt))
}

func TestTaskUpdate_EmptyPatchChangesNothing(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	task := createTestTask(t, db, alice.ID, "same")

	got, err := db.Tasks().Update(context.Background(), alice.ID, task.ID, model.TaskPatch{})
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(task.UpdatedAt))
}

func TestTaskUpdate_OtherOwnerIsNotFoundAndUntouched(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	task := createTestTask(t, db, alice.ID, "alice's")

	_, err := db.Tasks().Update(ctx, bob.ID, task.ID, model.TaskPatch{Title: ptr("pwned")})
	requireNotFound(t, err)

	stored, err := db.Tasks().GetByID(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice's", stored.Title)
}

// =========================================================================
// TOGGLE TESTS
// =========================================================================

func TestTaskToggle_TwiceRestoresAndTimestampsIncrease(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	task := createTestTask(t, db, alice.ID, "toggle me")

	once, err := db.Tasks().ToggleCompletion(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, once.Completed)
	assert.True(t, once.UpdatedAt.After(task.UpdatedAt))

	twice, err := db.Tasks().ToggleCompletion(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, twice.Completed)
	assert.True(t, twice.UpdatedAt.After(once.UpdatedAt))
}

func TestTaskToggle_OtherOwnerIsNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	task := createTestTask(t, db, alice.ID, "alice's")

	_, err := db.Tasks().ToggleCompletion(ctx, bob.ID, task.ID)
	requireNotFound(t, err)

	stored, err := db.Tasks().GetByID(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestTaskDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	task := createTestTask(t, db, alice.ID, "doomed")

	removed, err := db.Tasks().Delete(ctx, bob.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, removed, "bob cannot delete alice's task")

	removed, err = db.Tasks().Delete(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = db.Tasks().Delete(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, removed, "second delete removes nothing")

	_, err = db.Tasks().GetByID(ctx, alice.ID, task.ID)
	requireNotFound(t, err)
}
