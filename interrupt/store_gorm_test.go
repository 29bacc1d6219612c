package interrupt

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormStore(db, nil)
	require.NoError(t, err)
	return store
}

func TestGormStoreRoundTrip(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	rec := sampleInterrupt("exec-1")
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.GetByExecutionID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", got.ExecutionID)
	assert.Equal(t, "th-1", got.ThreadID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "delete_records", got.Payload.Action)
	assert.True(t, got.Payload.AllowIgnore)
	assert.Nil(t, got.Response)
}

func TestGormStoreGetMissing(t *testing.T) {
	store := setupGormStore(t)

	_, err := store.GetByExecutionID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreDuplicateInsertFails(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleInterrupt("exec-1")))
	assert.Error(t, store.Insert(ctx, sampleInterrupt("exec-1")))
}

func TestGormStoreUpdate(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	rec := sampleInterrupt("exec-1")
	require.NoError(t, store.Insert(ctx, rec))

	now := time.Now()
	rec.Status = StatusRejected
	rec.Response = &HumanResponse{Kind: ResponseIgnore, Message: "not now"}
	rec.UpdatedAt = now
	rec.ResolvedAt = &now
	require.NoError(t, store.UpdateByExecutionID(ctx, rec))

	got, err := store.GetByExecutionID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	require.NotNil(t, got.Response)
	assert.Equal(t, ResponseIgnore, got.Response.Kind)
	assert.Equal(t, "not now", got.Response.Message)
	require.NotNil(t, got.ResolvedAt)
}

func TestGormStoreUpdateMissing(t *testing.T) {
	store := setupGormStore(t)

	err := store.UpdateByExecutionID(context.Background(), sampleInterrupt("nonexistent"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerOverGormStore(t *testing.T) {
	store := setupGormStore(t)
	m := NewManager(store, nil, nil)
	ctx := context.Background()

	_, err := m.StoreInterrupt(ctx, StoreOptions{
		ExecutionID: "exec-1",
		ThreadID:    "th-1",
		UserID:      "user-1",
		Payload:     ActionPayload{Action: "send_message", AllowAccept: true, AllowIgnore: true},
	})
	require.NoError(t, err)

	m.ClearCache()

	rec, err := m.GetInterrupt(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "send_message", rec.Payload.Action)

	resolved, err := m.UpdateInterruptResponse(ctx, "exec-1", HumanResponse{Kind: ResponseIgnore})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resolved.Status)

	stored, err := store.GetByExecutionID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, stored.Status)
}
