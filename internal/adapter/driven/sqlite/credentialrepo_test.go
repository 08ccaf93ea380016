package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devbot/internal/domain/model"
)

func TestCredentialRepo_LoadMissingReturnsEmptyRecord(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	rec, err := repo.LoadCredentials(ctx, "session-a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "session-a", rec.SessionID)
	assert.False(t, rec.HasIdentity())
}

func TestCredentialRepo_SaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	rec := &model.CredentialRecord{
		SessionID:   "session-a",
		DeviceID:    "5511999990000.0:1@device",
		IdentityKey: []byte{0x01, 0x02, 0x03},
		NoiseKey:    []byte{0x04, 0x05},
		Registered:  true,
	}
	require.NoError(t, repo.SaveCredentials(ctx, "session-a", rec))

	got, err := repo.LoadCredentials(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, rec.DeviceID, got.DeviceID)
	assert.Equal(t, rec.IdentityKey, got.IdentityKey)
	assert.Equal(t, rec.NoiseKey, got.NoiseKey)
	assert.True(t, got.HasIdentity())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestCredentialRepo_SaveOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	first := &model.CredentialRecord{SessionID: "s", DeviceID: "old", IdentityKey: []byte{1}, Registered: true}
	require.NoError(t, repo.SaveCredentials(ctx, "s", first))

	second := &model.CredentialRecord{SessionID: "s", DeviceID: "new", IdentityKey: []byte{2}, Registered: true}
	require.NoError(t, repo.SaveCredentials(ctx, "s", second))

	got, err := repo.LoadCredentials(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "new", got.DeviceID)
	assert.Equal(t, []byte{2}, got.IdentityKey)
}

func TestCredentialRepo_GetKeysReturnsOnlyPresentIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	updates := map[string][]byte{
		"k1": []byte("v1"),
		"k2": []byte("v2"),
	}
	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategorySession, updates))

	got, err := repo.GetKeys(ctx, "s", model.KeyCategorySession, []string{"k1", "k2", "k3"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("v1"), got["k1"])
	assert.Equal(t, []byte("v2"), got["k2"])
	assert.NotContains(t, got, "k3")
}

func TestCredentialRepo_GetKeysEmptyIDList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	got, err := repo.GetKeys(ctx, "s", model.KeyCategoryPreKey, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCredentialRepo_SetKeysLastWriteWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategorySession, map[string][]byte{"k1": []byte("old")}))
	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategorySession, map[string][]byte{"k1": []byte("new")}))

	got, err := repo.GetKeys(ctx, "s", model.KeyCategorySession, []string{"k1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got["k1"])
}

func TestCredentialRepo_TombstoneDeletes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategorySession, map[string][]byte{"k1": []byte("v1")}))
	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategorySession, map[string][]byte{"k1": nil}))

	got, err := repo.GetKeys(ctx, "s", model.KeyCategorySession, []string{"k1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCredentialRepo_MixedBatchUpsertAndTombstone(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategoryPreKey, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}))
	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategoryPreKey, map[string][]byte{
		"a": nil,
		"c": []byte("3"),
	}))

	got, err := repo.GetKeys(ctx, "s", model.KeyCategoryPreKey, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("2"), got["b"])
	assert.Equal(t, []byte("3"), got["c"])
}

func TestCredentialRepo_CategoriesAreIsolated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategorySession, map[string][]byte{"k1": []byte("sess")}))
	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategoryPreKey, map[string][]byte{"k1": []byte("pre")}))

	got, err := repo.GetKeys(ctx, "s", model.KeyCategorySession, []string{"k1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("sess"), got["k1"])
}

func TestCredentialRepo_ClearRemovesEverything(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	rec := &model.CredentialRecord{SessionID: "s", DeviceID: "dev", IdentityKey: []byte{1}, Registered: true}
	require.NoError(t, repo.SaveCredentials(ctx, "s", rec))
	require.NoError(t, repo.SetKeys(ctx, "s", model.KeyCategorySession, map[string][]byte{"k1": []byte("v")}))

	require.NoError(t, repo.Clear(ctx, "s"))

	got, err := repo.LoadCredentials(ctx, "s")
	require.NoError(t, err)
	assert.False(t, got.HasIdentity())

	keys, err := repo.GetKeys(ctx, "s", model.KeyCategorySession, []string{"k1"})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCredentialRepo_ClearLeavesOtherSessionsAlone(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.SetKeys(ctx, "one", model.KeyCategorySession, map[string][]byte{"k": []byte("1")}))
	require.NoError(t, repo.SetKeys(ctx, "two", model.KeyCategorySession, map[string][]byte{"k": []byte("2")}))

	require.NoError(t, repo.Clear(ctx, "one"))

	got, err := repo.GetKeys(ctx, "two", model.KeyCategorySession, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got["k"])
}
