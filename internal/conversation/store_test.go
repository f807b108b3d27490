package conversation

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, kv KV) *Store {
	t.Helper()
	store, err := NewStore(kv, slog.Default())
	require.NoError(t, err)
	return store
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t, NewMemoryKV())

	conv, err := store.Create("script-1")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "script-1", conv.ScriptID)
	assert.Empty(t, conv.Generations)

	got, ok := store.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, conv.ID, got.ID)

	byScript, ok := store.GetByScript("script-1")
	require.True(t, ok)
	assert.Equal(t, conv.ID, byScript.ID)

	// One conversation per script.
	_, err = store.Create("script-1")
	assert.Error(t, err)
}

func TestStoreAppendAndUpdateLatest(t *testing.T) {
	store := newTestStore(t, NewMemoryKV())
	conv, err := store.Create("script-1")
	require.NoError(t, err)

	// Updating before any generation exists is a silent no-op.
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "ignored", 0))
	resp, err := store.GetLatestResponse(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "", resp)

	require.NoError(t, store.AppendGeneration(conv.ID, []ChatMessage{
		{Role: "user", Content: "first prompt"},
	}))
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "first response", 0))

	require.NoError(t, store.AppendGeneration(conv.ID, []ChatMessage{
		{Role: "user", Content: "second prompt"},
	}))
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "second response", 42))

	got, ok := store.Get(conv.ID)
	require.True(t, ok)
	require.Len(t, got.Generations, 2)

	// Only the last generation was mutated; the first stayed sealed.
	assert.Equal(t, "first response", got.Generations[0].Response)
	assert.Equal(t, "second response", got.Generations[1].Response)
	assert.Equal(t, 42, got.Generations[1].CachedTokens)

	resp, err = store.GetLatestResponse(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "second response", resp)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := newTestStore(t, NewMemoryKV())
	conv, err := store.Create("script-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendGeneration(conv.ID, []ChatMessage{{Role: "user", Content: "p"}}))

	got, _ := store.Get(conv.ID)
	got.Generations[0].Response = "mutated externally"

	again, _ := store.Get(conv.ID)
	assert.Equal(t, "", again.Generations[0].Response)
}

func TestStoreThrottledPersistence(t *testing.T) {
	kv := NewMemoryKV()
	store := newTestStore(t, kv)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := base
	store.now = func() time.Time { return current }

	conv, err := store.Create("script-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendGeneration(conv.ID, []ChatMessage{{Role: "user", Content: "p"}}))

	// Rapid streaming updates inside the throttle window must not hit disk.
	current = current.Add(10 * time.Millisecond)
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "chunk one", 0))
	current = current.Add(10 * time.Millisecond)
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "chunk one two", 0))

	persisted := persistedResponse(t, kv, "script-1")
	assert.Equal(t, "", persisted, "throttled updates should not have been written")

	// After the throttle window, the next update lands.
	current = current.Add(2 * time.Second)
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "chunk one two three", 0))
	assert.Equal(t, "chunk one two three", persistedResponse(t, kv, "script-1"))

	// Flush bypasses the throttle entirely.
	current = current.Add(5 * time.Millisecond)
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "final text", 0))
	store.Flush(conv.ID)
	assert.Equal(t, "final text", persistedResponse(t, kv, "script-1"))
}

func persistedResponse(t *testing.T, kv KV, scriptID string) string {
	t.Helper()
	data, ok, err := kv.Get(recordKeyPrefix + scriptID)
	require.NoError(t, err)
	require.True(t, ok)
	conv, err := Parse(data)
	require.NoError(t, err)
	if latest := conv.Latest(); latest != nil {
		return latest.Response
	}
	return ""
}

func TestStoreReloadFromDisk(t *testing.T) {
	kv := NewMemoryKV()
	store := newTestStore(t, kv)

	conv, err := store.Create("script-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendGeneration(conv.ID, []ChatMessage{{Role: "user", Content: "p"}}))
	require.NoError(t, store.UpdateLatestResponse(conv.ID, "resp", 0))
	store.Flush(conv.ID)

	reloaded := newTestStore(t, kv)
	got, ok := reloaded.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "resp", got.Latest().Response)
}

func TestLegacyMigration(t *testing.T) {
	kv := NewMemoryKV()

	legacy := []map[string]any{
		{
			"id":       "legacy-conv",
			"scriptId": "legacy-script",
			"generations": []map[string]any{
				{
					"messages":  []map[string]string{{"role": "user", "content": "old prompt"}},
					"response":  "old response",
					"timestamp": time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
				},
			},
			"createdAt": time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			"updatedAt": time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	blob, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, kv.Set(legacyKey, blob))

	store := newTestStore(t, kv)

	conv, ok := store.Get("legacy-conv")
	require.True(t, ok)
	assert.Equal(t, "legacy-script", conv.ScriptID)
	require.Len(t, conv.Generations, 1)
	assert.Equal(t, "old prompt", conv.Generations[0].UserPrompt())
	assert.Equal(t, "old response", conv.Generations[0].Response)

	// Legacy blob is deleted after migration.
	_, exists, err := kv.Get(legacyKey)
	require.NoError(t, err)
	assert.False(t, exists)

	// Running the migration again with no blob present changes nothing.
	stateAfterFirst, _, err := kv.Get(recordKeyPrefix + "legacy-script")
	require.NoError(t, err)

	again := newTestStore(t, kv)
	_, ok = again.Get("legacy-conv")
	require.True(t, ok)

	stateAfterSecond, _, err := kv.Get(recordKeyPrefix + "legacy-script")
	require.NoError(t, err)
	assert.Equal(t, string(stateAfterFirst), string(stateAfterSecond))
}
