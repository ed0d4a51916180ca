package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"skeeterdeleter/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, *logger.TestLogger) {
	t.Helper()
	tl := logger.NewTestLogger()
	store := NewStore(filepath.Join(t.TempDir(), "state", "me.state.json"), tl)
	store.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return store, tl
}

func TestLoadMissingFileIsFreshState(t *testing.T) {
	store, _ := newTestStore(t)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, State{Version: CurrentVersion}, st)
	assert.False(t, store.Exists())
}

func TestSaveAndLoad(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(State{LastLikesCursor: "3kl", LastPostsCursor: "3kp", PagesConsumedThisRun: 4}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "3kl", loaded.LastLikesCursor)
	assert.Equal(t, "3kp", loaded.LastPostsCursor)
	assert.Equal(t, 4, loaded.PagesConsumedThisRun)
	assert.Equal(t, CurrentVersion, loaded.Version)
	assert.Equal(t, 2024, loaded.UpdatedAt.Year())

	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must not survive a save")
}

func TestSavedFileIsReadableJSON(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(State{LastLikesCursor: "abc"}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"last_likes_cursor\": \"abc\"")

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "pages_consumed_this_run")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(store.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestSaveReplacesPreviousState(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(State{LastLikesCursor: "first"}))
	require.NoError(t, store.Save(State{LastLikesCursor: "second"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.LastLikesCursor)
}

func TestLoadCorruptFile(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))

	_, err := store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode state file")
}

func TestLoadNewerVersionRejected(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"version": 9}`), 0600))

	_, err := store.Load()
	assert.ErrorContains(t, err, "newer than supported")
}

func TestApplyLikesOverride(t *testing.T) {
	store, tl := newTestStore(t)

	st := store.ApplyLikesOverride(State{LastLikesCursor: "old", LastPostsCursor: "p"}, "fixed")
	assert.Equal(t, "fixed", st.LastLikesCursor)
	assert.Equal(t, "p", st.LastPostsCursor)
	assert.True(t, tl.HasMessage("Using fixed likes cursor"))
	assert.False(t, store.Exists(), "the override is written by the next save")
}

func TestApplyEmptyOverrideIsNoop(t *testing.T) {
	store, _ := newTestStore(t)

	st := store.ApplyLikesOverride(State{LastLikesCursor: "keep"}, "")
	assert.Equal(t, "keep", st.LastLikesCursor)
	assert.False(t, store.Exists())
}

func TestReset(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(State{LastLikesCursor: "x"}))
	require.True(t, store.Exists())

	require.NoError(t, store.Reset())
	assert.False(t, store.Exists())
	assert.NoError(t, store.Reset(), "resetting twice is fine")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "alice.bsky.social", SanitizeName("alice.bsky.social"))
	assert.Equal(t, "did_plc_abc", SanitizeName("did:plc:abc"))
	assert.Equal(t, "_", SanitizeName(".."))
	assert.Equal(t, "_etc_passwd", SanitizeName("/etc/passwd"))
}

func TestDefaultPathUsesXDG(t *testing.T) {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		t.Skip("XDG_DATA_HOME only applies on unix-like systems")
	}
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	path, err := DefaultPath("alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "skeeterdeleter", "state", "alice.bsky.social.state.json"), path)
}
