package rest

import (
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/topiclist/internal/model"
)

func testSession(t *testing.T) model.Session {
	t.Helper()
	return model.Session{
		AccessToken:  "acc",
		RefreshToken: "ref",
		TokenType:    "bearer",
		ExpiresAt:    time.Unix(1_900_000_000, 0),
		User:         model.User{ID: uuid.Must(uuid.FromString(testUser)), Email: "ann@example.com", Provider: "email"},
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	s, err := m.Load()
	require.NoError(t, err)
	require.Nil(t, s)

	require.NoError(t, m.Save(testSession(t)))
	got, err := m.Load()
	require.NoError(t, err)
	got.AccessToken = "mutated"

	again, _ := m.Load()
	require.Equal(t, "acc", again.AccessToken)

	require.NoError(t, m.Clear())
	s, _ = m.Load()
	require.Nil(t, s)
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	s, err := fs.Load()
	require.NoError(t, err)
	require.Nil(t, s, "missing file means no session")

	want := testSession(t)
	require.NoError(t, fs.Save(want))

	info, err := os.Stat(fs.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a second store over the same dir sees the session
	other, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := other.Load()
	require.NoError(t, err)
	require.Equal(t, want.AccessToken, got.AccessToken)
	require.Equal(t, want.RefreshToken, got.RefreshToken)
	require.Equal(t, want.User.ID, got.User.ID)
	require.Equal(t, "email", got.User.Provider)
	require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, fs.Clear())
	require.NoError(t, fs.Clear(), "clearing twice is fine")
	s, err = other.Load()
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fs.Path(), []byte("{not json"), 0o600))

	_, err = fs.Load()
	require.Error(t, err)
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("")
	require.Error(t, err)
}
